package fraud

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/harrier/internal/domain"
)

// CustomChecks evaluates tenant-defined fraud checks written as CEL
// expressions. Checks are compiled once at load and evaluated from multiple
// pipeline goroutines, so the compiled set is guarded for hot reloads.
type CustomChecks struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledCheck
}

type compiledCheck struct {
	config  *domain.FraudCheckConfig
	program cel.Program
}

// NewCustomChecks creates the evaluation environment. The variable set is
// the stable contract for check authors.
func NewCustomChecks() (*CustomChecks, error) {
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("claim_type", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("claimant_name", cel.StringType),
		cel.Variable("policy_number", cel.StringType),
		cel.Variable("report_delay_hours", cel.DoubleType),
		cel.Variable("duplicate_count", cel.IntType),
		cel.Variable("document_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomChecks{
		env:      env,
		compiled: make(map[string]*compiledCheck),
	}, nil
}

// ValidateCheck compiles a check without loading it. Used by the API to
// reject malformed expressions before they reach storage.
func (c *CustomChecks) ValidateCheck(cfg *domain.FraudCheckConfig) error {
	if cfg == nil {
		return fmt.Errorf("fraud check config is required")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := c.compileCheck(cfg)
	return err
}

// LoadCheck compiles and loads a single check.
func (c *CustomChecks) LoadCheck(cfg *domain.FraudCheckConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	compiled, err := c.compileCheck(cfg)
	if err != nil {
		return err
	}

	c.compiled[cfg.ID] = compiled

	return nil
}

// ReloadChecks replaces the loaded set with the given configs, skipping
// disabled ones. A compile error leaves the previous set untouched.
func (c *CustomChecks) ReloadChecks(configs []*domain.FraudCheckConfig) error {
	newChecks := make(map[string]*compiledCheck)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := c.compileCheck(cfg)
		if err != nil {
			return err
		}
		newChecks[cfg.ID] = compiled
	}

	c.mu.Lock()
	c.compiled = newChecks
	c.mu.Unlock()

	return nil
}

// ChecksCount returns the number of loaded checks.
func (c *CustomChecks) ChecksCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.compiled)
}

// Evaluate runs every loaded check against the rule input. A check whose
// expression is truthy contributes its weight and factor; evaluation errors
// in one check do not affect the others.
func (c *CustomChecks) Evaluate(in RuleInput) RuleResult {
	c.mu.RLock()
	checks := make([]*compiledCheck, 0, len(c.compiled))
	for _, check := range c.compiled {
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	var result RuleResult
	if len(checks) == 0 || in.Summary == nil {
		return result
	}

	activation := activationFor(in)

	for _, check := range checks {
		out, _, err := check.program.Eval(activation)
		if err != nil {
			continue
		}
		if triggered(out) {
			result.Score += check.config.Weight
			factor := check.config.Factor
			if factor == "" {
				factor = check.config.Name
			}
			result.Factors = append(result.Factors, factor)
		}
	}

	if result.Score > 1.0 {
		result.Score = 1.0
	}

	return result
}

func activationFor(in RuleInput) map[string]any {
	s := in.Summary
	amount, _ := s.Amount.Float64()

	return map[string]any{
		"claim": map[string]any{
			"claim_type":    s.ClaimType,
			"amount":        amount,
			"currency":      s.Currency,
			"location":      s.Location,
			"description":   s.Description,
			"claimant_name": s.Claimant.Name,
			"policy_number": s.PolicyNumber,
		},
		"amount":             amount,
		"currency":           s.Currency,
		"claim_type":         s.ClaimType,
		"location":           s.Location,
		"description":        s.Description,
		"claimant_name":      s.Claimant.Name,
		"policy_number":      s.PolicyNumber,
		"report_delay_hours": s.ReportDelay().Hours(),
		"duplicate_count":    in.DuplicateCount,
		"document_count":     int64(len(s.Documents)),
	}
}

// triggered converts a CEL result to a fired/not-fired decision. Booleans
// fire when true, numbers fire when positive.
func triggered(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) > 0
	case types.Int:
		return int64(v) > 0
	default:
		return false
	}
}

func (c *CustomChecks) compileCheck(cfg *domain.FraudCheckConfig) (*compiledCheck, error) {
	ast, issues := c.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile fraud check %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("fraud check %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for fraud check %s: %w", cfg.ID, err)
	}

	return &compiledCheck{
		config:  cfg,
		program: program,
	}, nil
}
