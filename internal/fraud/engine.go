package fraud

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Engine combines the deterministic rule checks, tenant-defined CEL checks
// and the probabilistic model signal into one fraud assessment per claim.
type Engine struct {
	scorer  domain.FraudScorer
	custom  *CustomChecks
	cfg     domain.FraudConfig
	timeout time.Duration
	logger  *slog.Logger
}

// NewEngine creates a fraud engine. The scorer and custom checks are both
// optional; with neither set the engine still produces rule-based
// assessments.
func NewEngine(scorer domain.FraudScorer, custom *CustomChecks, cfg domain.FraudConfig, timeout time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Engine{
		scorer:  scorer,
		custom:  custom,
		cfg:     cfg,
		timeout: timeout,
		logger:  logger,
	}
}

// Assess produces the fraud assessment for a claim. The rule checks always
// run; the model signal is fetched under a bounded timeout and its failure
// degrades the assessment to rule-based instead of failing the claim.
func (e *Engine) Assess(ctx context.Context, claim *domain.Claim, in RuleInput) (*domain.FraudAssessment, error) {
	rule := EvaluateRules(e.cfg, in)

	if e.custom != nil {
		custom := e.custom.Evaluate(in)
		rule.Score += custom.Score
		if rule.Score > 1.0 {
			rule.Score = 1.0
		}
		rule.Factors = append(rule.Factors, custom.Factors...)
	}

	var signal *domain.FraudSignal
	if e.scorer != nil {
		scoreCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		s, err := e.scorer.Score(scoreCtx, claim)
		if err != nil {
			e.logger.Warn("model fraud scoring failed, falling back to rule-based assessment",
				"tenant_id", claim.TenantID,
				"claim_id", claim.ID,
				"error", err)
		} else {
			signal = s
		}
	}

	score, factors, confidence, method := Merge(rule, signal)

	return domain.NewFraudAssessment(score, factors, confidence, method)
}

// Merge combines the rule result with the model signal. The combined score
// is the maximum of the two contributions so a strong signal from either
// side is never diluted; factors are concatenated rules-first. A nil signal
// yields a rule-based assessment; a signal with no rule contribution yields
// a model-based one.
func Merge(rule RuleResult, signal *domain.FraudSignal) (float64, []string, *float64, domain.AssessmentMethod) {
	if signal == nil {
		return rule.Score, rule.Factors, nil, domain.MethodRuleBased
	}

	modelScore := clamp(signal.Score)

	score := rule.Score
	if modelScore > score {
		score = modelScore
	}

	factors := make([]string, 0, len(rule.Factors)+len(signal.RiskFactors))
	factors = append(factors, rule.Factors...)
	factors = append(factors, signal.RiskFactors...)

	confidence := clamp(signal.Confidence)

	method := domain.MethodHybrid
	if rule.Score == 0 && len(rule.Factors) == 0 {
		method = domain.MethodModelBased
	}

	return score, factors, &confidence, method
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
