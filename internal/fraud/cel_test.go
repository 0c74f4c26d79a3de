package fraud

import (
	"strings"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/shopspring/decimal"
)

func TestCustomChecksLoadAndEvaluate(t *testing.T) {
	checks, err := NewCustomChecks()
	if err != nil {
		t.Fatalf("NewCustomChecks: %v", err)
	}

	err = checks.LoadCheck(&domain.FraudCheckConfig{
		ID:         "chk-location",
		Name:       "offshore-location",
		Expression: `location == "offshore"`,
		Weight:     0.25,
		Factor:     "Incident location flagged as offshore",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadCheck: %v", err)
	}

	s := cleanSummary()
	s.Location = "offshore"

	result := checks.Evaluate(RuleInput{Summary: s, DuplicateCount: 1})
	if result.Score != 0.25 {
		t.Errorf("expected score 0.25, got %v", result.Score)
	}
	if len(result.Factors) != 1 || result.Factors[0] != "Incident location flagged as offshore" {
		t.Errorf("unexpected factors: %v", result.Factors)
	}

	s.Location = "downtown"
	result = checks.Evaluate(RuleInput{Summary: s, DuplicateCount: 1})
	if result.Score != 0 {
		t.Errorf("check should not fire, got score %v", result.Score)
	}
}

func TestCustomChecksNumericExpression(t *testing.T) {
	checks, err := NewCustomChecks()
	if err != nil {
		t.Fatalf("NewCustomChecks: %v", err)
	}

	err = checks.LoadCheck(&domain.FraudCheckConfig{
		ID:         "chk-dup",
		Name:       "repeat-filer",
		Expression: `duplicate_count - 1`,
		Weight:     0.3,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadCheck: %v", err)
	}

	result := checks.Evaluate(RuleInput{Summary: cleanSummary(), DuplicateCount: 2})
	if result.Score != 0.3 {
		t.Errorf("positive numeric result should fire, got score %v", result.Score)
	}

	// Factor falls back to the check name when unset.
	if len(result.Factors) != 1 || result.Factors[0] != "repeat-filer" {
		t.Errorf("unexpected factors: %v", result.Factors)
	}

	result = checks.Evaluate(RuleInput{Summary: cleanSummary(), DuplicateCount: 1})
	if result.Score != 0 {
		t.Errorf("zero numeric result should not fire, got score %v", result.Score)
	}
}

func TestCustomChecksRejectsInvalidExpression(t *testing.T) {
	checks, err := NewCustomChecks()
	if err != nil {
		t.Fatalf("NewCustomChecks: %v", err)
	}

	err = checks.ValidateCheck(&domain.FraudCheckConfig{
		ID:         "chk-bad",
		Expression: `amount >`,
	})
	if err == nil {
		t.Fatal("expected compile error for malformed expression")
	}

	err = checks.ValidateCheck(&domain.FraudCheckConfig{
		ID:         "chk-string",
		Expression: `currency`,
	})
	if err == nil || !strings.Contains(err.Error(), "must return bool, int, or double") {
		t.Fatalf("expected output type error, got %v", err)
	}
}

func TestCustomChecksReload(t *testing.T) {
	checks, err := NewCustomChecks()
	if err != nil {
		t.Fatalf("NewCustomChecks: %v", err)
	}

	if err := checks.LoadCheck(&domain.FraudCheckConfig{
		ID:         "chk-old",
		Expression: `true`,
		Weight:     0.1,
		Enabled:    true,
	}); err != nil {
		t.Fatalf("LoadCheck: %v", err)
	}

	err = checks.ReloadChecks([]*domain.FraudCheckConfig{
		{ID: "chk-a", Expression: `amount > 1000.0`, Weight: 0.2, Enabled: true},
		{ID: "chk-b", Expression: `true`, Weight: 0.2, Enabled: false},
	})
	if err != nil {
		t.Fatalf("ReloadChecks: %v", err)
	}

	// Disabled checks are skipped and the old set is replaced.
	if got := checks.ChecksCount(); got != 1 {
		t.Errorf("expected 1 loaded check after reload, got %d", got)
	}

	s := cleanSummary()
	s.Amount = decimal.NewFromInt(5000)
	result := checks.Evaluate(RuleInput{Summary: s, DuplicateCount: 1})
	if result.Score != 0.2 {
		t.Errorf("expected only chk-a to contribute, got score %v", result.Score)
	}
}

func TestCustomChecksReloadKeepsOldSetOnError(t *testing.T) {
	checks, err := NewCustomChecks()
	if err != nil {
		t.Fatalf("NewCustomChecks: %v", err)
	}

	if err := checks.LoadCheck(&domain.FraudCheckConfig{
		ID:         "chk-keep",
		Expression: `true`,
		Weight:     0.1,
		Enabled:    true,
	}); err != nil {
		t.Fatalf("LoadCheck: %v", err)
	}

	err = checks.ReloadChecks([]*domain.FraudCheckConfig{
		{ID: "chk-broken", Expression: `amount >`, Enabled: true},
	})
	if err == nil {
		t.Fatal("expected reload to fail on broken expression")
	}
	if got := checks.ChecksCount(); got != 1 {
		t.Errorf("failed reload must keep the previous set, got %d checks", got)
	}
}
