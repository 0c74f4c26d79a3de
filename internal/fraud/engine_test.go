package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/shopspring/decimal"
)

type stubScorer struct {
	signal *domain.FraudSignal
	err    error
}

func (s *stubScorer) Score(ctx context.Context, claim *domain.Claim) (*domain.FraudSignal, error) {
	return s.signal, s.err
}

func testClaim(t *testing.T, summary *domain.ClaimSummary) *domain.Claim {
	t.Helper()
	claim := domain.NewClaim("claim-1", "tenant-a", "claim text", "api")
	claim.Summary = summary
	return claim
}

func TestEngineAssessHybrid(t *testing.T) {
	scorer := &stubScorer{signal: &domain.FraudSignal{
		Score:       0.7,
		RiskFactors: []string{"Narrative inconsistency detected"},
		Confidence:  0.85,
	}}
	engine := NewEngine(scorer, nil, testFraudConfig(), time.Second, nil)

	s := cleanSummary()
	s.Amount = decimal.NewFromInt(150000)

	assessment, err := engine.Assess(context.Background(), testClaim(t, s), RuleInput{Summary: s, DuplicateCount: 1})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	// Rule score 0.4 vs model 0.7: combined takes the maximum.
	if assessment.Score != 0.7 {
		t.Errorf("expected score 0.7, got %v", assessment.Score)
	}
	if assessment.Method != domain.MethodHybrid {
		t.Errorf("expected hybrid method, got %s", assessment.Method)
	}
	if assessment.RiskLevel != domain.RiskHigh || !assessment.Suspicious {
		t.Errorf("expected suspicious HIGH, got %s suspicious=%v", assessment.RiskLevel, assessment.Suspicious)
	}
	if len(assessment.RiskFactors) != 2 {
		t.Errorf("expected rule and model factors, got %v", assessment.RiskFactors)
	}
	if assessment.Confidence == nil || *assessment.Confidence != 0.85 {
		t.Errorf("expected confidence 0.85, got %v", assessment.Confidence)
	}
}

func TestEngineAssessRuleScoreWins(t *testing.T) {
	scorer := &stubScorer{signal: &domain.FraudSignal{Score: 0.1, Confidence: 0.9}}
	engine := NewEngine(scorer, nil, testFraudConfig(), time.Second, nil)

	s := cleanSummary()
	s.Amount = decimal.NewFromInt(150000)
	s.ReportedDate = s.IncidentDate.Add(5 * time.Minute)

	assessment, err := engine.Assess(context.Background(), testClaim(t, s), RuleInput{Summary: s, DuplicateCount: 1})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	want := weightHighValue + weightQuickReport
	if assessment.Score != want {
		t.Errorf("expected rule score %v to win, got %v", want, assessment.Score)
	}
	if assessment.Method != domain.MethodHybrid {
		t.Errorf("method should remain hybrid when the model responds, got %s", assessment.Method)
	}
}

func TestEngineAssessModelOnlyIsModelBased(t *testing.T) {
	scorer := &stubScorer{signal: &domain.FraudSignal{
		Score:       0.45,
		RiskFactors: []string{"Narrative resembles a known staging pattern"},
		Confidence:  0.7,
	}}
	engine := NewEngine(scorer, nil, testFraudConfig(), time.Second, nil)

	// A clean claim triggers no rule check, so the model is the only
	// contributor.
	s := cleanSummary()
	assessment, err := engine.Assess(context.Background(), testClaim(t, s), RuleInput{Summary: s, DuplicateCount: 1})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if assessment.Method != domain.MethodModelBased {
		t.Errorf("expected model_based when no rule fired, got %s", assessment.Method)
	}
	if assessment.Score != 0.45 {
		t.Errorf("expected model score 0.45, got %v", assessment.Score)
	}
	if len(assessment.RiskFactors) != 1 {
		t.Errorf("expected only the model factor, got %v", assessment.RiskFactors)
	}
}

func TestEngineAssessFallsBackOnScorerError(t *testing.T) {
	scorer := &stubScorer{err: errors.New("model backend unavailable")}
	engine := NewEngine(scorer, nil, testFraudConfig(), time.Second, nil)

	s := cleanSummary()
	s.Amount = decimal.NewFromInt(150000)

	assessment, err := engine.Assess(context.Background(), testClaim(t, s), RuleInput{Summary: s, DuplicateCount: 1})
	if err != nil {
		t.Fatalf("Assess must absorb scorer failure, got %v", err)
	}

	if assessment.Method != domain.MethodRuleBased {
		t.Errorf("expected rule_based fallback, got %s", assessment.Method)
	}
	if assessment.Score != weightHighValue {
		t.Errorf("expected rule score %v, got %v", weightHighValue, assessment.Score)
	}
	if assessment.Confidence != nil {
		t.Errorf("rule-based assessment should carry no model confidence, got %v", *assessment.Confidence)
	}
}

func TestEngineAssessNoScorer(t *testing.T) {
	engine := NewEngine(nil, nil, testFraudConfig(), time.Second, nil)

	s := cleanSummary()
	assessment, err := engine.Assess(context.Background(), testClaim(t, s), RuleInput{Summary: s, DuplicateCount: 1})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if assessment.Method != domain.MethodRuleBased {
		t.Errorf("expected rule_based, got %s", assessment.Method)
	}
	if assessment.Score != 0 || assessment.RiskLevel != domain.RiskLow {
		t.Errorf("clean claim should score LOW, got %v %s", assessment.Score, assessment.RiskLevel)
	}
}

func TestEngineAssessWithCustomChecks(t *testing.T) {
	custom, err := NewCustomChecks()
	if err != nil {
		t.Fatalf("NewCustomChecks: %v", err)
	}
	if err := custom.LoadCheck(&domain.FraudCheckConfig{
		ID:         "chk-no-docs",
		Name:       "no-supporting-documents",
		Expression: `document_count == 0 && amount > 1000.0`,
		Weight:     0.2,
		Factor:     "No supporting documents for a sizable claim",
		Enabled:    true,
	}); err != nil {
		t.Fatalf("LoadCheck: %v", err)
	}

	engine := NewEngine(nil, custom, testFraudConfig(), time.Second, nil)

	s := cleanSummary()
	assessment, err := engine.Assess(context.Background(), testClaim(t, s), RuleInput{Summary: s, DuplicateCount: 1})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if assessment.Score != 0.2 {
		t.Errorf("expected custom check contribution 0.2, got %v", assessment.Score)
	}
	if len(assessment.RiskFactors) != 1 || assessment.RiskFactors[0] != "No supporting documents for a sizable claim" {
		t.Errorf("unexpected factors: %v", assessment.RiskFactors)
	}
}

func TestMergeClampsModelSignal(t *testing.T) {
	score, _, confidence, method := Merge(RuleResult{Score: 0.2}, &domain.FraudSignal{Score: 3.5, Confidence: -1})

	if score != 1.0 {
		t.Errorf("out-of-range model score must be clamped, got %v", score)
	}
	if *confidence != 0 {
		t.Errorf("out-of-range confidence must be clamped, got %v", *confidence)
	}
	if method != domain.MethodHybrid {
		t.Errorf("expected hybrid, got %s", method)
	}
}
