package stages

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/llm"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/shopspring/decimal"
)

type stubProvider struct {
	text string
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.GenerateResponse{Text: s.text, Model: "stub"}, nil
}

func (s *stubProvider) IsAvailable(ctx context.Context) bool { return true }

func draftClaim(rawInput string) *domain.Claim {
	return domain.NewClaim("claim-1", "tenant-a", rawInput, "api")
}

func TestExtractStructuredSubmission(t *testing.T) {
	e := NewExtractor(nil, nil)

	raw := `{
		"claim_type": "auto",
		"incident_date": "2026-03-10",
		"reported_date": "2026-03-12",
		"amount": "3500.00",
		"currency": "usd",
		"claimant": {"name": "Dana Whitfield", "email": "dana@example.com"},
		"policy_number": "POL-1001"
	}`

	result, err := e.Extract(context.Background(), draftClaim(raw))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	s := result.Summary
	if s.ClaimType != "auto" {
		t.Errorf("claim type = %q", s.ClaimType)
	}
	if !s.Amount.Equal(decimal.RequireFromString("3500.00")) {
		t.Errorf("amount = %s", s.Amount)
	}
	if s.Currency != "USD" {
		t.Errorf("currency not normalized: %q", s.Currency)
	}
	if s.IncidentDate != time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) {
		t.Errorf("incident date = %s", s.IncidentDate)
	}
	if s.Claimant.Name != "Dana Whitfield" {
		t.Errorf("claimant = %q", s.Claimant.Name)
	}
	if result.Partial {
		t.Errorf("complete submission flagged partial; missing: %v", s.MissingCriticalFields())
	}
	if result.Confidence != 0.95 {
		t.Errorf("confidence = %v", result.Confidence)
	}
}

func TestExtractPartialSubmission(t *testing.T) {
	e := NewExtractor(nil, nil)

	result, err := e.Extract(context.Background(), draftClaim(`{"claim_type": "auto", "amount": "500"}`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !result.Partial {
		t.Error("submission lacking claimant and policy number must be partial")
	}
}

func TestExtractFreeTextViaModel(t *testing.T) {
	provider := &stubProvider{text: "Here are the extracted facts:\n```json\n" + `{
		"claim_type": "property",
		"incident_date": "2026-02-01",
		"amount": "12000.50",
		"currency": "USD",
		"claimant": {"name": "Ilya Novak"},
		"policy_number": "POL-2002",
		"confidence": 0.82
	}` + "\n```"}
	e := NewExtractor(provider, nil)

	result, err := e.Extract(context.Background(), draftClaim("My kitchen flooded on Feb 1st, I'm on policy POL-2002..."))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Confidence != 0.82 {
		t.Errorf("confidence = %v, want 0.82", result.Confidence)
	}
	if !result.Summary.Amount.Equal(decimal.RequireFromString("12000.50")) {
		t.Errorf("amount = %s", result.Summary.Amount)
	}
	// ReportedDate defaults to submission time when not stated.
	if result.Summary.ReportedDate.IsZero() {
		t.Error("reported date not defaulted")
	}
}

func TestExtractErrors(t *testing.T) {
	e := NewExtractor(nil, nil)
	ctx := context.Background()

	if _, err := e.Extract(ctx, draftClaim("   ")); err == nil {
		t.Error("empty input should fail")
	}
	if _, err := e.Extract(ctx, draftClaim("my car was stolen")); err == nil {
		t.Error("free text without a backend should fail")
	}
	if _, err := e.Extract(ctx, draftClaim(`{"amount": "-100", "currency": "USD"}`)); err == nil {
		t.Error("negative amount should fail summary validation")
	}

	e = NewExtractor(&stubProvider{text: "I could not find any claim in this text."}, nil)
	if _, err := e.Extract(ctx, draftClaim("unrelated text")); err == nil || !strings.Contains(err.Error(), "no JSON object") {
		t.Errorf("non-JSON model output: err = %v", err)
	}
}

func validatorFixture(t *testing.T) (*Validator, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	c, err := cache.New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return NewValidator(repo, c, nil), repo
}

func extractedClaim(policyNumber string) *domain.Claim {
	claim := draftClaim("raw")
	claim.Summary = &domain.ClaimSummary{
		ClaimType:    "auto",
		IncidentDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		ReportedDate: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		Amount:       decimal.NewFromInt(3500),
		Currency:     "USD",
		Claimant:     domain.Claimant{Name: "Dana Whitfield"},
		PolicyNumber: policyNumber,
	}
	return claim
}

func seedPolicy(t *testing.T, repo domain.Repository) *domain.Policy {
	t.Helper()
	policy := &domain.Policy{
		ID:           "pol-1",
		TenantID:     "tenant-a",
		PolicyNumber: "POL-1001",
		HolderName:   "Dana Whitfield",
		CoverageType: "auto",
		MaxCoverage:  decimal.NewFromInt(100000),
		EffectiveAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:    time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:       true,
	}
	if err := repo.SavePolicy(context.Background(), "tenant-a", policy); err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}
	return policy
}

func TestValidateInForcePolicy(t *testing.T) {
	v, repo := validatorFixture(t)
	seedPolicy(t, repo)

	result, err := v.Validate(context.Background(), extractedClaim("POL-1001"))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid || result.Ambiguous {
		t.Errorf("result = %+v, want valid", result)
	}
	if result.PolicyID != "pol-1" {
		t.Errorf("policy ID = %q", result.PolicyID)
	}
}

func TestValidateMissingPolicyNumberIsAmbiguous(t *testing.T) {
	v, _ := validatorFixture(t)

	result, err := v.Validate(context.Background(), extractedClaim(""))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Ambiguous || result.Valid {
		t.Errorf("result = %+v, want ambiguous", result)
	}
}

func TestValidateUnknownPolicy(t *testing.T) {
	v, _ := validatorFixture(t)

	result, err := v.Validate(context.Background(), extractedClaim("POL-9999"))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.Valid {
		t.Error("unknown policy must be invalid")
	}
	if len(result.Reasons) != 1 || !strings.Contains(result.Reasons[0], "not found") {
		t.Errorf("reasons = %v", result.Reasons)
	}
}

func TestValidateLapsedPolicy(t *testing.T) {
	v, repo := validatorFixture(t)
	policy := seedPolicy(t, repo)
	policy.ExpiresAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.SavePolicy(context.Background(), "tenant-a", policy); err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}

	result, err := v.Validate(context.Background(), extractedClaim("POL-1001"))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.Valid {
		t.Error("claim against a lapsed policy must be invalid")
	}
}

func TestValidateOverCoverageStaysValid(t *testing.T) {
	v, repo := validatorFixture(t)
	seedPolicy(t, repo)

	claim := extractedClaim("POL-1001")
	claim.Summary.Amount = decimal.NewFromInt(150000)

	result, err := v.Validate(context.Background(), claim)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid {
		t.Error("exceeding coverage must not invalidate the claim")
	}
	if len(result.Reasons) != 1 || !strings.Contains(result.Reasons[0], "coverage limit") {
		t.Errorf("reasons = %v", result.Reasons)
	}
}

func TestModelScorerParsesSignal(t *testing.T) {
	provider := &stubProvider{text: `{"score": 0.72, "risk_factors": ["Amount inflated relative to damage description"], "confidence": 0.6}`}
	scorer, err := NewModelScorer(provider, nil)
	if err != nil {
		t.Fatalf("NewModelScorer: %v", err)
	}

	signal, err := scorer.Score(context.Background(), extractedClaim("POL-1001"))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if signal.Score != 0.72 || signal.Confidence != 0.6 {
		t.Errorf("signal = %+v", signal)
	}
	if len(signal.RiskFactors) != 1 {
		t.Errorf("risk factors = %v", signal.RiskFactors)
	}
}

func TestModelScorerRequiresProvider(t *testing.T) {
	if _, err := NewModelScorer(nil, nil); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestRouterDecisions(t *testing.T) {
	router := NewRouter(decimal.NewFromInt(10000))
	ctx := context.Background()

	assess := func(t *testing.T, score float64) *domain.FraudAssessment {
		t.Helper()
		fa, err := domain.NewFraudAssessment(score, nil, nil, domain.MethodRuleBased)
		if err != nil {
			t.Fatalf("NewFraudAssessment: %v", err)
		}
		return fa
	}

	tests := []struct {
		name   string
		amount int64
		score  float64
		want   string
	}{
		{"low risk small amount", 3500, 0.1, domain.RouteAutoApprove},
		{"suspicious", 3500, 0.7, domain.RouteInvestigate},
		{"critical", 3500, 0.9, domain.RouteInvestigate},
		{"large amount", 50000, 0.1, domain.RouteStandard},
		{"medium risk", 3500, 0.4, domain.RouteStandard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claim := extractedClaim("POL-1001")
			claim.Summary.Amount = decimal.NewFromInt(tt.amount)
			claim.Fraud = assess(t, tt.score)

			result, err := router.Route(ctx, claim)
			if err != nil {
				t.Fatalf("Route: %v", err)
			}
			if result.Route != tt.want {
				t.Errorf("route = %s, want %s (reason %q)", result.Route, tt.want, result.Reason)
			}
		})
	}
}

func TestRouterNoAssessment(t *testing.T) {
	router := NewRouter(decimal.NewFromInt(10000))

	claim := extractedClaim("POL-1001")
	result, err := router.Route(context.Background(), claim)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.Route != domain.RouteAutoApprove {
		t.Errorf("claim without assessment and routine amount: route = %s", result.Route)
	}
}
