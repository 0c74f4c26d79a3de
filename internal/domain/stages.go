package domain

import "context"

// Per-stage processing collaborators. Each stage exposes one operation over
// the claim and returns its own result type; implementations typically call
// a text-generation backend and may fail with a provider error.

// ExtractionResult carries the structured summary produced from raw input.
type ExtractionResult struct {
	Summary    *ClaimSummary `json:"summary"`
	Confidence float64       `json:"confidence"`
	// Partial is true when extraction could not populate all critical
	// fields; partial extractions are escalation candidates.
	Partial bool `json:"partial"`
}

// ValidationResult is the outcome of checking the claim against its policy.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Ambiguous bool     `json:"ambiguous"`
	PolicyID  string   `json:"policyId,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
}

// FraudSignal is the probabilistic contribution from the external
// fraud-scoring collaborator. Treated as an untrusted signal; the rule-based
// checks never depend on it.
type FraudSignal struct {
	Score       float64  `json:"score"`
	RiskFactors []string `json:"riskFactors,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// TriageResult is the automated routing decision for a claim.
type TriageResult struct {
	Route      string  `json:"route"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Triage routes produced by the triage collaborator.
const (
	RouteAutoApprove = "auto_approve"
	RouteStandard    = "standard"
	RouteInvestigate = "investigate"
)

// FactsExtractor turns a claim's raw input into a structured summary.
type FactsExtractor interface {
	Extract(ctx context.Context, claim *Claim) (*ExtractionResult, error)
}

// PolicyValidator checks the extracted summary against the policy store.
type PolicyValidator interface {
	Validate(ctx context.Context, claim *Claim) (*ValidationResult, error)
}

// FraudScorer produces the model-based fraud contribution for a claim.
type FraudScorer interface {
	Score(ctx context.Context, claim *Claim) (*FraudSignal, error)
}

// TriageRouter produces the automated routing decision after assessment.
type TriageRouter interface {
	Route(ctx context.Context, claim *Claim) (*TriageResult, error)
}
