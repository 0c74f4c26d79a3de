package domain

import "time"

// Standard topic names for the claim pipeline. Events for one claim are
// published on these topics in stage order.
const (
	// TopicClaimIntake carries raw submissions delivered over the bus; the
	// intake worker turns each into a claim.
	TopicClaimIntake = "harrier.claim.intake"

	TopicClaimSubmitted        = "harrier.claim.submitted"
	TopicFactsExtracted        = "harrier.claim.facts_extracted"
	TopicPolicyValidated       = "harrier.claim.policy_validated"
	TopicFraudScored           = "harrier.claim.fraud_scored"
	TopicRoutedForReview       = "harrier.claim.routed_for_review"
	TopicClaimFinalized        = "harrier.claim.finalized"
	TopicClaimFailed           = "harrier.claim.failed"
	TopicHumanDecisionRecorded = "harrier.review.human_decision"
)

// ClaimEvent is the common envelope for pipeline stage events. Immutable;
// the stage-specific payload rides in the fields below.
type ClaimEvent struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenantId"`
	ClaimID    string      `json:"claimId"`
	Stage      string      `json:"stage"`
	Status     ClaimStatus `json:"status"`
	OccurredAt time.Time   `json:"occurredAt"`

	// Stage payloads, one of which is set depending on the topic.
	Summary       *ClaimSummary     `json:"summary,omitempty"`
	Validation    *ValidationResult `json:"validation,omitempty"`
	Fraud         *FraudAssessment  `json:"fraud,omitempty"`
	ReviewItemID  string            `json:"reviewItemId,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Decision      Decision          `json:"decision,omitempty"`
	Error         *ClaimError       `json:"error,omitempty"`
}

// SubmissionEvent is the intake-topic payload consumed by the async intake
// worker.
type SubmissionEvent struct {
	TenantID string `json:"tenantId"`
	RawInput string `json:"rawInput"`
	Source   string `json:"source"`
}
