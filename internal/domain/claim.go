// Package domain defines the core types and interfaces for Harrier.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ClaimStatus is the lifecycle state of a claim.
type ClaimStatus string

const (
	StatusDraft           ClaimStatus = "DRAFT"
	StatusFactsExtracted  ClaimStatus = "FACTS_EXTRACTED"
	StatusPolicyValidated ClaimStatus = "POLICY_VALIDATED"
	StatusTriaged         ClaimStatus = "TRIAGED"
	StatusPendingReview   ClaimStatus = "PENDING_REVIEW"
	StatusProcessing      ClaimStatus = "PROCESSING"
	StatusRejected        ClaimStatus = "REJECTED"
	StatusFailed          ClaimStatus = "FAILED"
)

// ErrInvalidTransition is returned when a lifecycle transition is not in the
// allowed-next table. Correctly sequenced pipeline stages never trigger it.
var ErrInvalidTransition = errors.New("invalid claim transition")

// allowedTransitions is the claim lifecycle table. FAILED is reachable from
// every in-progress state; terminal states have no successors.
var allowedTransitions = map[ClaimStatus][]ClaimStatus{
	StatusDraft:           {StatusFactsExtracted, StatusFailed},
	StatusFactsExtracted:  {StatusPolicyValidated, StatusFailed},
	StatusPolicyValidated: {StatusTriaged, StatusFailed},
	StatusTriaged:         {StatusPendingReview, StatusProcessing, StatusFailed},
	StatusPendingReview:   {StatusProcessing, StatusRejected},
	StatusProcessing:      {},
	StatusRejected:        {},
	StatusFailed:          {},
}

// IsTerminal reports whether the status has no allowed successors.
func (s ClaimStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// CanTransition reports whether s -> next is in the lifecycle table.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ClaimError records the last stage failure on a claim.
type ClaimError struct {
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Claim is the aggregate root tracking one submitted claim through its
// processing lifecycle. It is mutated only through the methods below; callers
// outside the orchestrator/repository pairing must treat it as read-only.
type Claim struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// RawInput is the unstructured submission text.
	RawInput string `json:"rawInput"`
	Source   string `json:"source"`

	Status ClaimStatus `json:"status"`

	// Summary is set once per extraction; re-extraction replaces it
	// wholesale and bumps SummaryVersion.
	Summary        *ClaimSummary `json:"summary,omitempty"`
	SummaryVersion int           `json:"summaryVersion,omitempty"`

	Fraud *FraudAssessment `json:"fraud,omitempty"`

	LastError *ClaimError `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewClaim creates a claim in DRAFT state.
func NewClaim(id, tenantID, rawInput, source string) *Claim {
	now := time.Now().UTC()
	return &Claim{
		ID:        id,
		TenantID:  tenantID,
		RawInput:  rawInput,
		Source:    source,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the claim to the next lifecycle state. Transitions
// outside the lifecycle table fail with ErrInvalidTransition and leave the
// claim unchanged. Callers must hold the claim's lock (see ClaimLocks).
func (c *Claim) TransitionTo(next ClaimStatus) error {
	if !c.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s (claim %s)", ErrInvalidTransition, c.Status, next, c.ID)
	}
	c.Status = next
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SetSummary replaces the structured summary wholesale and increments the
// summary version. There is no in-place edit path.
func (c *Claim) SetSummary(s *ClaimSummary) {
	c.Summary = s
	c.SummaryVersion++
	c.UpdatedAt = time.Now().UTC()
}

// SetFraudAssessment attaches the fraud verdict to the claim.
func (c *Claim) SetFraudAssessment(fa *FraudAssessment) {
	c.Fraud = fa
	c.UpdatedAt = time.Now().UTC()
}

// Fail records a stage error and moves the claim to FAILED. A claim already
// in a terminal state is left as is.
func (c *Claim) Fail(stage string, err error) {
	if c.Status.IsTerminal() {
		return
	}
	c.LastError = &ClaimError{
		Stage:      stage,
		Message:    err.Error(),
		OccurredAt: time.Now().UTC(),
	}
	c.Status = StatusFailed
	c.UpdatedAt = time.Now().UTC()
}
