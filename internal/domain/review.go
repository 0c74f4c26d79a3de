package domain

import (
	"errors"
	"time"
)

// ReviewPriority orders pending review items. Higher sorts first.
type ReviewPriority int

const (
	PriorityLow    ReviewPriority = 1
	PriorityMedium ReviewPriority = 2
	PriorityHigh   ReviewPriority = 3
)

func (p ReviewPriority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// ReviewStatus is the adjudication state of a review item.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "PENDING"
	ReviewApproved   ReviewStatus = "APPROVED"
	ReviewRejected   ReviewStatus = "REJECTED"
	ReviewOverridden ReviewStatus = "OVERRIDDEN"
)

// Decision is a human adjudication outcome.
type Decision string

const (
	DecisionApproved   Decision = "approved"
	DecisionRejected   Decision = "rejected"
	DecisionOverridden Decision = "overridden"
)

// Valid reports whether d is a recognized decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionOverridden:
		return true
	}
	return false
}

// ReviewStatusFor maps a human decision to the resulting item status.
func ReviewStatusFor(d Decision) ReviewStatus {
	switch d {
	case DecisionApproved:
		return ReviewApproved
	case DecisionOverridden:
		return ReviewOverridden
	default:
		return ReviewRejected
	}
}

// ClaimStatusFor maps a human decision to the forced claim status. Approved
// and overridden both push the claim into automated processing, superseding
// whatever the triage stage decided.
func ClaimStatusFor(d Decision) ClaimStatus {
	if d == DecisionRejected {
		return StatusRejected
	}
	return StatusProcessing
}

// Review queue and agent errors.
var (
	ErrNotPending      = errors.New("review item is not pending")
	ErrAlreadyDecided  = errors.New("review item already decided")
	ErrUnknownDecision = errors.New("unknown decision")
)

// ReviewItem is a queue entry representing a claim awaiting human
// adjudication. It references the claim by identifier only; it never owns
// the claim. Decided items are retained for audit.
type ReviewItem struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	ClaimID  string `json:"claimId"`

	Reason string `json:"reason"`

	// AutomatedDecision snapshots what the triage stage decided before the
	// claim was escalated.
	AutomatedDecision string `json:"automatedDecision,omitempty"`

	Priority ReviewPriority `json:"priority"`
	Status   ReviewStatus   `json:"status"`

	Feedback string `json:"feedback,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
}

// FeedbackRecord captures one human decision. Append-only; the basis for
// override statistics.
type FeedbackRecord struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	ClaimID    string    `json:"claimId"`
	Decision   Decision  `json:"decision"`
	Feedback   string    `json:"feedback,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// ReviewStatistics summarizes queue depth and override patterns over the
// full feedback history. Rates are ratios over total reviews and are 0 when
// the history is empty.
type ReviewStatistics struct {
	PendingCount  int     `json:"pendingCount"`
	TotalReviews  int     `json:"totalReviews"`
	ApprovalRate  float64 `json:"approvalRate"`
	RejectionRate float64 `json:"rejectionRate"`
	OverrideRate  float64 `json:"overrideRate"`
}
