package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Validation errors raised at value-object construction. An invalid summary
// is never created, so these never enter the pipeline.
var (
	ErrNegativeAmount  = errors.New("claimed amount must not be negative")
	ErrFutureIncident  = errors.New("incident date must not be in the future")
	ErrMissingCurrency = errors.New("currency code is required")
)

// Claimant identifies the person filing the claim.
type Claimant struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ClaimSummary holds the structured facts derived from a claim's unstructured
// input. It is an immutable value object: extraction produces a new summary,
// it is never edited in place.
type ClaimSummary struct {
	ClaimType    string          `json:"claimType"`
	IncidentDate time.Time       `json:"incidentDate"`
	ReportedDate time.Time       `json:"reportedDate"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Location     string          `json:"location,omitempty"`
	Description  string          `json:"description,omitempty"`
	Claimant     Claimant        `json:"claimant"`
	PolicyNumber string          `json:"policyNumber,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Documents    []string        `json:"documents,omitempty"`
}

// NewClaimSummary validates and constructs a summary. The amount must be
// non-negative and the incident date must not lie in the future.
func NewClaimSummary(s ClaimSummary) (*ClaimSummary, error) {
	if s.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, s.Amount)
	}
	if !s.IncidentDate.IsZero() && s.IncidentDate.After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: %s", ErrFutureIncident, s.IncidentDate.Format(time.RFC3339))
	}
	if s.Currency == "" {
		return nil, ErrMissingCurrency
	}
	return &s, nil
}

// ReportDelay returns the elapsed time between incident and report. Zero
// timestamps yield zero delay.
func (s *ClaimSummary) ReportDelay() time.Duration {
	if s.IncidentDate.IsZero() || s.ReportedDate.IsZero() {
		return 0
	}
	d := s.ReportedDate.Sub(s.IncidentDate)
	if d < 0 {
		return 0
	}
	return d
}

// MissingCriticalFields lists the critical summary fields that extraction did
// not populate. Used by the rule-based fraud checks.
func (s *ClaimSummary) MissingCriticalFields() []string {
	var missing []string
	if s.ClaimType == "" {
		missing = append(missing, "claimType")
	}
	if s.IncidentDate.IsZero() {
		missing = append(missing, "incidentDate")
	}
	if s.Claimant.Name == "" {
		missing = append(missing, "claimant.name")
	}
	if s.PolicyNumber == "" {
		missing = append(missing, "policyNumber")
	}
	if s.Amount.IsZero() {
		missing = append(missing, "amount")
	}
	return missing
}
