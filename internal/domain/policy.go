package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy is an insurance policy looked up during validation. Owned by the
// policy store, read-only to the pipeline.
type Policy struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	PolicyNumber string          `json:"policyNumber"`
	HolderName   string          `json:"holderName"`
	CoverageType string          `json:"coverageType"`
	MaxCoverage  decimal.Decimal `json:"maxCoverage"`
	EffectiveAt  time.Time       `json:"effectiveAt"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	Active       bool            `json:"active"`
}

// InForce reports whether the policy covers the given moment.
func (p *Policy) InForce(at time.Time) bool {
	if !p.Active {
		return false
	}
	if !p.EffectiveAt.IsZero() && at.Before(p.EffectiveAt) {
		return false
	}
	if !p.ExpiresAt.IsZero() && at.After(p.ExpiresAt) {
		return false
	}
	return true
}
