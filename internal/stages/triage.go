package stages

import (
	"context"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/shopspring/decimal"
)

// Router produces the automated routing decision after fraud assessment.
// Routing is deterministic: the same claim state always yields the same
// route, regardless of what the probabilistic stages reported as free text.
type Router struct {
	largeAmount decimal.Decimal
}

// NewRouter creates the triage collaborator.
func NewRouter(largeAmount decimal.Decimal) *Router {
	return &Router{largeAmount: largeAmount}
}

// Route implements domain.TriageRouter.
func (r *Router) Route(ctx context.Context, claim *domain.Claim) (*domain.TriageResult, error) {
	if claim.Summary == nil {
		return nil, fmt.Errorf("claim %s has no summary to triage", claim.ID)
	}

	if claim.Fraud != nil && claim.Fraud.Suspicious {
		return &domain.TriageResult{
			Route:      domain.RouteInvestigate,
			Reason:     fmt.Sprintf("fraud risk level %s", claim.Fraud.RiskLevel),
			Confidence: 1.0,
		}, nil
	}

	if !r.largeAmount.IsZero() && claim.Summary.Amount.GreaterThan(r.largeAmount) {
		return &domain.TriageResult{
			Route:      domain.RouteStandard,
			Reason:     fmt.Sprintf("claimed amount %s above the large-amount threshold %s", claim.Summary.Amount, r.largeAmount),
			Confidence: 1.0,
		}, nil
	}

	if claim.Fraud == nil || claim.Fraud.RiskLevel == domain.RiskLow {
		return &domain.TriageResult{
			Route:      domain.RouteAutoApprove,
			Reason:     "low fraud risk and routine amount",
			Confidence: 1.0,
		}, nil
	}

	return &domain.TriageResult{
		Route:      domain.RouteStandard,
		Reason:     fmt.Sprintf("fraud risk level %s requires standard handling", claim.Fraud.RiskLevel),
		Confidence: 1.0,
	}, nil
}
