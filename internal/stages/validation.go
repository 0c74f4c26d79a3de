package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
)

const policyCacheTTL = 5 * time.Minute

// Validator checks an extracted summary against the policy store. Lookups
// are cached per policy number to keep repeated submissions cheap.
type Validator struct {
	repo   domain.Repository
	cache  domain.Cache
	logger *slog.Logger
}

// NewValidator creates the validation collaborator. The cache is optional.
func NewValidator(repo domain.Repository, cache domain.Cache, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{repo: repo, cache: cache, logger: logger}
}

// Validate implements domain.PolicyValidator. A claim without a policy
// number is ambiguous rather than invalid: escalation, not rejection, is the
// right disposition when extraction could not pin the policy down.
func (v *Validator) Validate(ctx context.Context, claim *domain.Claim) (*domain.ValidationResult, error) {
	if claim.Summary == nil {
		return nil, fmt.Errorf("claim %s has no summary to validate", claim.ID)
	}
	s := claim.Summary

	if s.PolicyNumber == "" {
		return &domain.ValidationResult{
			Ambiguous: true,
			Reasons:   []string{"no policy number extracted from the submission"},
		}, nil
	}

	policy, err := v.LookupPolicy(ctx, claim.TenantID, s.PolicyNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.ValidationResult{
				Valid:   false,
				Reasons: []string{fmt.Sprintf("policy %s not found", s.PolicyNumber)},
			}, nil
		}
		return nil, fmt.Errorf("policy lookup failed: %w", err)
	}

	result := &domain.ValidationResult{Valid: true, PolicyID: policy.ID}

	at := s.IncidentDate
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if !policy.InForce(at) {
		result.Valid = false
		result.Reasons = append(result.Reasons, "policy was not in force on the incident date")
	}

	if s.ClaimType != "" && policy.CoverageType != "" && !strings.EqualFold(s.ClaimType, policy.CoverageType) {
		result.Valid = false
		result.Reasons = append(result.Reasons, fmt.Sprintf("claim type %q not covered by policy type %q", s.ClaimType, policy.CoverageType))
	}

	// Exceeding the coverage limit does not invalidate the claim; it
	// raises review priority downstream.
	if !policy.MaxCoverage.IsZero() && s.Amount.GreaterThan(policy.MaxCoverage) {
		result.Reasons = append(result.Reasons, fmt.Sprintf("claimed amount %s exceeds coverage limit %s", s.Amount, policy.MaxCoverage))
	}

	return result, nil
}

// LookupPolicy resolves a policy by number, cache first. Used by the
// validation check and by the orchestrator when it needs the policy for
// review prioritization.
func (v *Validator) LookupPolicy(ctx context.Context, tenantID, policyNumber string) (*domain.Policy, error) {
	cacheKey := "policy:number:" + policyNumber

	if v.cache != nil {
		if data, err := v.cache.Get(ctx, tenantID, cacheKey); err == nil && data != nil {
			var policy domain.Policy
			if err := json.Unmarshal(data, &policy); err == nil {
				return &policy, nil
			}
		}
	}

	policy, err := v.repo.GetPolicyByNumber(ctx, tenantID, policyNumber)
	if err != nil {
		return nil, err
	}

	if v.cache != nil {
		if data, err := json.Marshal(policy); err == nil {
			if err := v.cache.Set(ctx, tenantID, cacheKey, data, policyCacheTTL); err != nil {
				v.logger.Debug("failed to cache policy", "policy_number", policyNumber, "error", err)
			}
		}
	}

	return policy, nil
}
