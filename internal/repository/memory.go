package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// MemoryRepository is an in-memory domain.Repository. Used in tests and in
// the pure in-process mode where nothing survives a restart.
type MemoryRepository struct {
	mu          sync.RWMutex
	claims      map[string]*domain.Claim
	policies    map[string]*domain.Policy
	reviewItems map[string]*domain.ReviewItem
	feedback    []*domain.FeedbackRecord
	fraudChecks map[string]*domain.FraudCheckConfig
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		claims:      make(map[string]*domain.Claim),
		policies:    make(map[string]*domain.Policy),
		reviewItems: make(map[string]*domain.ReviewItem),
		fraudChecks: make(map[string]*domain.FraudCheckConfig),
	}
}

func (r *MemoryRepository) key(tenantID, id string) string {
	return tenantID + ":" + id
}

// SaveClaim stores a copy of the claim so later mutations by the pipeline do
// not leak into previously stored snapshots.
func (r *MemoryRepository) SaveClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	cp := *claim
	r.mu.Lock()
	r.claims[r.key(tenantID, claim.ID)] = &cp
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	claim, ok := r.claims[r.key(tenantID, claimID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *claim
	return &cp, nil
}

func (r *MemoryRepository) ListClaimsByStatus(ctx context.Context, tenantID string, status domain.ClaimStatus) ([]*domain.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Claim
	for _, c := range r.claims {
		if c.TenantID == tenantID && c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.Policy) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	cp := *policy
	r.mu.Lock()
	r.policies[r.key(tenantID, policy.ID)] = &cp
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[r.key(tenantID, policyID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) GetPolicyByNumber(ctx context.Context, tenantID string, policyNumber string) (*domain.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.policies {
		if p.TenantID == tenantID && p.PolicyNumber == policyNumber {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) SaveReviewItem(ctx context.Context, tenantID string, item *domain.ReviewItem) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	cp := *item
	r.mu.Lock()
	r.reviewItems[r.key(tenantID, item.ID)] = &cp
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetReviewItemByClaim(ctx context.Context, tenantID string, claimID string) (*domain.ReviewItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.ReviewItem
	for _, item := range r.reviewItems {
		if item.TenantID != tenantID || item.ClaimID != claimID {
			continue
		}
		if latest == nil || item.CreatedAt.After(latest.CreatedAt) {
			latest = item
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRepository) SaveFeedback(ctx context.Context, tenantID string, record *domain.FeedbackRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	cp := *record
	r.mu.Lock()
	r.feedback = append(r.feedback, &cp)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) ListFeedback(ctx context.Context, tenantID string) ([]*domain.FeedbackRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.FeedbackRecord
	for _, rec := range r.feedback {
		if rec.TenantID == tenantID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) SaveFraudCheck(ctx context.Context, tenantID string, check *domain.FraudCheckConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	cp := *check
	r.mu.Lock()
	r.fraudChecks[r.key(tenantID, check.ID)] = &cp
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) ListFraudChecks(ctx context.Context, tenantID string) ([]*domain.FraudCheckConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.FraudCheckConfig
	for _, c := range r.fraudChecks {
		if c.TenantID == tenantID && c.Enabled {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }
