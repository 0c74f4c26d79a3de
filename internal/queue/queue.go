// Package queue implements the in-memory priority review queue for claims
// escalated to human adjudication.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
)

// ReviewQueue holds review items per tenant. Pending items are unique per
// claim; decided items are retained for audit. The queue is the authority on
// item state, with the repository as best-effort durable mirror.
type ReviewQueue struct {
	mu sync.RWMutex

	// tenant -> item ID -> item
	items map[string]map[string]*domain.ReviewItem

	// tenant -> claim ID -> pending item ID
	pendingByClaim map[string]map[string]string

	repo   domain.Repository
	logger *slog.Logger
}

// New creates a review queue. The repository is optional; when set, item
// writes are mirrored to it without affecting queue semantics on failure.
func New(repo domain.Repository, logger *slog.Logger) *ReviewQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewQueue{
		items:          make(map[string]map[string]*domain.ReviewItem),
		pendingByClaim: make(map[string]map[string]string),
		repo:           repo,
		logger:         logger,
	}
}

// PriorityFor derives the review priority from the claim and its policy. A
// claim exceeding its coverage limit or carrying a suspicious fraud verdict
// is always HIGH.
func PriorityFor(claim *domain.Claim, policy *domain.Policy) domain.ReviewPriority {
	if claim.Fraud != nil && claim.Fraud.Suspicious {
		return domain.PriorityHigh
	}
	if policy != nil && claim.Summary != nil &&
		!policy.MaxCoverage.IsZero() && claim.Summary.Amount.GreaterThan(policy.MaxCoverage) {
		return domain.PriorityHigh
	}
	if claim.Fraud != nil && claim.Fraud.RiskLevel == domain.RiskMedium {
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}

// AddForReview enqueues a claim for human review. Idempotent per claim: if a
// pending item for the claim already exists, that item is returned and no
// second one is created.
func (q *ReviewQueue) AddForReview(ctx context.Context, claim *domain.Claim, policy *domain.Policy, reason, automatedDecision string) (*domain.ReviewItem, error) {
	if claim == nil || claim.TenantID == "" {
		return nil, fmt.Errorf("claim with tenantID is required")
	}

	q.mu.Lock()

	if itemID, ok := q.pendingByClaim[claim.TenantID][claim.ID]; ok {
		existing := copyItem(q.items[claim.TenantID][itemID])
		q.mu.Unlock()
		return existing, nil
	}

	item := &domain.ReviewItem{
		ID:                uuid.New().String(),
		TenantID:          claim.TenantID,
		ClaimID:           claim.ID,
		Reason:            reason,
		AutomatedDecision: automatedDecision,
		Priority:          PriorityFor(claim, policy),
		Status:            domain.ReviewPending,
		CreatedAt:         time.Now().UTC(),
	}

	if q.items[claim.TenantID] == nil {
		q.items[claim.TenantID] = make(map[string]*domain.ReviewItem)
	}
	if q.pendingByClaim[claim.TenantID] == nil {
		q.pendingByClaim[claim.TenantID] = make(map[string]string)
	}
	q.items[claim.TenantID][item.ID] = item
	q.pendingByClaim[claim.TenantID][claim.ID] = item.ID

	result := copyItem(item)
	q.mu.Unlock()

	q.persist(ctx, result)

	return result, nil
}

// GetByClaimID returns the most recent review item for a claim, pending or
// decided. Returns nil when the claim was never escalated.
func (q *ReviewQueue) GetByClaimID(ctx context.Context, tenantID, claimID string) (*domain.ReviewItem, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	var latest *domain.ReviewItem
	for _, item := range q.items[tenantID] {
		if item.ClaimID != claimID {
			continue
		}
		if latest == nil || item.CreatedAt.After(latest.CreatedAt) {
			latest = item
		}
	}

	return copyItem(latest), nil
}

// GetNextPending returns the highest-priority pending item, oldest first
// within a priority. Returns nil when the queue is empty.
func (q *ReviewQueue) GetNextPending(ctx context.Context, tenantID string) (*domain.ReviewItem, error) {
	pending, err := q.GetAllPending(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return pending[0], nil
}

// GetAllPending returns all pending items ordered by priority descending,
// then enqueue time ascending.
func (q *ReviewQueue) GetAllPending(ctx context.Context, tenantID string) ([]*domain.ReviewItem, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	q.mu.RLock()
	pending := make([]*domain.ReviewItem, 0, len(q.pendingByClaim[tenantID]))
	for _, itemID := range q.pendingByClaim[tenantID] {
		pending = append(pending, copyItem(q.items[tenantID][itemID]))
	}
	q.mu.RUnlock()

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	return pending, nil
}

// PendingCount returns the number of pending items for a tenant.
func (q *ReviewQueue) PendingCount(tenantID string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pendingByClaim[tenantID])
}

// MarkDecided transitions the claim's pending item to its decided status.
// This is the atomic gate for human decisions: the first caller wins, a
// second decision on the same claim fails with ErrAlreadyDecided.
func (q *ReviewQueue) MarkDecided(ctx context.Context, tenantID, claimID string, decision domain.Decision, feedback string) (*domain.ReviewItem, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDecision, decision)
	}

	q.mu.Lock()

	itemID, ok := q.pendingByClaim[tenantID][claimID]
	if !ok {
		// Distinguish a decided claim from one never queued.
		for _, item := range q.items[tenantID] {
			if item.ClaimID == claimID {
				q.mu.Unlock()
				return nil, domain.ErrAlreadyDecided
			}
		}
		q.mu.Unlock()
		return nil, domain.ErrNotPending
	}

	item := q.items[tenantID][itemID]
	now := time.Now().UTC()
	item.Status = domain.ReviewStatusFor(decision)
	item.Feedback = feedback
	item.DecidedAt = &now
	delete(q.pendingByClaim[tenantID], claimID)

	result := copyItem(item)
	q.mu.Unlock()

	q.persist(ctx, result)

	return result, nil
}

// persist mirrors an item to the repository. Failures are logged, never
// propagated: the queue state already changed.
func (q *ReviewQueue) persist(ctx context.Context, item *domain.ReviewItem) {
	if q.repo == nil {
		return
	}
	if err := q.repo.SaveReviewItem(ctx, item.TenantID, item); err != nil {
		q.logger.Warn("failed to persist review item",
			"tenant_id", item.TenantID,
			"claim_id", item.ClaimID,
			"item_id", item.ID,
			"error", err)
	}
}

func copyItem(item *domain.ReviewItem) *domain.ReviewItem {
	if item == nil {
		return nil
	}
	dup := *item
	if item.DecidedAt != nil {
		at := *item.DecidedAt
		dup.DecidedAt = &at
	}
	return &dup
}
