package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/queue"
)

// Agent applies human decisions to claims. The queue's MarkDecided is the
// atomic gate: once it succeeds for a decision, the same decision path never
// runs twice for that claim.
type Agent struct {
	queue    *queue.ReviewQueue
	feedback *FeedbackLog
	repo     domain.Repository
	bus      domain.EventBus
	locks    *domain.ClaimLocks
	logger   *slog.Logger
}

// NewAgent creates a review agent.
func NewAgent(q *queue.ReviewQueue, feedback *FeedbackLog, repo domain.Repository, bus domain.EventBus, locks *domain.ClaimLocks, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		queue:    q,
		feedback: feedback,
		repo:     repo,
		bus:      bus,
		locks:    locks,
		logger:   logger,
	}
}

// ProcessHumanDecision adjudicates a pending review item. The sequence is
// fixed: claim the item, append the feedback record, then force the claim
// into its post-review state. An approved or overridden claim resumes
// automated processing; a rejected claim terminates.
func (a *Agent) ProcessHumanDecision(ctx context.Context, tenantID, claimID string, decision domain.Decision, feedbackText string) (*domain.ReviewItem, error) {
	item, err := a.queue.MarkDecided(ctx, tenantID, claimID, decision, feedbackText)
	if err != nil {
		return nil, err
	}

	// The gate already flipped; a feedback write failure must not leave
	// the claim stuck in PENDING_REVIEW.
	if _, err := a.feedback.Record(ctx, tenantID, claimID, decision, feedbackText); err != nil {
		a.logger.Error("failed to append feedback record",
			"tenant_id", tenantID,
			"claim_id", claimID,
			"decision", decision,
			"error", err)
	}

	if err := a.applyToClaim(ctx, tenantID, claimID, decision); err != nil {
		return nil, err
	}

	a.publishDecision(ctx, item, decision)

	a.logger.Info("human decision processed",
		"tenant_id", tenantID,
		"claim_id", claimID,
		"decision", decision,
		"priority", item.Priority.String())

	return item, nil
}

// GetReviewStatistics returns queue depth plus decision rates over the full
// feedback history.
func (a *Agent) GetReviewStatistics(ctx context.Context, tenantID string) (*domain.ReviewStatistics, error) {
	return a.feedback.Stats(ctx, tenantID, a.queue.PendingCount(tenantID))
}

// applyToClaim forces the claim out of PENDING_REVIEW under its lock.
func (a *Agent) applyToClaim(ctx context.Context, tenantID, claimID string, decision domain.Decision) error {
	a.locks.Lock(claimID)
	defer a.locks.Unlock(claimID)

	claim, err := a.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		return fmt.Errorf("failed to load claim %s: %w", claimID, err)
	}

	if err := claim.TransitionTo(domain.ClaimStatusFor(decision)); err != nil {
		return err
	}

	if err := a.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		return fmt.Errorf("failed to save claim %s: %w", claimID, err)
	}

	return nil
}

func (a *Agent) publishDecision(ctx context.Context, item *domain.ReviewItem, decision domain.Decision) {
	if a.bus == nil {
		return
	}

	event := domain.ClaimEvent{
		ID:           uuid.New().String(),
		TenantID:     item.TenantID,
		ClaimID:      item.ClaimID,
		Stage:        "human_review",
		Status:       domain.ClaimStatusFor(decision),
		OccurredAt:   time.Now().UTC(),
		ReviewItemID: item.ID,
		Decision:     decision,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	if err := a.bus.Publish(ctx, item.TenantID, domain.TopicHumanDecisionRecorded, payload); err != nil {
		a.logger.Warn("failed to publish human decision event",
			"tenant_id", item.TenantID,
			"claim_id", item.ClaimID,
			"error", err)
	}
}
