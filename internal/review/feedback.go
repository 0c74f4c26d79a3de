// Package review implements the human feedback loop: recording adjudication
// decisions and applying them to claims.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
)

// FeedbackLog is the append-only history of human decisions, persisted
// through the repository. Records are never edited or deleted.
type FeedbackLog struct {
	repo domain.Repository
}

// NewFeedbackLog creates a feedback log over the given repository.
func NewFeedbackLog(repo domain.Repository) *FeedbackLog {
	return &FeedbackLog{repo: repo}
}

// Record appends one human decision to the history.
func (l *FeedbackLog) Record(ctx context.Context, tenantID, claimID string, decision domain.Decision, feedback string) (*domain.FeedbackRecord, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDecision, decision)
	}

	record := &domain.FeedbackRecord{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		ClaimID:    claimID,
		Decision:   decision,
		Feedback:   feedback,
		RecordedAt: time.Now().UTC(),
	}

	if err := l.repo.SaveFeedback(ctx, tenantID, record); err != nil {
		return nil, fmt.Errorf("failed to record feedback: %w", err)
	}

	return record, nil
}

// History returns all recorded decisions for a tenant, oldest first.
func (l *FeedbackLog) History(ctx context.Context, tenantID string) ([]*domain.FeedbackRecord, error) {
	return l.repo.ListFeedback(ctx, tenantID)
}

// Stats summarizes the full decision history. Rates are ratios over total
// reviews and zero when the history is empty; no division by zero.
func (l *FeedbackLog) Stats(ctx context.Context, tenantID string, pendingCount int) (*domain.ReviewStatistics, error) {
	records, err := l.repo.ListFeedback(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback history: %w", err)
	}

	stats := &domain.ReviewStatistics{
		PendingCount: pendingCount,
		TotalReviews: len(records),
	}
	if len(records) == 0 {
		return stats, nil
	}

	var approved, rejected, overridden int
	for _, r := range records {
		switch r.Decision {
		case domain.DecisionApproved:
			approved++
		case domain.DecisionRejected:
			rejected++
		case domain.DecisionOverridden:
			overridden++
		}
	}

	total := float64(len(records))
	stats.ApprovalRate = float64(approved) / total
	stats.RejectionRate = float64(rejected) / total
	stats.OverrideRate = float64(overridden) / total

	return stats, nil
}
