// Package worker provides async claim intake from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/workflow"
)

// Worker consumes bus-delivered submissions and starts a pipeline for each.
// It is the intake path for tenants that feed claims through messaging
// instead of the HTTP API.
type Worker struct {
	bus    domain.EventBus
	orch   *workflow.Orchestrator
	logger *slog.Logger

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to consume submissions for.
	TenantIDs []string
}

// NewWorker creates an intake worker.
func NewWorker(bus domain.EventBus, orch *workflow.Orchestrator, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		orch:   orch,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the intake topic for each configured tenant.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return fmt.Errorf("at least one tenant is required")
	}

	for _, tenantID := range cfg.TenantIDs {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicClaimIntake, w.handleSubmission)
		if err != nil {
			return fmt.Errorf("failed to subscribe intake for tenant %s: %w", tenantID, err)
		}
		w.subscriptions = append(w.subscriptions, sub)

		w.logger.Info("intake worker started",
			"tenant_id", tenantID,
			"topic", domain.TopicClaimIntake)
	}

	return nil
}

// handleSubmission turns one intake message into a claim. A malformed
// message is logged and dropped; it must not stall the subscription.
func (w *Worker) handleSubmission(ctx context.Context, msg *domain.Message) error {
	var submission domain.SubmissionEvent
	if err := json.Unmarshal(msg.Payload, &submission); err != nil {
		w.logger.Error("malformed intake message",
			"tenant_id", msg.TenantID,
			"error", err)
		return nil
	}

	tenantID := submission.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}
	source := submission.Source
	if source == "" {
		source = "bus"
	}

	claim, err := w.orch.ProcessClaim(ctx, tenantID, submission.RawInput, source)
	if err != nil {
		w.logger.Error("failed to process bus submission",
			"tenant_id", tenantID,
			"error", err)
		return nil
	}

	w.logger.Info("bus submission accepted",
		"tenant_id", tenantID,
		"claim_id", claim.ID)

	return nil
}

// Stop unsubscribes and halts intake. Pipelines already started keep
// running.
func (w *Worker) Stop() {
	w.cancel()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Warn("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil
	w.logger.Info("intake worker stopped")
}
