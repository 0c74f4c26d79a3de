// Package workflow drives the per-claim processing pipeline from submission
// to disposition.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/fraud"
	"github.com/opensource-finance/harrier/internal/queue"
	"github.com/opensource-finance/harrier/internal/recent"
)

// Orchestrator runs the claim pipeline: extract, validate, assess fraud,
// triage, then escalate or finalize. Many claims run concurrently; the
// stages of one claim always run in sequence on a single goroutine, and
// every mutation of a claim happens under its per-claim lock.
type Orchestrator struct {
	repo      domain.Repository
	bus       domain.EventBus
	extractor domain.FactsExtractor
	validator domain.PolicyValidator
	router    domain.TriageRouter

	// fraudEngine is optional; without it the fraud stage is skipped and
	// triage runs on an unassessed claim.
	fraudEngine *fraud.Engine
	tracker     *recent.Tracker

	queue  *queue.ReviewQueue
	locks  *domain.ClaimLocks
	cfg    domain.PipelineConfig
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an orchestrator. The fraud engine and duplicate tracker are
// optional; everything else is required.
func New(
	repo domain.Repository,
	bus domain.EventBus,
	extractor domain.FactsExtractor,
	validator domain.PolicyValidator,
	router domain.TriageRouter,
	fraudEngine *fraud.Engine,
	tracker *recent.Tracker,
	reviewQueue *queue.ReviewQueue,
	locks *domain.ClaimLocks,
	cfg domain.PipelineConfig,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 45 * time.Second
	}
	return &Orchestrator{
		repo:        repo,
		bus:         bus,
		extractor:   extractor,
		validator:   validator,
		router:      router,
		fraudEngine: fraudEngine,
		tracker:     tracker,
		queue:       reviewQueue,
		locks:       locks,
		cfg:         cfg,
		logger:      logger,
		tracer:      otel.Tracer("harrier/workflow"),
	}
}

// ProcessClaim creates a claim and starts its pipeline. It returns as soon
// as the claim is persisted in DRAFT; the stages run on their own goroutine.
// Only malformed input detected here fails the call itself; stage failures
// later degrade the claim to FAILED without surfacing to the submitter.
func (o *Orchestrator) ProcessClaim(ctx context.Context, tenantID, rawInput, source string) (*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if strings.TrimSpace(rawInput) == "" {
		return nil, fmt.Errorf("claim input is empty")
	}
	if source == "" {
		source = "api"
	}

	claim := domain.NewClaim(uuid.New().String(), tenantID, rawInput, source)

	if err := o.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		return nil, fmt.Errorf("failed to persist claim: %w", err)
	}

	o.publish(ctx, domain.TopicClaimSubmitted, &domain.ClaimEvent{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		ClaimID:    claim.ID,
		Stage:      "submitted",
		Status:     claim.Status,
		OccurredAt: time.Now().UTC(),
	})

	go o.runPipeline(claim)

	return claim, nil
}

// runPipeline executes the stages for one claim in strict order. The
// submitting request's context is gone by now; each stage gets its own
// bounded deadline instead.
func (o *Orchestrator) runPipeline(claim *domain.Claim) {
	ctx, span := o.tracer.Start(context.Background(), "claim.pipeline",
		trace.WithAttributes(
			attribute.String("tenant.id", claim.TenantID),
			attribute.String("claim.id", claim.ID),
			attribute.String("claim.source", claim.Source),
		))
	defer span.End()

	extraction := o.runExtraction(ctx, claim)
	if extraction == nil {
		return
	}

	validation := o.runValidation(ctx, claim)
	if validation == nil {
		return
	}

	policy := o.resolvePolicy(ctx, claim, validation)

	if o.fraudEngine != nil {
		if !o.runFraudAssessment(ctx, claim, policy) {
			return
		}
	}

	route := o.runTriage(ctx, claim)
	if route == nil {
		return
	}

	reason, escalate := o.escalationReason(claim, extraction, validation, route)
	span.SetAttributes(
		attribute.String("claim.route", route.Route),
		attribute.Bool("claim.escalated", escalate),
	)

	if escalate {
		o.escalate(ctx, claim, policy, route, reason)
		return
	}

	o.finalize(ctx, claim)
}

func (o *Orchestrator) runExtraction(ctx context.Context, claim *domain.Claim) *domain.ExtractionResult {
	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	result, err := o.extractor.Extract(stageCtx, claim)
	if err != nil {
		o.failClaim(ctx, claim, "extraction", err)
		return nil
	}

	err = o.advance(ctx, claim, domain.StatusFactsExtracted, func() {
		claim.SetSummary(result.Summary)
	})
	if err != nil {
		o.failClaim(ctx, claim, "extraction", err)
		return nil
	}

	o.publish(ctx, domain.TopicFactsExtracted, &domain.ClaimEvent{
		ID:         uuid.New().String(),
		TenantID:   claim.TenantID,
		ClaimID:    claim.ID,
		Stage:      "extraction",
		Status:     claim.Status,
		OccurredAt: time.Now().UTC(),
		Summary:    result.Summary,
	})

	return result
}

func (o *Orchestrator) runValidation(ctx context.Context, claim *domain.Claim) *domain.ValidationResult {
	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	result, err := o.validator.Validate(stageCtx, claim)
	if err != nil {
		o.failClaim(ctx, claim, "validation", err)
		return nil
	}

	// An invalid or ambiguous result is still a completed stage; it feeds
	// the escalation decision rather than failing the pipeline.
	if err := o.advance(ctx, claim, domain.StatusPolicyValidated, nil); err != nil {
		o.failClaim(ctx, claim, "validation", err)
		return nil
	}

	o.publish(ctx, domain.TopicPolicyValidated, &domain.ClaimEvent{
		ID:         uuid.New().String(),
		TenantID:   claim.TenantID,
		ClaimID:    claim.ID,
		Stage:      "validation",
		Status:     claim.Status,
		OccurredAt: time.Now().UTC(),
		Validation: result,
	})

	return result
}

func (o *Orchestrator) resolvePolicy(ctx context.Context, claim *domain.Claim, validation *domain.ValidationResult) *domain.Policy {
	if validation.PolicyID == "" {
		return nil
	}
	policy, err := o.repo.GetPolicy(ctx, claim.TenantID, validation.PolicyID)
	if err != nil {
		o.logger.Warn("failed to load policy for assessment",
			"tenant_id", claim.TenantID,
			"claim_id", claim.ID,
			"policy_id", validation.PolicyID,
			"error", err)
		return nil
	}
	return policy
}

func (o *Orchestrator) runFraudAssessment(ctx context.Context, claim *domain.Claim, policy *domain.Policy) bool {
	var dupCount int64 = 1
	if o.tracker != nil {
		count, err := o.tracker.Observe(ctx, claim.TenantID, claim.Summary)
		if err != nil {
			o.logger.Warn("duplicate tracking unavailable",
				"tenant_id", claim.TenantID,
				"claim_id", claim.ID,
				"error", err)
		} else {
			dupCount = count
		}
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	assessment, err := o.fraudEngine.Assess(stageCtx, claim, fraud.RuleInput{
		Summary:        claim.Summary,
		Policy:         policy,
		DuplicateCount: dupCount,
	})
	if err != nil {
		o.failClaim(ctx, claim, "fraud_assessment", err)
		return false
	}

	// The fraud verdict has no lifecycle state of its own; it rides on the
	// claim between POLICY_VALIDATED and TRIAGED.
	err = o.advance(ctx, claim, "", func() {
		claim.SetFraudAssessment(assessment)
	})
	if err != nil {
		o.failClaim(ctx, claim, "fraud_assessment", err)
		return false
	}

	o.publish(ctx, domain.TopicFraudScored, &domain.ClaimEvent{
		ID:         uuid.New().String(),
		TenantID:   claim.TenantID,
		ClaimID:    claim.ID,
		Stage:      "fraud_assessment",
		Status:     claim.Status,
		OccurredAt: time.Now().UTC(),
		Fraud:      assessment,
	})

	return true
}

func (o *Orchestrator) runTriage(ctx context.Context, claim *domain.Claim) *domain.TriageResult {
	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	result, err := o.router.Route(stageCtx, claim)
	if err != nil {
		o.failClaim(ctx, claim, "triage", err)
		return nil
	}

	if err := o.advance(ctx, claim, domain.StatusTriaged, nil); err != nil {
		o.failClaim(ctx, claim, "triage", err)
		return nil
	}

	return result
}

// escalationReason evaluates the escalation criteria in a fixed order and
// returns the first matching reason.
func (o *Orchestrator) escalationReason(claim *domain.Claim, extraction *domain.ExtractionResult, validation *domain.ValidationResult, route *domain.TriageResult) (string, bool) {
	if route.Route == domain.RouteInvestigate {
		return route.Reason, true
	}
	if claim.Fraud != nil && claim.Fraud.Suspicious {
		return fmt.Sprintf("fraud risk level %s", claim.Fraud.RiskLevel), true
	}
	if !o.cfg.LargeAmountThreshold.IsZero() && claim.Summary != nil &&
		claim.Summary.Amount.GreaterThan(o.cfg.LargeAmountThreshold) {
		return fmt.Sprintf("claimed amount %s exceeds review threshold %s", claim.Summary.Amount, o.cfg.LargeAmountThreshold), true
	}
	if !validation.Valid {
		return "policy validation failed: " + strings.Join(validation.Reasons, "; "), true
	}
	if validation.Ambiguous {
		return "policy validation ambiguous: " + strings.Join(validation.Reasons, "; "), true
	}
	if extraction.Partial {
		return "extraction produced a partial summary", true
	}
	if o.cfg.MinExtractionConfidence > 0 && extraction.Confidence < o.cfg.MinExtractionConfidence {
		return fmt.Sprintf("extraction confidence %.2f below minimum %.2f", extraction.Confidence, o.cfg.MinExtractionConfidence), true
	}
	return "", false
}

func (o *Orchestrator) escalate(ctx context.Context, claim *domain.Claim, policy *domain.Policy, route *domain.TriageResult, reason string) {
	item, err := o.queue.AddForReview(ctx, claim, policy, reason, route.Route)
	if err != nil {
		o.failClaim(ctx, claim, "escalation", err)
		return
	}

	if err := o.advance(ctx, claim, domain.StatusPendingReview, nil); err != nil {
		o.failClaim(ctx, claim, "escalation", err)
		return
	}

	o.publish(ctx, domain.TopicRoutedForReview, &domain.ClaimEvent{
		ID:           uuid.New().String(),
		TenantID:     claim.TenantID,
		ClaimID:      claim.ID,
		Stage:        "escalation",
		Status:       claim.Status,
		OccurredAt:   time.Now().UTC(),
		ReviewItemID: item.ID,
		Reason:       reason,
	})

	o.logger.Info("claim escalated for human review",
		"tenant_id", claim.TenantID,
		"claim_id", claim.ID,
		"priority", item.Priority.String(),
		"reason", reason)
}

func (o *Orchestrator) finalize(ctx context.Context, claim *domain.Claim) {
	if err := o.advance(ctx, claim, domain.StatusProcessing, nil); err != nil {
		o.failClaim(ctx, claim, "finalization", err)
		return
	}

	o.publish(ctx, domain.TopicClaimFinalized, &domain.ClaimEvent{
		ID:         uuid.New().String(),
		TenantID:   claim.TenantID,
		ClaimID:    claim.ID,
		Stage:      "finalization",
		Status:     claim.Status,
		OccurredAt: time.Now().UTC(),
	})

	o.logger.Info("claim finalized",
		"tenant_id", claim.TenantID,
		"claim_id", claim.ID,
		"status", claim.Status)
}

// errClaimSuperseded halts a pipeline whose claim was transitioned by
// another writer, typically a human decision landing between two stages.
var errClaimSuperseded = errors.New("claim superseded by a concurrent transition")

// advance mutates and transitions the claim under its lock, then persists
// it. An empty next status persists the mutation without a transition.
//
// The lock alone only orders the saves: the review agent works on a freshly
// loaded copy while this goroutine carries its own. The stored status is
// re-checked under the lock so a human decision that moved the claim is
// never overwritten by the pipeline's older view of it.
func (o *Orchestrator) advance(ctx context.Context, claim *domain.Claim, next domain.ClaimStatus, mutate func()) error {
	o.locks.Lock(claim.ID)
	defer o.locks.Unlock(claim.ID)

	stored, err := o.repo.GetClaim(ctx, claim.TenantID, claim.ID)
	if err != nil {
		return fmt.Errorf("failed to reload claim: %w", err)
	}
	if stored.Status != claim.Status {
		return fmt.Errorf("%w: stored %s, pipeline holds %s", errClaimSuperseded, stored.Status, claim.Status)
	}

	if mutate != nil {
		mutate()
	}
	if next != "" {
		if err := claim.TransitionTo(next); err != nil {
			return err
		}
	}
	return o.repo.SaveClaim(ctx, claim.TenantID, claim)
}

// failClaim degrades the claim to FAILED and halts its pipeline. Never
// propagates: a bad claim must not take the service down with it. A claim
// another writer already moved is left alone; its pipeline just stops.
func (o *Orchestrator) failClaim(ctx context.Context, claim *domain.Claim, stage string, cause error) {
	if errors.Is(cause, errClaimSuperseded) {
		o.logger.Info("pipeline halted, claim was decided elsewhere",
			"tenant_id", claim.TenantID,
			"claim_id", claim.ID,
			"stage", stage)
		return
	}

	o.locks.Lock(claim.ID)
	if stored, err := o.repo.GetClaim(ctx, claim.TenantID, claim.ID); err == nil && stored.Status != claim.Status {
		o.locks.Unlock(claim.ID)
		o.logger.Info("pipeline halted, claim was decided elsewhere",
			"tenant_id", claim.TenantID,
			"claim_id", claim.ID,
			"stage", stage)
		return
	}
	claim.Fail(stage, cause)
	if err := o.repo.SaveClaim(ctx, claim.TenantID, claim); err != nil {
		o.logger.Error("failed to persist failed claim",
			"tenant_id", claim.TenantID,
			"claim_id", claim.ID,
			"error", err)
	}
	o.locks.Unlock(claim.ID)

	o.publish(ctx, domain.TopicClaimFailed, &domain.ClaimEvent{
		ID:         uuid.New().String(),
		TenantID:   claim.TenantID,
		ClaimID:    claim.ID,
		Stage:      stage,
		Status:     claim.Status,
		OccurredAt: time.Now().UTC(),
		Error:      claim.LastError,
	})

	o.logger.Error("claim pipeline failed",
		"tenant_id", claim.TenantID,
		"claim_id", claim.ID,
		"stage", stage,
		"error", cause)
}

func (o *Orchestrator) publish(ctx context.Context, topic string, event *domain.ClaimEvent) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, event.TenantID, topic, payload); err != nil {
		o.logger.Warn("failed to publish claim event",
			"tenant_id", event.TenantID,
			"claim_id", event.ClaimID,
			"topic", topic,
			"error", err)
	}
}
