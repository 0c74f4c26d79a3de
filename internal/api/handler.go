// Package api provides the HTTP interface for claim intake, review, and
// fraud check management.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/fraud"
	"github.com/opensource-finance/harrier/internal/queue"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/review"
	"github.com/opensource-finance/harrier/internal/workflow"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	orch    *workflow.Orchestrator
	agent   *review.Agent
	queue   *queue.ReviewQueue
	checks  *fraud.CustomChecks
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, orch *workflow.Orchestrator, agent *review.Agent, reviewQueue *queue.ReviewQueue, checks *fraud.CustomChecks, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		orch:    orch,
		agent:   agent,
		queue:   reviewQueue,
		checks:  checks,
		version: version,
	}
}

// SubmitClaimRequest is the request body for POST /claims.
type SubmitClaimRequest struct {
	Input  string `json:"input"`
	Source string `json:"source,omitempty"`
}

// SubmitClaim handles POST /claims. The claim is accepted in DRAFT and
// processed asynchronously.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	claim, err := h.orch.ProcessClaim(ctx, tenantID, req.Input, req.Source)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusAccepted, claim)
}

// GetClaim handles GET /claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to load claim", "claim_id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load claim",
		})
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// ListClaims handles GET /claims?status=PENDING_REVIEW.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	status := domain.ClaimStatus(r.URL.Query().Get("status"))
	if status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status query parameter is required",
		})
		return
	}

	claims, err := h.repo.ListClaimsByStatus(ctx, tenantID, status)
	if err != nil {
		slog.Error("failed to list claims", "status", status, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list claims",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"claims": claims,
		"count":  len(claims),
	})
}

// ListPendingReviews handles GET /review/pending.
func (h *Handler) ListPendingReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	items, err := h.queue.GetAllPending(ctx, tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list pending reviews",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// NextPendingReview handles GET /review/next.
func (h *Handler) NextPendingReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	item, err := h.queue.GetNextPending(ctx, tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch next review",
		})
		return
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "review queue is empty",
		})
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// GetReviewItem handles GET /review/claims/{claimID}.
func (h *Handler) GetReviewItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "claimID")

	item, err := h.queue.GetByClaimID(ctx, tenantID, claimID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load review item",
		})
		return
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no review item for claim",
		})
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// DecisionRequest is the request body for POST /review/claims/{claimID}/decision.
type DecisionRequest struct {
	Decision string `json:"decision"`
	Feedback string `json:"feedback,omitempty"`
}

// SubmitDecision handles POST /review/claims/{claimID}/decision.
func (h *Handler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "claimID")

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	item, err := h.agent.ProcessHumanDecision(ctx, tenantID, claimID, domain.Decision(req.Decision), req.Feedback)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownDecision):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, domain.ErrAlreadyDecided):
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "claim already decided",
			})
		case errors.Is(err, domain.ErrNotPending):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no pending review for claim",
			})
		default:
			slog.Error("failed to process decision", "claim_id", claimID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to process decision",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// ReviewStats handles GET /review/stats.
func (h *Handler) ReviewStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	stats, err := h.agent.GetReviewStatistics(ctx, tenantID)
	if err != nil {
		slog.Error("failed to compute review statistics", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute review statistics",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ListFraudChecks handles GET /fraud-checks.
func (h *Handler) ListFraudChecks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	checks, err := h.repo.ListFraudChecks(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list fraud checks", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list fraud checks",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checks": checks,
		"count":  len(checks),
	})
}

// CreateFraudCheckRequest is the request body for POST /fraud-checks.
type CreateFraudCheckRequest struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Expression string  `json:"expression"`
	Weight     float64 `json:"weight"`
	Factor     string  `json:"factor,omitempty"`
	Enabled    bool    `json:"enabled"`
}

// CreateFraudCheck handles POST /fraud-checks. The expression is compiled
// before it reaches storage; a malformed check is rejected outright.
func (h *Handler) CreateFraudCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateFraudCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}
	if req.Weight < 0 || req.Weight > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be between 0 and 1",
		})
		return
	}

	check := &domain.FraudCheckConfig{
		ID:         req.ID,
		TenantID:   tenantID,
		Name:       req.Name,
		Expression: req.Expression,
		Weight:     req.Weight,
		Factor:     req.Factor,
		Enabled:    req.Enabled,
	}
	if check.ID == "" {
		check.ID = uuid.New().String()
	}

	if h.checks != nil {
		if err := h.checks.ValidateCheck(check); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveFraudCheck(ctx, tenantID, check); err != nil {
		slog.Error("failed to save fraud check", "id", check.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save fraud check",
		})
		return
	}

	slog.Info("fraud check created", "id", check.ID, "name", check.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"check":   check,
		"message": "Fraud check created. Call POST /fraud-checks/reload to apply changes.",
	})
}

// ReloadFraudChecks handles POST /fraud-checks/reload: reloads all enabled
// checks from storage into the evaluation engine.
func (h *Handler) ReloadFraudChecks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.checks == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "fraud check engine not available",
		})
		return
	}

	checks, err := h.repo.ListFraudChecks(ctx, tenantID)
	if err != nil {
		slog.Error("failed to load fraud checks", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load fraud checks from storage",
		})
		return
	}

	if err := h.checks.ReloadChecks(checks); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Info("fraud checks reloaded", "count", h.checks.ChecksCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "fraud checks reloaded successfully",
		"count":   h.checks.ChecksCount(),
	})
}

// Health returns service health including storage and cache reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
