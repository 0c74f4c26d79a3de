// Package stages implements the per-claim pipeline collaborators: facts
// extraction, policy validation, model-based fraud scoring, and triage
// routing.
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/llm"
	"github.com/shopspring/decimal"
)

const extractionSystemPrompt = `You are an insurance claims intake analyst. Extract the structured facts from the claim submission below. Respond with a single JSON object and nothing else, using this shape:
{"claim_type": "auto|property|health|liability|other", "incident_date": "YYYY-MM-DD", "reported_date": "YYYY-MM-DD", "amount": "1234.56", "currency": "USD", "location": "", "description": "", "claimant": {"name": "", "email": "", "phone": ""}, "policy_number": "", "confidence": 0.0}
Use empty strings for facts the submission does not state. Set confidence to your overall certainty in [0,1]. Never invent a policy number or amount.`

// Extractor turns a claim's raw input into a structured summary. Structured
// JSON submissions are parsed directly; free-text submissions go through the
// text-generation backend.
type Extractor struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewExtractor creates the extraction collaborator. A nil provider restricts
// intake to structured JSON submissions.
func NewExtractor(provider llm.Provider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{provider: provider, logger: logger}
}

// Extract implements domain.FactsExtractor.
func (e *Extractor) Extract(ctx context.Context, claim *domain.Claim) (*domain.ExtractionResult, error) {
	raw := strings.TrimSpace(claim.RawInput)
	if raw == "" {
		return nil, fmt.Errorf("claim %s has empty input", claim.ID)
	}

	var payload extractionPayload
	var confidence float64

	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse structured submission: %w", err)
		}
		confidence = payload.Confidence
		if confidence == 0 {
			// Structured intake carries no model uncertainty.
			confidence = 0.95
		}
	} else {
		if e.provider == nil {
			return nil, fmt.Errorf("free-text submission requires a text-generation backend")
		}
		p, err := e.extractWithModel(ctx, raw)
		if err != nil {
			return nil, err
		}
		payload = *p
		confidence = payload.Confidence
	}

	summary, err := payload.toSummary()
	if err != nil {
		return nil, fmt.Errorf("extraction produced an invalid summary: %w", err)
	}

	return &domain.ExtractionResult{
		Summary:    summary,
		Confidence: confidence,
		Partial:    len(summary.MissingCriticalFields()) > 0,
	}, nil
}

func (e *Extractor) extractWithModel(ctx context.Context, raw string) (*extractionPayload, error) {
	resp, err := e.provider.Generate(ctx, llm.GenerateRequest{
		Prompt:       raw,
		SystemPrompt: extractionSystemPrompt,
		Temperature:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	block, err := jsonBlock(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("extraction response: %w", err)
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}

	return &payload, nil
}

// extractionPayload is the wire shape shared by structured submissions and
// model responses.
type extractionPayload struct {
	ClaimType    string      `json:"claim_type"`
	IncidentDate string      `json:"incident_date"`
	ReportedDate string      `json:"reported_date"`
	Amount       json.Number `json:"amount"`
	Currency     string      `json:"currency"`
	Location     string      `json:"location"`
	Description  string      `json:"description"`
	Claimant     struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"claimant"`
	PolicyNumber string   `json:"policy_number"`
	Tags         []string `json:"tags"`
	Documents    []string `json:"documents"`
	Confidence   float64  `json:"confidence"`
}

func (p *extractionPayload) toSummary() (*domain.ClaimSummary, error) {
	amount := decimal.Zero
	if p.Amount.String() != "" {
		var err error
		amount, err = decimal.NewFromString(p.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", p.Amount.String(), err)
		}
	}

	incident, err := parseDate(p.IncidentDate)
	if err != nil {
		return nil, fmt.Errorf("invalid incident_date: %w", err)
	}
	reported, err := parseDate(p.ReportedDate)
	if err != nil {
		return nil, fmt.Errorf("invalid reported_date: %w", err)
	}
	if reported.IsZero() {
		reported = time.Now().UTC()
	}

	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = "USD"
	}

	return domain.NewClaimSummary(domain.ClaimSummary{
		ClaimType:    strings.ToLower(strings.TrimSpace(p.ClaimType)),
		IncidentDate: incident,
		ReportedDate: reported,
		Amount:       amount,
		Currency:     currency,
		Location:     strings.TrimSpace(p.Location),
		Description:  strings.TrimSpace(p.Description),
		Claimant: domain.Claimant{
			Name:  strings.TrimSpace(p.Claimant.Name),
			Email: strings.TrimSpace(p.Claimant.Email),
			Phone: strings.TrimSpace(p.Claimant.Phone),
		},
		PolicyNumber: strings.TrimSpace(p.PolicyNumber),
		Tags:         p.Tags,
		Documents:    p.Documents,
	})
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// jsonBlock extracts the JSON object from model output that may wrap it in
// prose or markdown fences.
func jsonBlock(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object in model output")
	}
	return text[start : end+1], nil
}
