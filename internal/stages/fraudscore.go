package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/llm"
)

const scoringSystemPrompt = `You are a fraud analyst for an insurance carrier. Assess the structured claim below for fraud indicators: inconsistent narratives, staged-incident patterns, inflated amounts, or suspicious timing. Respond with a single JSON object and nothing else:
{"score": 0.0, "risk_factors": ["..."], "confidence": 0.0}
score is the fraud probability in [0,1]. risk_factors lists concrete observations, empty when none. confidence is your certainty in [0,1].`

// ModelScorer produces the probabilistic fraud signal through the
// text-generation backend. Its output is advisory; the fraud engine treats
// it as an untrusted contribution.
type ModelScorer struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewModelScorer creates the scoring collaborator. The provider is required;
// when no backend is configured, the fraud engine runs without a scorer
// instead.
func NewModelScorer(provider llm.Provider, logger *slog.Logger) (*ModelScorer, error) {
	if provider == nil {
		return nil, fmt.Errorf("model scorer requires a text-generation backend")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelScorer{provider: provider, logger: logger}, nil
}

// Score implements domain.FraudScorer.
func (m *ModelScorer) Score(ctx context.Context, claim *domain.Claim) (*domain.FraudSignal, error) {
	if claim.Summary == nil {
		return nil, fmt.Errorf("claim %s has no summary to score", claim.ID)
	}

	summaryJSON, err := json.Marshal(claim.Summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}

	resp, err := m.provider.Generate(ctx, llm.GenerateRequest{
		Prompt:       string(summaryJSON),
		SystemPrompt: scoringSystemPrompt,
		Temperature:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("fraud scoring request failed: %w", err)
	}

	block, err := jsonBlock(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("fraud scoring response: %w", err)
	}

	var payload struct {
		Score       float64  `json:"score"`
		RiskFactors []string `json:"risk_factors"`
		Confidence  float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse fraud scoring response: %w", err)
	}

	return &domain.FraudSignal{
		Score:       payload.Score,
		RiskFactors: payload.RiskFactors,
		Confidence:  payload.Confidence,
	}, nil
}
