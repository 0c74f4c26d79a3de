// Package llm provides the text-generation capability consumed by the
// per-stage processing collaborators.
package llm

import (
	"context"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Provider is a text-generation backend. Stage collaborators build a prompt,
// call Generate, and parse the returned text; network, auth, and timeout
// problems surface as provider errors.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Generate produces text for a prompt.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and
	// accessible.
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for one generation call.
type GenerateRequest struct {
	// Prompt is the user-role content.
	Prompt string

	// SystemPrompt frames the model's role; empty means no system message.
	SystemPrompt string

	// Temperature controls sampling. Stage collaborators run low
	// temperatures for structured output.
	Temperature float32

	// MaxTokens limits the response length; 0 uses the provider default.
	MaxTokens int
}

// GenerateResponse contains the generated text.
type GenerateResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// New creates a provider from configuration. An empty provider name returns
// nil, nil: the pipeline runs with LLM-backed stages disabled.
func New(cfg domain.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
