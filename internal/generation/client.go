// Package generation talks to the hosted language model that writes the
// invitation component.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gresham24/invite-ai/internal/config"
	"github.com/Gresham24/invite-ai/internal/models"
)

// ErrGenerationFailed is returned for any non-success outcome of a provider
// call. Callers surface it as a generic failure without provider detail.
var ErrGenerationFailed = errors.New("generation failed")

// DefaultMaxOutputTokens caps completion length when the request leaves it unset.
const DefaultMaxOutputTokens = 4000

// Request is one completion request
type Request struct {
	Prompt          string
	MaxOutputTokens int
}

// Response is the completion text plus the provider-reported usage. Text may
// be empty; deciding what an empty completion means is up to the caller.
type Response struct {
	Text  string
	Usage models.Usage
	Model string
}

// Client sends a prompt to a model provider
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// NewFromConfig builds the configured provider client.
func NewFromConfig(cfg *config.Config) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.GenerationTimeout}

	switch cfg.GenerationProvider {
	case "anthropic":
		opts := []AnthropicOption{
			WithAnthropicBaseURL(cfg.AnthropicBaseURL),
			WithAnthropicHTTPClient(httpClient),
		}
		if cfg.GenerationModel != "" {
			opts = append(opts, WithAnthropicModel(cfg.GenerationModel))
		}
		return NewAnthropic(cfg.AnthropicAPIKey, opts...), nil
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.GenerationModel, httpClient), nil
	}
	return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
}

func maxTokens(n int) int {
	if n <= 0 {
		return DefaultMaxOutputTokens
	}
	return n
}
