// Package oracle sends agent prompts to a language model and returns its
// raw text reply. Replies are untrusted and are interpreted by the caller.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/atinylittleshell/nlsh/internal/config"
	"go.uber.org/zap"
)

var ErrMissingAPIKey = errors.New("model API key is not configured")

// Request is one model query.
type Request struct {
	System string
	User   string
}

// Model is a synchronous completion backend.
type Model interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New returns the backend selected by cfg.Provider.
func New(cfg config.ModelConfig, logger *zap.Logger) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: set model.api_key or the provider's API key variable", ErrMissingAPIKey)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg, logger), nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}
