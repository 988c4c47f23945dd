package rerank

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/ragpipe-go/internal/config"
	"github.com/54b3r/ragpipe-go/internal/provider"
	"github.com/54b3r/ragpipe-go/internal/rag"
)

// Provider names accepted by New.
const (
	ProviderNone = "none"
	ProviderHTTP = "http"
	ProviderLLM  = "llm"
)

// Config selects and configures a Reranker.
type Config struct {
	// Provider is one of none, http, llm.
	Provider string
	// HTTP configures the http adapter.
	HTTP HTTPConfig
	// MaxPromptTokens bounds the llm adapter's prompt.
	MaxPromptTokens int
	// Model configures the chat model used by the llm adapter.
	Model *provider.Config
}

// ConfigFromEnv reads RERANK_PROVIDER, RERANK_URL, RERANK_API_KEY,
// RERANK_MODEL and RERANK_MAX_PROMPT_TOKENS. The llm adapter takes its chat
// model from the MODEL_PROVIDER settings.
func ConfigFromEnv() Config {
	return Config{
		Provider: strings.ToLower(config.String("RERANK_PROVIDER", ProviderNone)),
		HTTP: HTTPConfig{
			BaseURL: config.String("RERANK_URL", ""),
			APIKey:  config.String("RERANK_API_KEY", ""),
			Model:   config.String("RERANK_MODEL", ""),
		},
		MaxPromptTokens: config.Int("RERANK_MAX_PROMPT_TOKENS", 0),
		Model:           provider.ConfigFromEnv(),
	}
}

// New constructs the Reranker named by cfg.Provider. Unknown names fail
// with rag.ErrValidation.
func New(ctx context.Context, cfg Config) (Reranker, error) {
	switch cfg.Provider {
	case ProviderNone, "":
		return Passthrough{}, nil
	case ProviderHTTP:
		if cfg.HTTP.BaseURL == "" {
			return nil, fmt.Errorf("rerank: RERANK_URL is required for the http reranker: %w", rag.ErrValidation)
		}
		return NewHTTPReranker(cfg.HTTP), nil
	case ProviderLLM:
		if cfg.Model == nil {
			return nil, fmt.Errorf("rerank: llm reranker needs a model config: %w", rag.ErrValidation)
		}
		m, err := provider.New(ctx, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
		return NewLLMReranker(m, cfg.MaxPromptTokens), nil
	default:
		return nil, fmt.Errorf("rerank: unknown provider %q, valid values: none, http, llm: %w", cfg.Provider, rag.ErrValidation)
	}
}
