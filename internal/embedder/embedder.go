// Package embedder provides the embedding providers that turn a single text
// into a dense vector. The OpenAI, Azure OpenAI and Ollama backends talk plain
// HTTP; Gemini goes through the google.golang.org/genai client the chat
// providers already share.
//
// Providers do no rate limiting or timeout handling of their own. Every call
// is expected to go through internal/embedding, which owns both.
package embedder

import (
	"context"
	"fmt"
	"net/http"
)

// Provider converts text into an embedding vector. Implementations must be
// safe for concurrent use.
type Provider interface {
	// CreateEmbedding returns the embedding of text using the provider's
	// configured model.
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Model returns the embedding model name.
	Model() string
}

// HealthChecker is implemented by providers that can report reachability
// without spending tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// APIError is returned when a provider answers with a non-2xx status.
type APIError struct {
	// Provider is the backend label ("openai", "azure", "ollama", "gemini").
	Provider string
	// StatusCode is the HTTP status returned by the backend.
	StatusCode int
	// Message is the backend's error message, or the status text.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s embedder: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether the failure is throttling or a server error.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// statusMessage picks the backend message when present, else the status text.
func statusMessage(code int, msg string) string {
	if msg != "" {
		return msg
	}
	return http.StatusText(code)
}
