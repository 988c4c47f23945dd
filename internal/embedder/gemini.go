package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder implements Provider using the Gemini EmbedContent API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int32
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google AI Studio key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-004").
	Model string
	// Dimensions truncates the output vector (0 = model default).
	Dimensions int
}

// NewGeminiEmbedder constructs a GeminiEmbedder backed by a genai client.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: cfg.Model, dimensions: int32(cfg.Dimensions)}, nil
}

// Model returns the configured model name.
func (e *GeminiEmbedder) Model() string { return e.model }

// CreateEmbedding returns the embedding of a single text.
func (e *GeminiEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var cfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		dims := e.dimensions
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: embed content: %w", err)
	}
	if len(resp.Embeddings) != 1 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embedder: expected 1 embedding, got %d", len(resp.Embeddings))
	}
	return resp.Embeddings[0].Values, nil
}

// HealthCheck fetches the model descriptor, which costs no tokens.
func (e *GeminiEmbedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.Models.Get(ctx, e.model, nil); err != nil {
		return fmt.Errorf("gemini embedder: get model: %w", err)
	}
	return nil
}
