package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

// HTTPConfig configures an HTTPReranker.
type HTTPConfig struct {
	// BaseURL is the service root; requests go to BaseURL + "/rerank".
	BaseURL string

	// APIKey is sent as a Bearer token when set.
	APIKey string

	// Model is the rerank model name (e.g. "rerank-english-v3.0").
	Model string

	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client
}

// HTTPReranker calls a Cohere/Jina compatible rerank endpoint.
type HTTPReranker struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPReranker returns an HTTPReranker for cfg.
func NewHTTPReranker(cfg HTTPConfig) *HTTPReranker {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPReranker{cfg: cfg, client: client}
}

// Name implements Reranker.
func (r *HTTPReranker) Name() string { return ProviderHTTP }

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float32 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank implements Reranker. The service scores every passage; settings
// are applied locally so the threshold is honoured whatever the service
// returns.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, passages []rag.Passage, s Settings) (string, error) {
	if len(passages) == 0 {
		return "", nil
	}
	docs := make([]string, len(passages))
	for i, p := range passages {
		docs[i] = p.Text
	}

	body, err := json.Marshal(rerankRequest{Model: r.cfg.Model, Query: query, Documents: docs, TopN: len(docs)})
	if err != nil {
		return "", fmt.Errorf("rerank: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("rerank: %w", ctx.Err())
		}
		return "", fmt.Errorf("rerank: %w: %w", rag.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("rerank: %w: status %d: %s", rag.ErrProvider, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("rerank: %w: decode response: %w", rag.ErrProvider, err)
	}

	scored := make([]rag.Passage, 0, len(out.Results))
	for _, res := range out.Results {
		if res.Index < 0 || res.Index >= len(passages) {
			return "", fmt.Errorf("rerank: %w: result index %d out of range", rag.ErrProvider, res.Index)
		}
		p := passages[res.Index]
		p.Score = res.RelevanceScore
		scored = append(scored, p)
	}
	return FormatContext(Select(scored, s)), nil
}
