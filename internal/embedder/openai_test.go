package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEmbedder_CreateEmbedding(t *testing.T) {
	t.Parallel()

	var got openaiEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization: got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embedding-3-small", Dimensions: 3})
	vec, err := e.CreateEmbedding(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("CreateEmbedding: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vector: got %v", vec)
	}
	if got.Input != "hello world" || got.Model != "text-embedding-3-small" || got.Dimensions != 3 {
		t.Errorf("request body: got %+v", got)
	}
	if e.Model() != "text-embedding-3-small" {
		t.Errorf("Model(): got %q", e.Model())
	}
}

func TestOpenAIEmbedder_AzureURLAndHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/embed-dep/embeddings" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if v := r.URL.Query().Get("api-version"); v != "2025-04-01-preview" {
			t.Errorf("api-version: got %q", v)
		}
		if k := r.Header.Get("api-key"); k != "az-key" {
			t.Errorf("api-key: got %q", k)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1],"index":0}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL + "/openai",
		APIKey:     "az-key",
		Model:      "embed-dep",
		Azure:      true,
		APIVersion: "2025-04-01-preview",
	})
	if _, err := e.CreateEmbedding(context.Background(), "x"); err != nil {
		t.Fatalf("CreateEmbedding: %v", err)
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	_, err := e.CreateEmbedding(context.Background(), "x")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != "rate limit reached" {
		t.Errorf("APIError: got %+v", apiErr)
	}
	if !apiErr.Retryable() {
		t.Error("429 should be retryable")
	}
}

func TestOpenAIEmbedder_EmptyData(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if _, err := e.CreateEmbedding(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestOpenAIEmbedder_HealthCheck(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
