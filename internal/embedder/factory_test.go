package embedder

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// clearEmbeddingEnv blanks every variable the factory reads.
func clearEmbeddingEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EMBEDDING_PROVIDER", "MODEL_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY",
		"EMBEDDING_ENDPOINT", "EMBEDDING_DIMENSIONS", "OPENAI_API_KEY", "OLLAMA_HOST",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_VERSION", "GOOGLE_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestNewFromEnv_DefaultsToOllama(t *testing.T) {
	clearEmbeddingEnv(t)

	p, err := NewFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	o, ok := p.(*OllamaEmbedder)
	if !ok {
		t.Fatalf("expected *OllamaEmbedder, got %T", p)
	}
	if o.host != "http://localhost:11434" || o.Model() != defaultOllamaModel {
		t.Errorf("ollama defaults: host=%q model=%q", o.host, o.Model())
	}
}

func TestNewFromEnv_InheritsModelProvider(t *testing.T) {
	clearEmbeddingEnv(t)
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-inherited")

	p, err := NewFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	o, ok := p.(*OpenAIEmbedder)
	if !ok {
		t.Fatalf("expected *OpenAIEmbedder, got %T", p)
	}
	if o.apiKey != "sk-inherited" || o.dimensions != defaultOpenAIDimensions {
		t.Errorf("openai: apiKey=%q dims=%d", o.apiKey, o.dimensions)
	}
}

func TestNewFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"openai without key", map[string]string{"EMBEDDING_PROVIDER": "openai"}, "OPENAI_API_KEY"},
		{"azure without endpoint", map[string]string{"EMBEDDING_PROVIDER": "azure", "EMBEDDING_API_KEY": "k"}, "AZURE_OPENAI_ENDPOINT"},
		{"gemini without key", map[string]string{"EMBEDDING_PROVIDER": "gemini"}, "API key"},
		{"unknown backend", map[string]string{"EMBEDDING_PROVIDER": "word2vec"}, "unknown backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEmbeddingEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewFromEnv(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultDimensions(t *testing.T) {
	clearEmbeddingEnv(t)

	if got := DefaultDimensions("ollama"); got != 768 {
		t.Errorf("ollama: got %d", got)
	}
	if got := DefaultDimensions("azure"); got != 1536 {
		t.Errorf("azure: got %d", got)
	}

	t.Setenv("EMBEDDING_DIMENSIONS", "384")
	if got := DefaultDimensions("ollama"); got != 384 {
		t.Errorf("override: got %d", got)
	}
}

func TestValidate(t *testing.T) {
	clearEmbeddingEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "azure")
	t.Setenv("EMBEDDING_API_KEY", "k")

	if err := Validate(slog.Default()); err == nil {
		t.Fatal("expected error for azure without endpoint")
	}

	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("EMBEDDING_MODEL", "gpt-4o")

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	if err := Validate(log); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !strings.Contains(buf.String(), "looks like a chat model") {
		t.Errorf("expected chat model warning, got %q", buf.String())
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"llama3:8b":              true,
		"GPT-4o":                 true,
	}
	for model, want := range cases {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
