// Package config provides YAML-based configuration for ragpipe.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so container deployments can override any
// file value without editing it.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGPIPE_CONFIG environment variable
//  3. ~/.ragpipe/config.yaml
//  4. ./ragpipe.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Embedding configures the embedding provider and its rate limits.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorStore selects and configures the vector store provider.
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Retrieval configures the query-time orchestrator.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Rerank configures the reranking collaborator.
	Rerank RerankConfig `yaml:"rerank"`

	// Model configures the chat model used by the llm reranker.
	Model ModelConfig `yaml:"model"`

	// Ingest configures document chunking.
	Ingest IngestConfig `yaml:"ingest"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (openai, azure, ollama).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Timeout is the per-call deadline (e.g. "15s").
	Timeout string `yaml:"timeout"`
	// Limiter holds the shared rate limiter settings.
	Limiter LimiterConfig `yaml:"limiter"`
}

// LimiterConfig holds the reservoir/concurrency/spacing limiter settings.
type LimiterConfig struct {
	// Reservoir is the number of permits per refill interval.
	Reservoir int `yaml:"reservoir"`
	// RefillInterval is the reservoir window (e.g. "60s").
	RefillInterval string `yaml:"refill_interval"`
	// MaxConcurrent is the in-flight call ceiling.
	MaxConcurrent int `yaml:"max_concurrent"`
	// MinSpacing is the minimum delay between dispatches (e.g. "12ms").
	MinSpacing string `yaml:"min_spacing"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	// Provider selects the store: qdrant, memory, sqlite.
	Provider string `yaml:"provider"`
	// Qdrant holds Qdrant connection settings.
	Qdrant QdrantConfig `yaml:"qdrant"`
	// SQLitePath is the database path for the sqlite point archive.
	SQLitePath string `yaml:"sqlite_path"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// RetrievalConfig holds orchestrator settings.
type RetrievalConfig struct {
	// TopK is the number of passages requested from the vector store.
	TopK int `yaml:"top_k"`
	// Timeout bounds a whole retrieval session (e.g. "60s").
	Timeout string `yaml:"timeout"`
}

// RerankConfig holds reranking collaborator settings.
type RerankConfig struct {
	// Provider selects the reranker: none, http, llm.
	Provider string `yaml:"provider"`
	// URL is the base URL of an HTTP rerank service.
	URL string `yaml:"url"`
	// APIKey is the rerank service key. Prefer env var RERANK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the rerank model name.
	Model string `yaml:"model"`
	// TopN is the default number of passages kept after reranking.
	TopN int `yaml:"top_n"`
	// RelevanceThreshold is the default minimum relevance score.
	RelevanceThreshold float32 `yaml:"relevance_threshold"`
	// MaxPromptTokens bounds the llm reranker prompt.
	MaxPromptTokens int `yaml:"max_prompt_tokens"`
}

// ModelConfig holds chat model settings for the llm reranker.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// Ollama holds Ollama-specific settings.
	Ollama struct {
		Host  string `yaml:"host"`
		Model string `yaml:"model"`
	} `yaml:"ollama"`
	// OpenAI holds OpenAI-specific settings.
	OpenAI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
	// Azure holds Azure OpenAI-specific settings.
	Azure struct {
		APIKey     string `yaml:"api_key"`
		Endpoint   string `yaml:"endpoint"`
		Deployment string `yaml:"deployment"`
		APIVersion string `yaml:"api_version"`
	} `yaml:"azure"`
	// Ark holds Volcengine Ark-specific settings.
	Ark struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"ark"`
	// Gemini holds Google Gemini-specific settings.
	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGPIPE_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the per-IP request rate on /api routes (requests/second).
	RateLimit float32 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst on /api routes.
	RateBurst int `yaml:"rate_burst"`
}

// IngestConfig holds document chunking settings for `ragpipe ingest`.
type IngestConfig struct {
	// ChunkSize is the maximum number of characters per chunk.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the number of characters shared by consecutive chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_TIMEOUT", func(c *Config) string { return c.Embedding.Timeout }},
	{"LIMITER_RESERVOIR", func(c *Config) string { return intStr(c.Embedding.Limiter.Reservoir) }},
	{"LIMITER_REFILL_INTERVAL", func(c *Config) string { return c.Embedding.Limiter.RefillInterval }},
	{"LIMITER_MAX_CONCURRENT", func(c *Config) string { return intStr(c.Embedding.Limiter.MaxConcurrent) }},
	{"LIMITER_MIN_SPACING", func(c *Config) string { return c.Embedding.Limiter.MinSpacing }},
	{"VECTOR_STORE_PROVIDER", func(c *Config) string { return c.VectorStore.Provider }},
	{"QDRANT_HOST", func(c *Config) string { return c.VectorStore.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.VectorStore.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.VectorStore.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.VectorStore.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.VectorStore.Qdrant.TLS) }},
	{"SQLITE_PATH", func(c *Config) string { return c.VectorStore.SQLitePath }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_TIMEOUT", func(c *Config) string { return c.Retrieval.Timeout }},
	{"RERANK_PROVIDER", func(c *Config) string { return c.Rerank.Provider }},
	{"RERANK_URL", func(c *Config) string { return c.Rerank.URL }},
	{"RERANK_API_KEY", func(c *Config) string { return c.Rerank.APIKey }},
	{"RERANK_MODEL", func(c *Config) string { return c.Rerank.Model }},
	{"RERANK_TOP_N", func(c *Config) string { return intStr(c.Rerank.TopN) }},
	{"RERANK_RELEVANCE_THRESHOLD", func(c *Config) string { return float32Str(c.Rerank.RelevanceThreshold) }},
	{"RERANK_MAX_PROMPT_TOKENS", func(c *Config) string { return intStr(c.Rerank.MaxPromptTokens) }},
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"RAGPIPE_HOST", func(c *Config) string { return c.Server.Host }},
	{"RAGPIPE_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGPIPE_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"RAGPIPE_RATE_LIMIT", func(c *Config) string { return float32Str(c.Server.RateLimit) }},
	{"RAGPIPE_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"INGEST_CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingest.ChunkSize) }},
	{"INGEST_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingest.ChunkOverlap) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set; do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGPIPE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ragpipe", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragpipe.yaml"); err == nil {
		return "ragpipe.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
