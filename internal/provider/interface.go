// Package provider constructs the Eino chat model used by the LLM reranker.
// MODEL_PROVIDER selects the backend once at startup; every backend is
// returned behind the same [model.BaseChatModel] interface.
// Supported backends: Ollama, OpenAI, Azure OpenAI, Volcengine Ark, Google Gemini.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds the Ollama connection settings.
type ProviderOllama struct {
	// Host is the Ollama base URL (OLLAMA_HOST).
	Host string
	// Model is the chat model tag (OLLAMA_MODEL).
	Model string
}

// ProviderOpenAI holds the OpenAI credentials.
type ProviderOpenAI struct {
	APIKey string
	Model  string
}

// ProviderAzureOpenAI holds the Azure OpenAI deployment settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	// APIVersion is the Azure REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderArk holds the Volcengine Ark settings.
type ProviderArk struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ProviderGemini holds the Gemini AI Studio credentials.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// SharedTuning holds generation parameters applied to every backend that
// supports them.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0-1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is read.
type Config struct {
	Backend     Backend
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini
	Tuning      SharedTuning
}

// Validate checks that the selected backend has the settings it needs. The
// error names the environment variable to set.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		return require(c.Backend,
			field{"OLLAMA_HOST", c.Ollama.Host},
			field{"OLLAMA_MODEL", c.Ollama.Model},
		)
	case BackendOpenAI:
		return require(c.Backend,
			field{"OPENAI_API_KEY", c.OpenAI.APIKey},
			field{"OPENAI_MODEL", c.OpenAI.Model},
		)
	case BackendAzure:
		return require(c.Backend,
			field{"AZURE_OPENAI_API_KEY", c.AzureOpenAI.APIKey},
			field{"AZURE_OPENAI_ENDPOINT", c.AzureOpenAI.Endpoint},
			field{"AZURE_OPENAI_DEPLOYMENT", c.AzureOpenAI.Deployment},
		)
	case BackendArk:
		return require(c.Backend,
			field{"ARK_API_KEY", c.Ark.APIKey},
			field{"ARK_MODEL", c.Ark.Model},
		)
	case BackendGemini:
		return require(c.Backend,
			field{"GOOGLE_API_KEY", c.Gemini.APIKey},
			field{"GEMINI_MODEL", c.Gemini.Model},
		)
	default:
		return fmt.Errorf("provider: unknown backend %q, valid values: ollama, openai, azure, ark, gemini", c.Backend)
	}
}

// ModelName returns the model or deployment the selected backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	}
	return ""
}

type field struct {
	env   string
	value string
}

func require(b Backend, fields ...field) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %s", b, strings.Join(missing, ", "))
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex reasoning model. Those reject temperature and max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
