// Package tracing registers Langfuse as an Eino callback so every chat model
// call made by the LLM reranker is traced.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/ragpipe-go/internal/config"
)

// Config holds the Langfuse connection settings.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	return Config{
		Host:      config.String("LANGFUSE_HOST", "http://localhost:3000"),
		PublicKey: config.String("LANGFUSE_PUBLIC_KEY", ""),
		SecretKey: config.String("LANGFUSE_SECRET_KEY", ""),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup initialises the Langfuse callback handler when cfg is enabled. It
// returns a flush function that must be called before process exit to ensure
// all traces are sent. When Langfuse is not configured the handler and flush
// function are nil and ok is false.
func Setup(cfg Config) (handler callbacks.Handler, flush func(), ok bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	host := cfg.Host
	if host == "" {
		host = "http://localhost:3000"
	}
	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	return handler, flush, true
}

// Install registers the Langfuse handler as a global Eino callback when
// configured and returns the flush function (a no-op when disabled).
func Install(cfg Config) (flush func(), ok bool) {
	handler, flush, ok := Setup(cfg)
	if !ok {
		return func() {}, false
	}
	callbacks.AppendGlobalHandlers(handler)
	return flush, true
}
