package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragpipe-go/internal/embedder"
	"github.com/54b3r/ragpipe-go/internal/embedding"
	"github.com/54b3r/ragpipe-go/internal/ingestion"
	"github.com/54b3r/ragpipe-go/internal/ratelimit"
	"github.com/54b3r/ragpipe-go/internal/rerank"
	"github.com/54b3r/ragpipe-go/internal/retrieval"
	"github.com/54b3r/ragpipe-go/internal/vectorstore"
)

// components is the wired pipeline shared by every command.
type components struct {
	backend     string
	provider    embedder.Provider
	limiter     *ratelimit.Limiter
	client      *embedding.Client
	coordinator *ingestion.Coordinator
	store       vectorstore.Provider
}

// Close releases the vector store.
func (c *components) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// buildComponents resolves the embedding backend, the shared rate limiter
// and the vector store from the environment. reg may be nil when the caller
// does not export metrics.
func buildComponents(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*components, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	backend := embedder.Backend()

	p, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", backend), slog.String("model", p.Model()))

	limiter, err := ratelimit.New(ratelimit.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to initialise rate limiter: %w", err)
	}

	opts := []embedding.Option{embedding.WithTimeout(embedding.TimeoutFromEnv())}
	if reg != nil {
		opts = append(opts, embedding.WithMetrics(embedding.NewMetrics(reg, limiter)))
	}
	client, err := embedding.New(p, limiter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedding client: %w", err)
	}

	store, err := vectorstore.New(ctx, vectorstore.ConfigFromEnv(embedder.DefaultDimensions(backend)))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	log.Info("vector store ready", slog.String("provider", store.Name()))

	return &components{
		backend:     backend,
		provider:    p,
		limiter:     limiter,
		client:      client,
		coordinator: ingestion.NewCoordinator(client, ingestion.WithObserver(ingestion.LogObserver{Log: log})),
		store:       store,
	}, nil
}

// buildOrchestrator wires the retrieval orchestrator on top of c.
func buildOrchestrator(ctx context.Context, c *components, reg prometheus.Registerer) (*retrieval.Orchestrator, error) {
	rcfg := rerank.ConfigFromEnv()
	reranker, err := rerank.New(ctx, rcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise reranker: %w", err)
	}

	opts := []retrieval.Option{
		retrieval.WithSettings(retrieval.StaticSettings(retrieval.SettingsFromEnv())),
		retrieval.WithTimeout(retrieval.TimeoutFromEnv()),
	}
	if reg != nil {
		opts = append(opts, retrieval.WithMetrics(retrieval.NewMetrics(reg)))
	}
	o, err := retrieval.New(c.client, c.store, reranker, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise orchestrator: %w", err)
	}
	return o, nil
}

// closeWith folds the Close error of c into err.
func closeWith(c *components, err *error) {
	if cerr := c.Close(); cerr != nil {
		*err = errors.Join(*err, fmt.Errorf("close vector store: %w", cerr))
	}
}
