package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/ragpipe-go/internal/embedder"
)

// EmbeddingPinger probes the embedding backend with its zero-cost health
// endpoint (model listing), never with an embedding call.
type EmbeddingPinger struct {
	// check is the backend's health probe.
	check embedder.HealthChecker
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewEmbeddingPinger constructs an EmbeddingPinger for the given backend.
func NewEmbeddingPinger(hc embedder.HealthChecker, name string) *EmbeddingPinger {
	return &EmbeddingPinger{check: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbeddingPinger) Name() string { return "embedding:" + p.name }

// Ping runs the backend health check.
func (p *EmbeddingPinger) Ping(ctx context.Context) error {
	if err := p.check.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
