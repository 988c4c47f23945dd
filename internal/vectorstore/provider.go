// Package vectorstore persists embeddings as vector points and queries them
// by similarity. The concrete store is chosen once, at configuration load,
// by [New]:
//
//	qdrant  Qdrant over gRPC; the production store
//	memory  in-process cosine search; tests and single-node demos
//	sqlite  durable point archive without a similarity index
//
// Every store namespaces points by user: Query and Delete only ever see the
// caller's own points.
package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/ragpipe-go/internal/config"
	"github.com/54b3r/ragpipe-go/internal/rag"
)

// Provider names accepted by New.
const (
	ProviderQdrant = "qdrant"
	ProviderMemory = "memory"
	ProviderSQLite = "sqlite"
)

// Provider is the polymorphic vector store. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Upsert writes one point per embedding into userID's namespace, replacing
	// any point previously written for the same embedding id. It returns the
	// number of points written.
	Upsert(ctx context.Context, userID string, embeddings []rag.Embedding) (int, error)

	// Query returns up to topK of userID's passages ordered by descending
	// similarity to vector. Stores without a similarity path return
	// rag.ErrNotImplemented.
	Query(ctx context.Context, userID string, vector []float32, topK int) (*rag.QueryResult, error)

	// Delete removes userID's points whose document name or url matches the
	// ones set on file. At least one of file.Name and file.URL is required.
	// It returns the number of points removed.
	Delete(ctx context.Context, userID string, file rag.File) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Config selects and configures a Provider.
type Config struct {
	// Provider is one of qdrant, memory, sqlite.
	Provider string
	// Qdrant holds the qdrant settings.
	Qdrant QdrantConfig
	// SQLitePath is the sqlite database file. ":memory:" is accepted.
	SQLitePath string
}

// ConfigFromEnv builds a Config from VECTOR_STORE_PROVIDER, QDRANT_* and
// SQLITE_PATH. vectorSize is used when creating a missing qdrant collection.
func ConfigFromEnv(vectorSize int) Config {
	return Config{
		Provider: strings.ToLower(config.String("VECTOR_STORE_PROVIDER", ProviderQdrant)),
		Qdrant: QdrantConfig{
			Host:       config.String("QDRANT_HOST", "localhost"),
			Port:       config.Int("QDRANT_PORT", 6334),
			Collection: config.String("QDRANT_COLLECTION", "ragpipe"),
			VectorSize: uint64(vectorSize),
			APIKey:     config.String("QDRANT_API_KEY", ""),
			UseTLS:     config.Bool("QDRANT_TLS", false),
		},
		SQLitePath: config.String("SQLITE_PATH", ""),
	}
}

// New constructs the Provider named by cfg.Provider. Unknown names fail
// with rag.ErrValidation.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderQdrant:
		return NewQdrantStore(ctx, &cfg.Qdrant)
	case ProviderMemory:
		return NewMemoryStore(), nil
	case ProviderSQLite:
		path := cfg.SQLitePath
		if path == "" {
			p, err := DefaultSQLitePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("vectorstore: unknown provider %q, valid values are: qdrant, memory, sqlite: %w", cfg.Provider, rag.ErrValidation)
	}
}
