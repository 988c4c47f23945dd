package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

func TestNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem, err := New(ctx, Config{Provider: ProviderMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if mem.Name() != ProviderMemory {
		t.Errorf("memory name: got %q", mem.Name())
	}

	sq, err := New(ctx, Config{Provider: ProviderSQLite, SQLitePath: filepath.Join(t.TempDir(), "points.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	if sq.Name() != ProviderSQLite {
		t.Errorf("sqlite name: got %q", sq.Name())
	}

	if _, err := New(ctx, Config{Provider: "pinecone"}); !errors.Is(err, rag.ErrValidation) {
		t.Errorf("unknown provider: want ErrValidation, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("VECTOR_STORE_PROVIDER", "Memory")
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_PORT", "7334")
	t.Setenv("QDRANT_COLLECTION", "")
	t.Setenv("QDRANT_TLS", "true")

	cfg := ConfigFromEnv(768)
	if cfg.Provider != ProviderMemory {
		t.Errorf("provider: got %q", cfg.Provider)
	}
	if cfg.Qdrant.Host != "qdrant.internal" || cfg.Qdrant.Port != 7334 {
		t.Errorf("qdrant addr: got %s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)
	}
	if cfg.Qdrant.Collection != "ragpipe" {
		t.Errorf("collection default: got %q", cfg.Qdrant.Collection)
	}
	if cfg.Qdrant.VectorSize != 768 || !cfg.Qdrant.UseTLS {
		t.Errorf("qdrant: got size=%d tls=%v", cfg.Qdrant.VectorSize, cfg.Qdrant.UseTLS)
	}
}

func TestPointID(t *testing.T) {
	t.Parallel()

	a := PointID("u1", "doc#k#1")
	if a != PointID("u1", "doc#k#1") {
		t.Error("point id must be deterministic")
	}
	if a == PointID("u2", "doc#k#1") {
		t.Error("point id must differ across users")
	}
	if a == PointID("u1", "doc#k#2") {
		t.Error("point id must differ across embeddings")
	}
}

func TestToPointsForcesUserID(t *testing.T) {
	t.Parallel()

	e := embeddingFor("doc#k#1", "doc", "", "t", 1)
	e.Metadata[rag.MetaUserID] = "someone-else"

	pts, err := toPoints("u1", []rag.Embedding{e})
	if err != nil {
		t.Fatalf("toPoints: %v", err)
	}
	if got := pts[0].Payload.Metadata[rag.MetaUserID]; got != "u1" {
		t.Errorf("userId: got %q", got)
	}
	if e.Metadata[rag.MetaUserID] != "someone-else" {
		t.Error("input metadata must not be mutated")
	}
}

func TestDocumentFilter(t *testing.T) {
	t.Parallel()

	f := documentFilter("u1", rag.File{Name: "a.pdf"})
	if len(f.GetMust()) != 1 {
		t.Errorf("must: want 1 condition, got %d", len(f.GetMust()))
	}
	if len(f.GetShould()) != 1 {
		t.Errorf("should: want 1 condition, got %d", len(f.GetShould()))
	}

	f = documentFilter("u1", rag.File{Name: "a.pdf", URL: "https://x/a.pdf"})
	if len(f.GetShould()) != 2 {
		t.Errorf("should: want 2 conditions, got %d", len(f.GetShould()))
	}
}
