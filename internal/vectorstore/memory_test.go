package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

func embeddingFor(id, name, url, text string, values ...float32) rag.Embedding {
	return rag.Embedding{
		ID:     id,
		Values: values,
		Metadata: map[string]string{
			rag.MetaText:     text,
			rag.MetaName:     name,
			rag.MetaURL:      url,
			rag.MetaCitation: name,
		},
	}
}

func seededMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	_, err := s.Upsert(context.Background(), "u1", []rag.Embedding{
		embeddingFor("policy.pdf#k1#1", "policy.pdf", "https://x/policy.pdf", "refunds within 30 days", 1, 0, 0),
		embeddingFor("policy.pdf#k1#2", "policy.pdf", "https://x/policy.pdf", "shipping is free", 0.6, 0.8, 0),
		embeddingFor("faq.md#k2#1", "faq.md", "https://x/faq.md", "contact support", 0, 0, 1),
	})
	require.NoError(t, err)
	return s
}

func TestMemoryStore_QueryOrdersByScore(t *testing.T) {
	t.Parallel()
	s := seededMemoryStore(t)

	res, err := s.Query(context.Background(), "u1", []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res.Context, 2)

	assert.Equal(t, "policy.pdf#k1#1", res.Context[0].EmbeddingID)
	assert.Equal(t, "policy.pdf#k1#2", res.Context[1].EmbeddingID)
	assert.GreaterOrEqual(t, res.Context[0].Score, res.Context[1].Score)
	assert.Equal(t, "refunds within 30 days", res.Context[0].Text)
	assert.Equal(t, "u1", res.Context[0].Metadata[rag.MetaUserID])
}

func TestMemoryStore_QueryIsolatesUsers(t *testing.T) {
	t.Parallel()
	s := seededMemoryStore(t)

	res, err := s.Query(context.Background(), "u2", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, res.Context)
}

func TestMemoryStore_DeleteByNameOnly(t *testing.T) {
	t.Parallel()
	s := seededMemoryStore(t)

	n, err := s.Delete(context.Background(), "u1", rag.File{Name: "policy.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len("u1"))

	n, err = s.Delete(context.Background(), "u1", rag.File{URL: "https://x/faq.md"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, s.Len("u1"))
}

func TestMemoryStore_DeleteOtherUserUntouched(t *testing.T) {
	t.Parallel()
	s := seededMemoryStore(t)

	n, err := s.Delete(context.Background(), "u2", rag.File{Name: "policy.pdf"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, s.Len("u1"))
}

func TestMemoryStore_ReupsertReplaces(t *testing.T) {
	t.Parallel()
	s := seededMemoryStore(t)

	_, err := s.Upsert(context.Background(), "u1", []rag.Embedding{
		embeddingFor("policy.pdf#k1#1", "policy.pdf", "https://x/policy.pdf", "refunds within 14 days", 1, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len("u1"))

	res, err := s.Query(context.Background(), "u1", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res.Context, 1)
	assert.Equal(t, "refunds within 14 days", res.Context[0].Text)
}

func TestMemoryStore_Validation(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"upsert without user", func() error {
			_, err := s.Upsert(ctx, "", []rag.Embedding{embeddingFor("a#b#1", "a", "", "t", 1)})
			return err
		}},
		{"upsert without id", func() error {
			_, err := s.Upsert(ctx, "u1", []rag.Embedding{{Values: []float32{1}}})
			return err
		}},
		{"upsert without values", func() error {
			_, err := s.Upsert(ctx, "u1", []rag.Embedding{{ID: "a#b#1"}})
			return err
		}},
		{"query without user", func() error {
			_, err := s.Query(ctx, "", []float32{1}, 1)
			return err
		}},
		{"query empty vector", func() error {
			_, err := s.Query(ctx, "u1", nil, 1)
			return err
		}},
		{"query zero topK", func() error {
			_, err := s.Query(ctx, "u1", []float32{1}, 0)
			return err
		}},
		{"delete without name or url", func() error {
			_, err := s.Delete(ctx, "u1", rag.File{Key: "k1"})
			return err
		}},
		{"delete without user", func() error {
			_, err := s.Delete(ctx, "", rag.File{Name: "a"})
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.call(), rag.ErrValidation)
		})
	}
}

func TestMemoryStore_ConcurrentUpsert(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("doc#k#%d", i+1)
			_, err := s.Upsert(context.Background(), "u1", []rag.Embedding{embeddingFor(id, "doc", "", "t", 1, float32(i))})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, s.Len("u1"))
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
