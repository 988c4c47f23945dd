package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragpipe-go/internal/embedding"
	"github.com/54b3r/ragpipe-go/internal/rag"
	"github.com/54b3r/ragpipe-go/internal/ratelimit"
)

// flakyProvider times out on texts starting with "slow" and fails on texts
// starting with "bad"; everything else embeds to a 2-d vector.
type flakyProvider struct{}

func (flakyProvider) Model() string { return "flaky" }

func (flakyProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	switch {
	case strings.HasPrefix(text, "slow"):
		<-ctx.Done()
		return nil, ctx.Err()
	case strings.HasPrefix(text, "bad"):
		return nil, errors.New("503 upstream overloaded")
	}
	return []float32{float32(len(text)), 1}, nil
}

func newClient(t *testing.T) *embedding.Client {
	t.Helper()
	l, err := ratelimit.New(ratelimit.Config{Reservoir: 1000, RefillInterval: time.Minute, MaxConcurrent: 4, MinSpacing: -1})
	require.NoError(t, err)
	c, err := embedding.New(flakyProvider{}, l, embedding.WithTimeout(30*time.Millisecond))
	require.NoError(t, err)
	return c
}

// recorder captures observer calls.
type recorder struct {
	mu       sync.Mutex
	progress []int
	failures []ChunkFailure
}

func (r *recorder) OnProgress(completed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, completed)
}

func (r *recorder) OnFailure(_ string, _ rag.File, f ChunkFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

func tenChunks() []rag.Chunk {
	chunks := make([]rag.Chunk, 10)
	for i := range chunks {
		chunks[i] = rag.Chunk{Text: fmt.Sprintf("chunk %d body", i+1)}
	}
	chunks[2].Text = "slow chunk 3"
	chunks[6].Text = "bad chunk 7"
	return chunks
}

func TestEmbedDocument_PartialFailureIsolation(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	coord := NewCoordinator(newClient(t), WithObserver(rec))
	file := rag.File{Name: "Handbook.pdf", Key: "k1", URL: "https://docs.example.com/Handbook.pdf"}

	report, err := coord.EmbedDocument(context.Background(), "user-1", file, tenChunks())
	require.NoError(t, err)

	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 8, report.Succeeded())
	assert.Equal(t, 2, report.Failed())
	assert.True(t, report.Partial())

	require.Len(t, report.Failures, 2)
	assert.Equal(t, 2, report.Failures[0].Index)
	assert.ErrorIs(t, report.Failures[0].Err, rag.ErrTimeout)
	assert.Equal(t, 6, report.Failures[1].Index)
	assert.ErrorIs(t, report.Failures[1].Err, rag.ErrProvider)

	assert.Len(t, rec.failures, 2, "each failure reported exactly once")
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, rec.progress, "progress is monotonic up to len(chunks)")

	var ids []string
	for _, e := range report.Embeddings {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{
		"Handbook.pdf#k1#1", "Handbook.pdf#k1#2", "Handbook.pdf#k1#4", "Handbook.pdf#k1#5",
		"Handbook.pdf#k1#6", "Handbook.pdf#k1#8", "Handbook.pdf#k1#9", "Handbook.pdf#k1#10",
	}, ids)
}

func TestEmbedDocument_StableIDsAcrossRuns(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(newClient(t), WithObserver(ObserverFuncs{}))
	file := rag.File{Name: "Résumé Café.docx", Key: "abc"}
	chunks := []rag.Chunk{{Text: "one"}, {Text: "two"}}

	first, err := coord.EmbedDocument(context.Background(), "u", file, chunks)
	require.NoError(t, err)
	second, err := coord.EmbedDocument(context.Background(), "u", file, chunks)
	require.NoError(t, err)

	require.Len(t, first.Embeddings, 2)
	for i := range first.Embeddings {
		assert.Equal(t, first.Embeddings[i].ID, second.Embeddings[i].ID)
	}
	assert.Equal(t, "Resume Cafe.docx#abc#1", first.Embeddings[0].ID)
}

func TestEmbedDocument_Metadata(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(newClient(t), WithObserver(ObserverFuncs{}))
	file := rag.File{Name: "Guide.pdf", Key: "g", URL: "https://Files.Example.com/guide.pdf"}
	chunks := []rag.Chunk{{
		Text: "refunds take 5 days",
		Page: 4,
		Metadata: map[string]any{
			"section": "Refunds",
			"loc":     map[string]any{"lines": map[string]any{"from": 1, "to": 9}},
			"tags":    []string{"billing", "policy"},
			"version": 2,
			"text":    "parser text must not win",
		},
	}}

	report, err := coord.EmbedDocument(context.Background(), "user-9", file, chunks)
	require.NoError(t, err)
	require.Len(t, report.Embeddings, 1)

	meta := report.Embeddings[0].Metadata
	assert.Equal(t, "refunds take 5 days", meta[rag.MetaText])
	assert.Equal(t, "user-9", meta[rag.MetaUserID])
	assert.Equal(t, file.URL, meta[rag.MetaURL])
	assert.Equal(t, "Guide.pdf, page 4 (https://Files.Example.com/guide.pdf)", meta[rag.MetaCitation])
	assert.Equal(t, "Guide.pdf", meta[rag.MetaName])
	assert.Equal(t, "g", meta[rag.MetaKey])
	assert.Equal(t, "0", meta[rag.MetaChunkIndex])
	assert.Equal(t, "pdf", meta[rag.MetaFiletype])
	assert.Equal(t, "files.example.com", meta[MetaSourceHost])
	assert.Equal(t, "Refunds", meta["section"])
	assert.Equal(t, `{"lines":{"from":1,"to":9}}`, meta["loc"])
	assert.Equal(t, `["billing","policy"]`, meta["tags"])
	assert.Equal(t, "2", meta["version"])
}

func TestEmbedDocument_Validation(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(newClient(t))
	ctx := context.Background()

	_, err := coord.EmbedDocument(ctx, "", rag.File{Name: "a", Key: "b"}, nil)
	assert.ErrorIs(t, err, rag.ErrValidation)

	_, err = coord.EmbedDocument(ctx, "u", rag.File{Name: "a"}, nil)
	assert.ErrorIs(t, err, rag.ErrValidation)

	_, err = NewCoordinator(nil).EmbedDocument(ctx, "u", rag.File{Name: "a", Key: "b"}, nil)
	assert.ErrorIs(t, err, rag.ErrValidation)

	report, err := coord.EmbedDocument(ctx, "u", rag.File{Name: "a", Key: "b"}, nil)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.False(t, report.Partial())
}

func TestEmbedDocument_AllFail(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(newClient(t), WithObserver(ObserverFuncs{}))
	chunks := []rag.Chunk{{Text: "bad 1"}, {Text: "bad 2"}}

	report, err := coord.EmbedDocument(context.Background(), "u", rag.File{Name: "x.txt", Key: "k"}, chunks)
	require.NoError(t, err, "chunk failures never fail the document")
	assert.Zero(t, report.Succeeded())
	assert.Equal(t, 2, report.Failed())
	assert.False(t, report.Partial())
}
