package ingestion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

type fakeUpserter struct {
	userID string
	got    []rag.Embedding
	err    error
}

func (f *fakeUpserter) Upsert(_ context.Context, userID string, embs []rag.Embedding) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.userID = userID
	f.got = append(f.got, embs...)
	return len(embs), nil
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitText("   ", 10, 2))

	short := SplitText("hello world", 100, 10)
	assert.Equal(t, []string{"hello world"}, short)

	text := strings.Repeat("alpha beta gamma delta ", 20)
	chunks := SplitText(text, 40, 8)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 40)
		assert.NotEqual(t, ' ', rune(c[0]))
	}

	// Multi-byte runes are never split.
	for _, c := range SplitText(strings.Repeat("é", 25), 10, 0) {
		assert.True(t, strings.Trim(c, "é") == "", "chunk %q contains a broken rune", c)
	}
}

func TestPipeline_IngestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.md")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("Refunds are processed within five days. ", 30)), 0o644))

	store := &fakeUpserter{}
	p, err := NewPipeline(NewCoordinator(newClient(t), WithObserver(ObserverFuncs{})), store, &Config{ChunkSize: 200, ChunkOverlap: 20})
	require.NoError(t, err)

	res, err := p.Ingest(context.Background(), "user-1", Source{Path: path})
	require.NoError(t, err)

	assert.Equal(t, "policy.md", res.Report.File.Name)
	assert.NotEmpty(t, res.Report.File.Key)
	assert.Equal(t, res.Report.Total, res.Upserted)
	assert.Equal(t, "user-1", store.userID)
	assert.Equal(t, "md", store.got[0].Metadata[rag.MetaFiletype])

	again, err := p.Ingest(context.Background(), "user-1", Source{Path: path})
	require.NoError(t, err)
	assert.Equal(t, res.Report.Embeddings[0].ID, again.Report.Embeddings[0].ID, "unchanged content keeps its ids")
}

func TestPipeline_IngestURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		_, _ = w.Write([]byte("Shipping is free over fifty euros."))
	}))
	defer srv.Close()

	store := &fakeUpserter{}
	p, err := NewPipeline(NewCoordinator(newClient(t), WithObserver(ObserverFuncs{})), store, nil)
	require.NoError(t, err)

	res, err := p.Ingest(context.Background(), "u", Source{URL: srv.URL + "/docs/shipping.txt"})
	require.NoError(t, err)
	assert.Equal(t, "shipping.txt", res.Report.File.Name)
	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, "shipping.txt ("+srv.URL+"/docs/shipping.txt)", store.got[0].Metadata[rag.MetaCitation])
}

func TestPipeline_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(nil, &fakeUpserter{}, nil)
	assert.Error(t, err)

	coord := NewCoordinator(newClient(t), WithObserver(ObserverFuncs{}))
	_, err = NewPipeline(coord, nil, nil)
	assert.Error(t, err)

	p, err := NewPipeline(coord, &fakeUpserter{err: errors.New("disk full")}, nil)
	require.NoError(t, err)

	_, err = p.Ingest(context.Background(), "u", Source{})
	assert.ErrorIs(t, err, rag.ErrValidation)

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("some text"), 0o644))
	res, err := p.Ingest(context.Background(), "u", Source{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, res.Report.Succeeded())
}
