package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragpipe-go/internal/rag"
	"github.com/54b3r/ragpipe-go/internal/rerank"
	"github.com/54b3r/ragpipe-go/internal/retrieval"
	"github.com/54b3r/ragpipe-go/internal/vectorstore"
)

type constEmbedder []float32

func (c constEmbedder) EmbedOne(context.Context, string) ([]float32, error) { return c, nil }

// explodingReranker panics on every call.
type explodingReranker struct{}

func (explodingReranker) Name() string { return "exploding" }

func (explodingReranker) Rerank(context.Context, string, []rag.Passage, rerank.Settings) (string, error) {
	panic("reranker exploded")
}

// TestHandleRetrieve_RerankerPanic runs a real orchestrator whose reranker
// panics. The stream must still end with done and the request must count
// as an error.
func TestHandleRetrieve_RerankerPanic(t *testing.T) {
	t.Parallel()

	store := vectorstore.NewMemoryStore()
	if _, err := store.Upsert(t.Context(), "u1", []rag.Embedding{{
		ID:       "policy.pdf#k#1",
		Values:   []float32{1, 0, 0},
		Metadata: map[string]string{rag.MetaText: "Refunds are issued within 30 days.", rag.MetaName: "policy.pdf"},
	}}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	orch, err := retrieval.New(constEmbedder{1, 0, 0}, store, explodingReranker{},
		retrieval.WithSettings(retrieval.StaticSettings{TopK: 2, Rerank: rerank.Settings{TopN: 2}}))
	if err != nil {
		t.Fatalf("retrieval.New: %v", err)
	}

	reg := prometheus.NewRegistry()
	s := newTestServer()
	s.metrics = newServerMetrics(reg)
	s.retriever = orch

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve",
		strings.NewReader(`{"userId":"u1","message":"What is the refund policy?"}`))
	w := httptest.NewRecorder()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		s.handleRetrieve(w, req)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after reranker panic")
	}

	events := readSSE(t, w.Body.String())
	if len(events) == 0 {
		t.Fatal("no events streamed")
	}
	last := events[len(events)-1]
	if last.Status != retrieval.StatusDone {
		t.Errorf("last event: want %q, got %q", retrieval.StatusDone, last.Status)
	}
	var sawError bool
	for _, e := range events {
		if e.Status == retrieval.StatusError {
			sawError = true
		}
	}
	if !sawError {
		t.Errorf("expected an error event, got %+v", events)
	}

	if got := findMetric(t, reg, "ragpipe_retrieve_requests_total", map[string]string{"outcome": outcomeError}); got.GetCounter().GetValue() != 1 {
		t.Errorf("outcome=error counter: want 1, got %v", got.GetCounter().GetValue())
	}
}
