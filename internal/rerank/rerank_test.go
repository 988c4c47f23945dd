package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

func samplePassages() []rag.Passage {
	return []rag.Passage{
		{EmbeddingID: "policy#k#1", Text: "Refunds are issued within 30 days.", Citation: "policy.pdf, page 1", Score: 0.81},
		{EmbeddingID: "policy#k#2", Text: "Shipping is free over $50.", Citation: "policy.pdf, page 2", Score: 0.42},
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	in := []rag.Passage{{Text: "a", Score: 0.2}, {Text: "b", Score: 0.9}, {Text: "c", Score: 0.5}}

	got := Select(in, Settings{TopN: 2, RelevanceThreshold: 0.3})
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Text)
	assert.Equal(t, "c", got[1].Text)
	assert.Equal(t, "a", in[0].Text, "input must not be reordered")

	assert.Len(t, Select(in, Settings{}), 3)
	assert.Empty(t, Select(in, Settings{RelevanceThreshold: 0.95}))
}

func TestFormatContext(t *testing.T) {
	t.Parallel()

	got := FormatContext(samplePassages())
	want := "[1] Refunds are issued within 30 days.\nSource: policy.pdf, page 1\n\n" +
		"[2] Shipping is free over $50.\nSource: policy.pdf, page 2"
	assert.Equal(t, want, got)
	assert.Empty(t, FormatContext(nil))
}

func TestPassthrough(t *testing.T) {
	t.Parallel()

	got, err := Passthrough{}.Rerank(context.Background(), "q", samplePassages(), Settings{TopN: 1})
	require.NoError(t, err)
	assert.Equal(t, "[1] Refunds are issued within 30 days.\nSource: policy.pdf, page 1", got)
}

func TestHTTPReranker(t *testing.T) {
	t.Parallel()

	var gotReq rerankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		assert.Equal(t, "Bearer rk", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.97},{"index":0,"relevance_score":0.12}]}`))
	}))
	defer srv.Close()

	r := NewHTTPReranker(HTTPConfig{BaseURL: srv.URL + "/", APIKey: "rk", Model: "rerank-v3"})
	got, err := r.Rerank(context.Background(), "shipping cost?", samplePassages(), Settings{RelevanceThreshold: 0.5})
	require.NoError(t, err)

	assert.Equal(t, "shipping cost?", gotReq.Query)
	assert.Equal(t, "rerank-v3", gotReq.Model)
	assert.Len(t, gotReq.Documents, 2)
	assert.Equal(t, "[1] Shipping is free over $50.\nSource: policy.pdf, page 2", got)
}

func TestHTTPRerankerProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPReranker(HTTPConfig{BaseURL: srv.URL}).Rerank(context.Background(), "q", samplePassages(), Settings{})
	require.ErrorIs(t, err, rag.ErrProvider)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPRerankerRejectsBadIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":7,"relevance_score":0.9}]}`))
	}))
	defer srv.Close()

	_, err := NewHTTPReranker(HTTPConfig{BaseURL: srv.URL}).Rerank(context.Background(), "q", samplePassages(), Settings{})
	assert.ErrorIs(t, err, rag.ErrProvider)
}

// fakeChatModel returns a canned reply and records the prompt it was sent.
type fakeChatModel struct {
	reply string
	err   error
	got   []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestLLMReranker(t *testing.T) {
	t.Parallel()

	m := &fakeChatModel{reply: "```json\n[{\"index\": 2, \"score\": 0.9}, {\"index\": 1, \"score\": 0.3}, {\"index\": 9, \"score\": 1}]\n```"}
	r := NewLLMReranker(m, 0)

	got, err := r.Rerank(context.Background(), "shipping?", samplePassages(), Settings{TopN: 2})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "[1] Shipping is free over $50."), got)
	assert.Contains(t, got, "[2] Refunds are issued within 30 days.")

	require.Len(t, m.got, 2)
	assert.Equal(t, schema.System, m.got[0].Role)
	assert.Contains(t, m.got[1].Content, "1. Refunds are issued within 30 days.")
	assert.Contains(t, m.got[1].Content, "2. Shipping is free over $50.")
}

func TestLLMRerankerErrors(t *testing.T) {
	t.Parallel()

	_, err := NewLLMReranker(&fakeChatModel{err: errors.New("boom")}, 0).Rerank(context.Background(), "q", samplePassages(), Settings{})
	assert.ErrorIs(t, err, rag.ErrProvider)

	_, err = NewLLMReranker(&fakeChatModel{reply: "I think both are fine."}, 0).Rerank(context.Background(), "q", samplePassages(), Settings{})
	assert.ErrorIs(t, err, rag.ErrProvider)
}

func TestLLMRerankerBudgetDropsAll(t *testing.T) {
	t.Parallel()

	m := &fakeChatModel{reply: "[]"}
	got, err := NewLLMReranker(m, 10).Rerank(context.Background(), "q", samplePassages(), Settings{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, m.got, "model must not be called when nothing fits")
}

func TestNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r, err := New(ctx, Config{Provider: ProviderNone})
	require.NoError(t, err)
	assert.Equal(t, ProviderNone, r.Name())

	r, err = New(ctx, Config{Provider: ProviderHTTP, HTTP: HTTPConfig{BaseURL: "http://rerank:8080"}})
	require.NoError(t, err)
	assert.Equal(t, ProviderHTTP, r.Name())

	_, err = New(ctx, Config{Provider: ProviderHTTP})
	assert.ErrorIs(t, err, rag.ErrValidation)

	_, err = New(ctx, Config{Provider: "colbert"})
	assert.ErrorIs(t, err, rag.ErrValidation)
}
