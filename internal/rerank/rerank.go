// Package rerank adapts external relevance models to the retrieval
// orchestrator. A Reranker re-scores the passages returned by the vector
// store against the user's query and renders the survivors as the context
// block handed to answer generation.
//
// Three adapters are provided:
//
//	none  keep the vector similarity scores
//	http  Cohere/Jina compatible POST /rerank scoring service
//	llm   an Eino chat model judges relevance
package rerank

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

// Settings are the per-user relevance settings applied after scoring.
type Settings struct {
	// TopN caps the number of passages kept. Zero or less keeps all.
	TopN int `json:"topN"`

	// RelevanceThreshold drops passages scoring below it.
	RelevanceThreshold float32 `json:"relevanceThreshold"`
}

// Reranker re-scores passages against a query and returns the formatted
// context. An empty string means no passage survived the settings.
// Implementations must be safe for concurrent use.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []rag.Passage, s Settings) (string, error)

	// Name identifies the adapter in logs.
	Name() string
}

// Select applies s to passages whose Score has been set by a relevance
// model: drops those below the threshold, orders the rest by descending
// score and caps the list at TopN. The input slice is not modified.
func Select(passages []rag.Passage, s Settings) []rag.Passage {
	kept := make([]rag.Passage, 0, len(passages))
	for _, p := range passages {
		if p.Score >= s.RelevanceThreshold {
			kept = append(kept, p)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if s.TopN > 0 && len(kept) > s.TopN {
		kept = kept[:s.TopN]
	}
	return kept
}

// FormatContext renders passages as numbered context blocks, each followed
// by its citation when one is known.
func FormatContext(passages []rag.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, strings.TrimSpace(p.Text))
		if p.Citation != "" {
			fmt.Fprintf(&b, "\nSource: %s", p.Citation)
		}
	}
	return b.String()
}

// Passthrough keeps the vector store's similarity scores.
type Passthrough struct{}

// Name implements Reranker.
func (Passthrough) Name() string { return ProviderNone }

// Rerank implements Reranker.
func (Passthrough) Rerank(ctx context.Context, _ string, passages []rag.Passage, s Settings) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return FormatContext(Select(passages, s)), nil
}
