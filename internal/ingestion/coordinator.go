package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/54b3r/ragpipe-go/internal/embedding"
	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/rag"
)

// Embedder is the slice of *embedding.Client the coordinator needs.
type Embedder interface {
	EmbedEach(ctx context.Context, texts []string, fn func(embedding.Result))
}

// ChunkFailure records why one chunk could not be embedded.
type ChunkFailure struct {
	// Index is the zero-based chunk position.
	Index int
	// Err is the embedding error (rag.ErrTimeout, rag.ErrProvider, or a
	// context error).
	Err error
}

// Report is the outcome of embedding one document.
type Report struct {
	// UserID and File identify the document.
	UserID string
	File   rag.File
	// Total is the number of chunks submitted.
	Total int
	// Embeddings holds the successful chunks in chunk order.
	Embeddings []rag.Embedding
	// Failures holds one entry per failed chunk in chunk order.
	Failures []ChunkFailure
}

// Succeeded returns the number of embedded chunks.
func (r *Report) Succeeded() int { return len(r.Embeddings) }

// Failed returns the number of failed chunks.
func (r *Report) Failed() int { return len(r.Failures) }

// Partial reports whether some, but not all, chunks failed.
func (r *Report) Partial() bool { return r.Failed() > 0 && r.Succeeded() > 0 }

// Coordinator fans a document's chunks out through the shared embedding
// client and assembles the successful results.
type Coordinator struct {
	client   Embedder
	observer Observer
}

// CoordinatorOption customises a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithObserver sets the progress/failure observer. The default logs through
// the logger carried on the request context.
func WithObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) { c.observer = o }
}

// NewCoordinator constructs a Coordinator around client.
func NewCoordinator(client Embedder, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmbedDocument embeds every chunk of file for userID. Individual chunk
// failures are reported to the observer and collected in the Report; they
// never fail the call. The only error return is a setup failure wrapping
// rag.ErrValidation.
func (c *Coordinator) EmbedDocument(ctx context.Context, userID string, file rag.File, chunks []rag.Chunk) (*Report, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("ingestion: embedding client is not configured: %w", rag.ErrValidation)
	}
	if userID == "" {
		return nil, fmt.Errorf("ingestion: userId is required: %w", rag.ErrValidation)
	}
	if file.Name == "" || file.Key == "" {
		return nil, fmt.Errorf("ingestion: file name and key are required: %w", rag.ErrValidation)
	}

	log := logging.FromContext(ctx)
	observer := c.observer
	if observer == nil {
		observer = LogObserver{Log: log}
	}

	report := &Report{UserID: userID, File: file, Total: len(chunks)}
	if len(chunks) == 0 {
		return report, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	inferred := InferMetadata(file)

	completed := 0
	c.client.EmbedEach(ctx, texts, func(r embedding.Result) {
		completed++
		if r.Err != nil {
			f := ChunkFailure{Index: r.Index, Err: r.Err}
			report.Failures = append(report.Failures, f)
			observer.OnFailure(userID, file, f)
		} else {
			report.Embeddings = append(report.Embeddings, buildEmbedding(userID, file, r.Index, chunks[r.Index], r.Values, inferred))
		}
		observer.OnProgress(completed, len(chunks))
	})

	sort.Slice(report.Embeddings, func(i, j int) bool {
		return chunkIndexOf(report.Embeddings[i]) < chunkIndexOf(report.Embeddings[j])
	})
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Index < report.Failures[j].Index
	})

	log.Info("ingestion: document embedded",
		slog.String("user_id", userID),
		slog.String("file", file.Name),
		slog.Int("total", report.Total),
		slog.Int("embedded", report.Succeeded()),
		slog.Int("failed", report.Failed()),
	)
	return report, nil
}

// buildEmbedding assembles the Embedding for chunk index of file.
// Reserved keys overwrite any same-named chunk metadata.
func buildEmbedding(userID string, file rag.File, index int, ch rag.Chunk, values []float32, inferred InferredMetadata) rag.Embedding {
	meta := flattenMetadata(ch.Metadata)
	inferred.apply(meta)

	meta[rag.MetaText] = ch.Text
	meta[rag.MetaUserID] = userID
	meta[rag.MetaURL] = file.URL
	meta[rag.MetaCitation] = citation(file.Name, pageOf(ch.Page, ch.Metadata), file.URL)
	meta[rag.MetaName] = file.Name
	meta[rag.MetaKey] = file.Key
	meta[rag.MetaChunkIndex] = strconv.Itoa(index)

	return rag.Embedding{
		ID:       EmbeddingID(file.Name, file.Key, index),
		Values:   values,
		Metadata: meta,
	}
}

func chunkIndexOf(e rag.Embedding) int {
	n, _ := strconv.Atoi(e.Metadata[rag.MetaChunkIndex])
	return n
}
