// Package ingestion turns documents into stored embeddings. The Coordinator
// embeds a document's chunks with partial-failure isolation; the Pipeline
// drives it end-to-end from a local file or URL for the `ragpipe ingest`
// command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

// Upserter is the slice of a vector store the pipeline writes to.
type Upserter interface {
	Upsert(ctx context.Context, userID string, embeddings []rag.Embedding) (int, error)
}

// Source describes one document to ingest. Exactly one of Path or URL must
// be set.
type Source struct {
	// Path is a local file to read.
	Path string

	// URL is fetched over HTTP(S) when Path is empty. It is also stored as the
	// document URL when both are set.
	URL string

	// Name overrides the document name. Defaults to the base name of Path or
	// of the URL path.
	Name string

	// Key overrides the file key. Defaults to a content hash.
	Key string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive chunks.
	// Defaults to 100 if zero.
	ChunkOverlap int

	// HTTPTimeout is the timeout for each document fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Result is the outcome of ingesting one Source.
type Result struct {
	// Report is the embedding report for the document.
	Report *Report
	// Upserted is the number of points written to the store.
	Upserted int
}

// Pipeline orchestrates the read → chunk → embed → upsert flow.
type Pipeline struct {
	coordinator *Coordinator
	store       Upserter
	cfg         *Config
	httpClient  *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(coordinator *Coordinator, store Upserter, cfg *Config) (*Pipeline, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("ingestion: coordinator must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 100
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ragpipe/1.0 (document ingestion)"
	}

	return &Pipeline{
		coordinator: coordinator,
		store:       store,
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// Ingest reads, chunks, embeds and stores src for userID. Chunks that fail
// to embed are reported in the Result and skipped; the successful ones are
// still upserted. An error is returned only when the document could not be
// read, failed validation, or the upsert itself failed.
func (p *Pipeline) Ingest(ctx context.Context, userID string, src Source) (*Result, error) {
	content, err := p.read(ctx, src)
	if err != nil {
		return nil, err
	}

	file := rag.File{Name: src.Name, Key: src.Key, URL: src.URL}
	if file.Name == "" {
		file.Name = defaultName(src)
	}
	if file.Key == "" {
		file.Key = contentKey(content)
	}

	texts := SplitText(content, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	chunks := make([]rag.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = rag.Chunk{Text: t}
	}

	report, err := p.coordinator.EmbedDocument(ctx, userID, file, chunks)
	if err != nil {
		return nil, err
	}

	res := &Result{Report: report}
	if report.Succeeded() == 0 {
		return res, nil
	}
	n, err := p.store.Upsert(ctx, userID, report.Embeddings)
	if err != nil {
		return res, fmt.Errorf("ingestion: upsert failed for %s: %w", file.Name, err)
	}
	res.Upserted = n
	return res, nil
}

func (p *Pipeline) read(ctx context.Context, src Source) (string, error) {
	switch {
	case src.Path != "":
		b, err := os.ReadFile(src.Path)
		if err != nil {
			return "", fmt.Errorf("ingestion: read %s: %w", src.Path, err)
		}
		return string(b), nil
	case src.URL != "":
		content, err := p.fetch(ctx, src.URL)
		if err != nil {
			return "", fmt.Errorf("ingestion: fetch failed for %s: %w", src.URL, err)
		}
		return content, nil
	default:
		return "", fmt.Errorf("ingestion: source needs a path or url: %w", rag.ErrValidation)
	}
}

// fetch retrieves the raw text content of a URL.
func (p *Pipeline) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}

func defaultName(src Source) string {
	if src.Path != "" {
		return filepath.Base(src.Path)
	}
	if u, err := url.Parse(src.URL); err == nil {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
		return u.Hostname()
	}
	return src.URL
}

// contentKey derives a deterministic file key from the document content, so
// re-ingesting an unchanged document reproduces the same embedding ids.
func contentKey(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h[:8])
}
