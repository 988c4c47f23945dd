package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragpipe-go/internal/ingestion"
	"github.com/54b3r/ragpipe-go/internal/rag"
	"github.com/54b3r/ragpipe-go/internal/retrieval"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// outlast a retrieval session and a full document embedding run.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained requests/second allowed per caller on
	// protected routes. A caller is the request's userId, else its IP.
	// Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the per-caller burst. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// retriever runs one retrieval session. *retrieval.Orchestrator satisfies
// it; tests inject a fake.
type retriever interface {
	Run(ctx context.Context, req retrieval.Request, sink retrieval.Sink) (*retrieval.Session, error)
}

// documentEmbedder embeds a document's chunks. *ingestion.Coordinator
// satisfies it.
type documentEmbedder interface {
	EmbedDocument(ctx context.Context, userID string, file rag.File, chunks []rag.Chunk) (*ingestion.Report, error)
}

// documentStore writes and removes a user's points. Every
// vectorstore.Provider satisfies it.
type documentStore interface {
	Name() string
	Upsert(ctx context.Context, userID string, embeddings []rag.Embedding) (int, error)
	Delete(ctx context.Context, userID string, file rag.File) (int, error)
}

// Deps are the pipeline components the server exposes.
type Deps struct {
	Retriever *retrieval.Orchestrator
	Embedder  *ingestion.Coordinator
	Store     documentStore
	// EmbeddingModel is reported by GET /api/health.
	EmbeddingModel string
}

// Server is the HTTP server in front of the retrieval pipeline.
type Server struct {
	// retriever serves POST /api/retrieve.
	retriever retriever
	// embedder serves POST /api/documents.
	embedder documentEmbedder
	// store serves the upsert half of POST /api/documents and DELETE /api/documents.
	store documentStore
	// embeddingModel is the model name reported by GET /api/health.
	embeddingModel string
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
	// stopRL stops the throttle sweeper on shutdown.
	stopRL func()
}

// retrieveRequest is the JSON body for POST /api/retrieve.
type retrieveRequest struct {
	// UserID selects the vector namespace to search.
	UserID string `json:"userId"`
	// Message is the user's natural language query.
	Message string `json:"message"`
}

// embedDocumentRequest is the JSON body for POST /api/documents.
type embedDocumentRequest struct {
	UserID string      `json:"userId"`
	File   rag.File    `json:"file"`
	Chunks []rag.Chunk `json:"chunks"`
}

// chunkFailure reports one chunk that could not be embedded.
type chunkFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// embedDocumentResponse is the JSON response for POST /api/documents.
type embedDocumentResponse struct {
	// Total is the number of chunks received.
	Total int `json:"total"`
	// Embedded is the number of chunks embedded successfully.
	Embedded int `json:"embedded"`
	// Failed is the number of chunks that could not be embedded.
	Failed int `json:"failed"`
	// Upserted is the number of points written to the vector store.
	Upserted int `json:"upserted"`
	// Failures details every failed chunk.
	Failures []chunkFailure `json:"failures,omitempty"`
	// Error is set when the store write failed.
	Error string `json:"error,omitempty"`
}

// deleteDocumentRequest is the JSON body for DELETE /api/documents.
type deleteDocumentRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	URL    string `json:"url,omitempty"`
}

// deleteDocumentResponse is the JSON response for DELETE /api/documents.
type deleteDocumentResponse struct {
	// Deleted is the number of points removed.
	Deleted int `json:"deleted"`
}
