// Package server exposes the retrieval pipeline over HTTP: a Server-Sent
// Events query stream, document embed/delete endpoints, liveness and
// readiness probes, and Prometheus metrics.
// The server is started by the `ragpipe serve` CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/rag"
)

// maxBodyBytes bounds request bodies. Document uploads carry every chunk of
// a document inline.
const maxBodyBytes = 32 << 20

// New constructs a Server from the pipeline components and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Retriever == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, fmt.Errorf("server: retriever, embedder and store are required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		retriever:      deps.Retriever,
		embedder:       deps.Embedder,
		store:          deps.Store,
		embeddingModel: deps.EmbeddingModel,
		cfg:            cfg,
		log:            cfg.Logger,
		pingers:        cfg.Pingers,
		metrics:        newServerMetrics(cfg.MetricsRegistry),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// routes builds the handler tree. Probes and /metrics are open; every other
// /api route is authenticated and rate limited.
func (s *Server) routes() http.Handler {
	tr, stop := newThrottle(s.cfg.RateLimit, s.cfg.RateBurst, s.log)
	s.stopRL = stop

	protect := func(name string, h http.HandlerFunc) http.Handler {
		return authMiddleware(s.cfg.APIKey, tr.middleware(s.instrument(name, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/retrieve", protect("retrieve", s.handleRetrieve))
	mux.Handle("POST /api/documents", protect("documents_embed", s.handleEmbedDocument))
	mux.Handle("DELETE /api/documents", protect("documents_delete", s.handleDeleteDocument))
	mux.Handle("GET /api/health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /api/ready", s.instrument("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return requestLogger(s.log, mux)
}

// Handler returns the root handler, for tests and embedding in other servers.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	if s.cfg.APIKey == "" {
		s.log.Warn("server: RAGPIPE_API_KEY is not set, authentication is disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ragpipe server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// decodeJSON decodes a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeJSON encodes v with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, rag.ErrProvider), errors.Is(err, rag.ErrTimeout):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
