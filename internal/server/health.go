package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/ragpipe-go/internal/logging"
)

// probeTimeout bounds each dependency probe run by GET /api/ready.
const probeTimeout = 5 * time.Second

// Pinger reports whether one dependency is reachable. Implementations must
// be safe for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses, e.g. "qdrant".
	Name() string
}

// healthResponse is the JSON body of GET /api/health. It names the backends
// this instance was started with so operators can tell deployments apart.
type healthResponse struct {
	Status         string `json:"status"`
	VectorStore    string `json:"vectorStore"`
	EmbeddingModel string `json:"embeddingModel,omitempty"`
}

// handleHealth handles GET /api/health. It never touches a dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, healthResponse{
		Status:         "ok",
		VectorStore:    s.store.Name(),
		EmbeddingModel: s.embeddingModel,
	})
}

// readyCheck is one dependency's probe result.
type readyCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// readyResponse is the JSON body of GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. Probes run concurrently, each under
// probeTimeout, and are reported in registration order. Any failure yields
// 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			start := time.Now()
			err := p.Ping(ctx)
			checks[i] = readyCheck{
				Name:    p.Name(),
				OK:      err == nil,
				Latency: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				checks[i].Error = err.Error()
				log.Warn("readiness probe failed",
					slog.String("dependency", p.Name()),
					slog.Any("error", err),
				)
			}
		}()
	}
	wg.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
		}
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(r.Context(), w, status, resp)
}
