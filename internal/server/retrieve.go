package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/retrieval"
)

// handleRetrieve handles POST /api/retrieve. It streams the retrieval
// session's stage events as Server-Sent Events, one JSON data frame per
// event, ending with the done event.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req retrieveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rreq := retrieval.Request{UserID: req.UserID, Message: req.Message}
	if err := rreq.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s.metrics.retrieveActiveStreams.Inc()
	defer s.metrics.retrieveActiveStreams.Dec()
	start := time.Now()

	sink := &sseSink{w: w, flusher: flusher}
	sess, err := s.retriever.Run(r.Context(), rreq, sink)
	if err != nil {
		// Validation already passed, so this is unexpected; nothing has been
		// written yet.
		log.Error("retrieve: session rejected", slog.Any("error", err))
		http.Error(w, err.Error(), statusFor(err))
		s.metrics.observeRetrieve(outcomeError, time.Since(start))
		return
	}

	outcome := outcomeOK
	switch {
	case sink.err != nil:
		outcome = outcomeDisconnected
		log.Warn("retrieve: client disconnected mid-stream", slog.Any("error", sink.err))
	case sess == nil || sess.Err != nil:
		outcome = outcomeError
		if r.Context().Err() != nil {
			outcome = outcomeDisconnected
		}
	}
	s.metrics.observeRetrieve(outcome, time.Since(start))
}

// sseSink writes retrieval events as SSE data frames and flushes each one.
// It remembers the first write error; the orchestrator stops sending stage
// events after it.
type sseSink struct {
	// w is the underlying response writer.
	w http.ResponseWriter
	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
	// err is the first write error.
	err error
}

// Send implements retrieval.Sink. JSON encoding never contains a raw
// newline, so every event fits a single data line.
func (s *sseSink) Send(e retrieval.Event) error {
	if s.err != nil {
		return s.err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("sse: encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		s.err = err
		return err
	}
	s.flusher.Flush()
	return nil
}
