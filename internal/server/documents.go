package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/rag"
)

// handleEmbedDocument handles POST /api/documents. It embeds every chunk,
// upserts the successes and reports per-chunk failures. The status is 200
// when every chunk was stored, 207 when some chunks were lost, and 502 when
// nothing could be embedded or the store write failed.
func (s *Server) handleEmbedDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	var req embedDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := s.embedder.EmbedDocument(ctx, req.UserID, req.File, req.Chunks)
	if err != nil {
		log.Warn("documents: embed rejected", slog.Any("error", err))
		s.metrics.observeDocument(opEmbed, outcomeError)
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	resp := embedDocumentResponse{
		Total:    report.Total,
		Embedded: report.Succeeded(),
		Failed:   report.Failed(),
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, chunkFailure{Index: f.Index, Error: f.Err.Error()})
	}

	if report.Total > 0 && report.Succeeded() == 0 {
		s.metrics.observeDocument(opEmbed, outcomeError)
		writeJSON(ctx, w, http.StatusBadGateway, resp)
		return
	}

	if len(report.Embeddings) > 0 {
		n, err := s.store.Upsert(ctx, req.UserID, report.Embeddings)
		if err != nil {
			log.Error("documents: upsert failed",
				slog.String("user_id", req.UserID),
				slog.String("document", req.File.Name),
				slog.Any("error", err),
			)
			resp.Error = err.Error()
			s.metrics.observeDocument(opEmbed, outcomeError)
			writeJSON(ctx, w, http.StatusBadGateway, resp)
			return
		}
		resp.Upserted = n
	}

	status, outcome := http.StatusOK, outcomeOK
	if report.Partial() {
		status, outcome = http.StatusMultiStatus, outcomePartial
	}
	s.metrics.observeDocument(opEmbed, outcome)
	writeJSON(ctx, w, status, resp)
}

// handleDeleteDocument handles DELETE /api/documents. name and url are
// independent filters; at least one is required.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	var req deleteDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n, err := s.store.Delete(ctx, req.UserID, rag.File{Name: req.Name, URL: req.URL})
	if err != nil {
		if !errors.Is(err, rag.ErrValidation) {
			log.Error("documents: delete failed", slog.String("user_id", req.UserID), slog.Any("error", err))
		}
		s.metrics.observeDocument(opDelete, outcomeError)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.metrics.observeDocument(opDelete, outcomeOK)
	writeJSON(ctx, w, http.StatusOK, deleteDocumentResponse{Deleted: n})
}
