package ingestion

import (
	"log/slog"

	"github.com/54b3r/ragpipe-go/internal/rag"
)

// Observer receives progress and per-chunk failure notifications from the
// Coordinator. Calls are serialised per document.
type Observer interface {
	// OnProgress is called after each chunk completes, successfully or not.
	// completed increases by one per call up to total.
	OnProgress(completed, total int)

	// OnFailure is called once per failed chunk.
	OnFailure(userID string, file rag.File, failure ChunkFailure)
}

// LogObserver reports through a slog logger. Progress is logged at debug.
type LogObserver struct {
	Log *slog.Logger
}

// OnProgress implements Observer.
func (o LogObserver) OnProgress(completed, total int) {
	o.Log.Debug("ingestion: chunk completed",
		slog.Int("completed", completed),
		slog.Int("total", total),
	)
}

// OnFailure implements Observer.
func (o LogObserver) OnFailure(userID string, file rag.File, f ChunkFailure) {
	o.Log.Warn("ingestion: chunk embedding failed",
		slog.String("user_id", userID),
		slog.String("file", file.Name),
		slog.String("key", file.Key),
		slog.Int("chunk_index", f.Index),
		slog.String("error", f.Err.Error()),
	)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(completed, total int)
	Failure  func(userID string, file rag.File, failure ChunkFailure)
}

// OnProgress implements Observer.
func (o ObserverFuncs) OnProgress(completed, total int) {
	if o.Progress != nil {
		o.Progress(completed, total)
	}
}

// OnFailure implements Observer.
func (o ObserverFuncs) OnFailure(userID string, file rag.File, f ChunkFailure) {
	if o.Failure != nil {
		o.Failure(userID, file, f)
	}
}
