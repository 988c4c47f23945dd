package retrieval

import (
	"context"
	"sync"
)

// Status values carried by Event, in the order a session emits them.
const (
	StatusStart     = "start"
	StatusEmbedded  = "embedded"
	StatusQueried   = "queried"
	StatusReranked  = "reranked"
	StatusNoContext = "no_context"
	StatusError     = "error"
	StatusDone      = "done"
)

// Done event message.
const doneMessage = "processing complete"

// Event is one stage transition of a retrieval session.
type Event struct {
	Status  string `json:"status"`
	Message string `json:"message"`

	// Context is set on the done event when reranked context was found.
	Context string `json:"context,omitempty"`
}

// Sink receives a session's events in order. Send is called from a single
// goroutine per session; a returned error stops further stage events but the
// done event is still attempted.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

// Send implements Sink.
func (f SinkFunc) Send(e Event) error { return f(e) }

// Recorder is a Sink that keeps every event. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Send implements Sink.
func (r *Recorder) Send(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Statuses returns the recorded event statuses in order.
func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Status
	}
	return out
}

// Stream runs a session on its own goroutine and returns its events on an
// unbuffered channel, closed after the done event. The caller must drain the
// channel or cancel ctx. A validation failure is returned before any event
// is produced.
func (o *Orchestrator) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ch := make(chan Event)
	sink := SinkFunc(func(e Event) error {
		select {
		case ch <- e:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	go func() {
		defer close(ch)
		_, _ = o.Run(ctx, req, sink)
	}()
	return ch, nil
}
