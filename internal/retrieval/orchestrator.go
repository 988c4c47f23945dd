// Package retrieval runs the per-query retrieval session: embed the query,
// search the user's vector namespace, rerank the hits and stream every stage
// transition to the caller.
//
// A session always ends with exactly one done event, whichever path it took:
//
//	start → embedded → queried → reranked   → done
//	start → embedded → queried → no_context → done
//	start → ... → error → done
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/ragpipe-go/internal/config"
	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/rag"
	"github.com/54b3r/ragpipe-go/internal/rerank"
)

// DefaultTimeout bounds a whole session.
const DefaultTimeout = 60 * time.Second

// Stage is a state of the session state machine.
type Stage string

// Session stages.
const (
	StageStart     Stage = "start"
	StageEmbedding Stage = "embedding"
	StageQuerying  Stage = "querying"
	StageReranking Stage = "reranking"
	StageNoContext Stage = "no_context"
	StageError     Stage = "error"
	StageDone      Stage = "done"
)

// QueryEmbedder embeds the query message. *embedding.Client satisfies it.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs the similarity query. Every vectorstore.Provider satisfies it.
type Searcher interface {
	Name() string
	Query(ctx context.Context, userID string, vector []float32, topK int) (*rag.QueryResult, error)
}

// Request is one inbound query.
type Request struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// Validate reports a missing userId or message as rag.ErrValidation.
func (r Request) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("retrieval: userId is required: %w", rag.ErrValidation)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("retrieval: message is required: %w", rag.ErrValidation)
	}
	return nil
}

// Session is the ephemeral state of one query. It is never persisted.
type Session struct {
	UserID   string
	Message  string
	Settings Settings
	Stage    Stage

	// Passages are the vector store hits handed to the reranker.
	Passages []rag.Passage

	// RerankingContext is the formatted context returned by the reranker.
	RerankingContext string

	// Err is the stage failure, if any.
	Err error
}

// Orchestrator runs retrieval sessions. It holds no per-session state and is
// safe for concurrent use.
type Orchestrator struct {
	embedder QueryEmbedder
	store    Searcher
	reranker rerank.Reranker
	settings SettingsSource
	timeout  time.Duration
	metrics  *Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettings sets the settings source. The default is
// StaticSettings(DefaultSettings).
func WithSettings(s SettingsSource) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithTimeout sets the session deadline. d <= 0 keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMetrics records session outcomes and stage durations.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// TimeoutFromEnv reads RETRIEVAL_TIMEOUT, defaulting to DefaultTimeout.
func TimeoutFromEnv() time.Duration {
	return config.Duration("RETRIEVAL_TIMEOUT", DefaultTimeout)
}

// New returns an Orchestrator over its three collaborators.
func New(e QueryEmbedder, s Searcher, r rerank.Reranker, opts ...Option) (*Orchestrator, error) {
	if e == nil || s == nil || r == nil {
		return nil, fmt.Errorf("retrieval: embedder, store and reranker are required: %w", rag.ErrValidation)
	}
	o := &Orchestrator{
		embedder: e,
		store:    s,
		reranker: r,
		settings: StaticSettings(DefaultSettings),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run drives one session, writing each stage transition to sink. Only a
// validation failure is returned as an error, before any event is sent;
// stage failures become an error event. The returned Session records the
// final state, including the stage error. A panic inside a stage is
// recovered into an error event and the session is still returned.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink Sink) (sess *Session, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx).With(slog.String("user_id", req.UserID))
	start := time.Now()

	sess = &Session{UserID: req.UserID, Message: req.Message, Stage: StageStart}
	r := &run{sink: sink}

	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			o.fail(log, sess, r, fmt.Errorf("retrieval: panic in stage %s: %v", sess.Stage, p))
		}
		outcome := string(sess.Stage)
		if sess.Stage == StageReranking {
			outcome = outcomeContext
		}
		sess.Stage = StageDone
		r.sink.Send(Event{Status: StatusDone, Message: doneMessage, Context: sess.RerankingContext}) //nolint:errcheck // terminal event, nothing left to stop
		o.metrics.session(outcome, time.Since(start))
		log.Info("retrieval session complete",
			slog.String("outcome", outcome),
			slog.Int("passages", len(sess.Passages)),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	if !r.send(Event{Status: StatusStart, Message: req.Message}) {
		return sess, nil
	}

	settings, err := o.settings.Settings(sctx, req.UserID)
	if err != nil {
		o.fail(log, sess, r, fmt.Errorf("retrieval: load settings: %w", err))
		return sess, nil
	}
	sess.Settings = settings

	sess.Stage = StageEmbedding
	t := time.Now()
	vector, err := o.embedder.EmbedOne(sctx, req.Message)
	o.metrics.stage(StageEmbedding, time.Since(t))
	if err != nil {
		o.fail(log, sess, r, o.stageErr(sctx, "embed query", err))
		return sess, nil
	}
	if !r.send(Event{Status: StatusEmbedded, Message: "query embedded"}) {
		return sess, nil
	}

	sess.Stage = StageQuerying
	t = time.Now()
	res, err := o.store.Query(sctx, req.UserID, vector, settings.TopK)
	o.metrics.stage(StageQuerying, time.Since(t))
	if err != nil {
		o.fail(log, sess, r, o.stageErr(sctx, "query "+o.store.Name(), err))
		return sess, nil
	}
	if res != nil {
		sess.Passages = res.Context
	}
	if !r.send(Event{Status: StatusQueried, Message: fmt.Sprintf("retrieved %d passages", len(sess.Passages))}) {
		return sess, nil
	}

	if len(sess.Passages) == 0 {
		sess.Stage = StageNoContext
		r.send(Event{Status: StatusNoContext, Message: "no relevant context found"})
		return sess, nil
	}

	sess.Stage = StageReranking
	t = time.Now()
	reranked, err := o.reranker.Rerank(sctx, req.Message, sess.Passages, settings.Rerank)
	o.metrics.stage(StageReranking, time.Since(t))
	if err != nil {
		o.fail(log, sess, r, o.stageErr(sctx, "rerank with "+o.reranker.Name(), err))
		return sess, nil
	}
	sess.RerankingContext = reranked
	r.send(Event{Status: StatusReranked, Message: reranked})
	return sess, nil
}

// fail moves the session to the error stage and emits the error event.
func (o *Orchestrator) fail(log *slog.Logger, sess *Session, r *run, err error) {
	log.Error("retrieval stage failed",
		slog.String("stage", string(sess.Stage)),
		slog.Any("error", err),
	)
	sess.Stage = StageError
	sess.Err = err
	sess.RerankingContext = ""
	r.send(Event{Status: StatusError, Message: err.Error()})
}

// stageErr labels a stage failure, naming the session deadline when it is
// what cut the stage short.
func (o *Orchestrator) stageErr(sctx context.Context, op string, err error) error {
	if errors.Is(sctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("retrieval: %s: session timed out after %s: %w", op, o.timeout, err)
	}
	return fmt.Errorf("retrieval: %s: %w", op, err)
}

// run tracks sink health for one session. After the first send error no
// further stage events are sent.
type run struct {
	sink   Sink
	broken bool
}

func (r *run) send(e Event) bool {
	if r.broken {
		return false
	}
	if err := r.sink.Send(e); err != nil {
		r.broken = true
		return false
	}
	return true
}
