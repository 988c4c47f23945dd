// Package embedding is the rate-limited embedding client. Every embedding call
// in the process goes through a Client so that the shared limiter sees all
// traffic to the provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/54b3r/ragpipe-go/internal/config"
	"github.com/54b3r/ragpipe-go/internal/embedder"
	"github.com/54b3r/ragpipe-go/internal/logging"
	"github.com/54b3r/ragpipe-go/internal/rag"
	"github.com/54b3r/ragpipe-go/internal/ratelimit"
)

// DefaultTimeout is the per-call deadline applied after dispatch.
const DefaultTimeout = 15 * time.Second

// Result is the outcome of one input of EmbedMany.
type Result struct {
	// Index is the position of the input text.
	Index int
	// Values is the embedding; nil when Err is set.
	Values []float32
	// Err is nil on success.
	Err error
}

// Client embeds text through a Provider under a shared Limiter.
type Client struct {
	provider embedder.Provider
	limiter  *ratelimit.Limiter
	timeout  time.Duration
	metrics  *Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics records call outcomes and limiter waits on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// TimeoutFromEnv reads EMBEDDING_TIMEOUT, defaulting to 15s.
func TimeoutFromEnv() time.Duration {
	return config.Duration("EMBEDDING_TIMEOUT", DefaultTimeout)
}

// New constructs a Client. Both provider and limiter are required.
func New(p embedder.Provider, l *ratelimit.Limiter, opts ...Option) (*Client, error) {
	if p == nil {
		return nil, fmt.Errorf("embedding: provider is required: %w", rag.ErrValidation)
	}
	if l == nil {
		return nil, fmt.Errorf("embedding: limiter is required: %w", rag.ErrValidation)
	}
	c := &Client{provider: p, limiter: l, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the provider's model name.
func (c *Client) Model() string { return c.provider.Model() }

// Timeout returns the per-call deadline.
func (c *Client) Timeout() time.Duration { return c.timeout }

// EmbedOne embeds a single text. It waits for the limiter, then calls the
// provider under its own deadline. Errors:
//
//   - rag.ErrTimeout when the per-call deadline expired,
//   - rag.ErrProvider when the provider failed,
//   - the context error when ctx was cancelled or its own deadline passed.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	waitStart := time.Now()
	release, err := c.limiter.Acquire(ctx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.callsTotal.WithLabelValues(outcomeCancelled).Inc()
		}
		return nil, fmt.Errorf("embedding: wait for limiter: %w", err)
	}
	defer release()
	c.observeWait(time.Since(waitStart))

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	vec, err := c.provider.CreateEmbedding(callCtx, text)
	elapsed := time.Since(start)
	if err == nil {
		c.observe(outcomeOK, elapsed)
		return vec, nil
	}

	switch {
	case ctx.Err() != nil:
		c.observe(outcomeCancelled, elapsed)
		return nil, fmt.Errorf("embedding: %w", ctx.Err())
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		c.observe(outcomeTimeout, elapsed)
		logging.FromContext(ctx).Debug("embedding: call timed out",
			slog.Duration("timeout", c.timeout),
			slog.String("model", c.provider.Model()),
		)
		return nil, fmt.Errorf("embedding: call exceeded %s: %w", c.timeout, rag.ErrTimeout)
	default:
		c.observe(outcomeError, elapsed)
		return nil, fmt.Errorf("embedding: %w: %w", rag.ErrProvider, err)
	}
}

// EmbedMany embeds texts concurrently and returns one Result per input, in
// input order. A failed input never affects its siblings.
func (c *Client) EmbedMany(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))
	c.EmbedEach(ctx, texts, func(r Result) { results[r.Index] = r })
	return results
}

// EmbedEach embeds texts concurrently and invokes fn as each input
// completes. Calls to fn are serialised, so fn need not be safe for
// concurrent use. EmbedEach returns after every fn call has returned.
func (c *Client) EmbedEach(ctx context.Context, texts []string, fn func(Result)) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, c.limiter.Config().MaxConcurrent)
	)
	for i, text := range texts {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := c.EmbedOne(ctx, text)
			mu.Lock()
			fn(Result{Index: i, Values: vec, Err: err})
			mu.Unlock()
		}()
	}
	wg.Wait()
}

func (c *Client) observe(outcome string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.callsTotal.WithLabelValues(outcome).Inc()
	c.metrics.callDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Client) observeWait(d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.limiterWait.Observe(d.Seconds())
}
