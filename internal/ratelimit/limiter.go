// Package ratelimit implements the shared gate every outbound embedding call
// passes through. A call is dispatched only when all three limits agree:
//
//   - reservoir: at most Reservoir dispatches in any RefillInterval window
//     (a drained pool refills in full one interval after it was drained),
//   - concurrency: at most MaxConcurrent calls in flight,
//   - spacing: at least MinSpacing between consecutive dispatches.
//
// A dispatch is recorded at the time the caller actually wakes, so a late
// wake pushes every later reservation back. Reservations already granted
// before that wake are not revisited; a caller that oversleeps by more than
// MinSpacing may therefore dispatch closer than MinSpacing to one booked
// while it slept.
//
// The Limiter is constructed explicitly and injected; tests substitute a
// deterministic [Clock].
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/54b3r/ragpipe-go/internal/config"
)

// Default limits match the embedding provider's published quota.
const (
	DefaultReservoir      = 5000
	DefaultRefillInterval = 60 * time.Second
	DefaultMaxConcurrent  = 50
	DefaultMinSpacing     = 12 * time.Millisecond
)

// Config holds the limiter parameters. Zero fields take the defaults above.
type Config struct {
	// Reservoir is the number of dispatches allowed per RefillInterval.
	Reservoir int
	// RefillInterval is the reservoir window.
	RefillInterval time.Duration
	// MaxConcurrent is the in-flight ceiling.
	MaxConcurrent int
	// MinSpacing is the minimum delay between two dispatches. Negative
	// disables spacing.
	MinSpacing time.Duration
}

// ConfigFromEnv reads LIMITER_* variables, falling back to the defaults.
func ConfigFromEnv() Config {
	return Config{
		Reservoir:      config.Int("LIMITER_RESERVOIR", DefaultReservoir),
		RefillInterval: config.Duration("LIMITER_REFILL_INTERVAL", DefaultRefillInterval),
		MaxConcurrent:  config.Int("LIMITER_MAX_CONCURRENT", DefaultMaxConcurrent),
		MinSpacing:     config.Duration("LIMITER_MIN_SPACING", DefaultMinSpacing),
	}
}

// Limiter gates dispatches. It is safe for concurrent use by any number of
// goroutines; all callers in the process should share one instance per
// provider quota.
type Limiter struct {
	cfg   Config
	clock Clock

	// slots is a counting semaphore bounding in-flight calls.
	slots chan struct{}

	// mu guards the reservation state below.
	mu sync.Mutex
	// window is a ring of the most recent Reservoir dispatch times, indexed
	// by reservation sequence number modulo its length. Values are
	// non-decreasing in sequence order.
	window []time.Time
	// seq is the number of reservations made so far.
	seq int64
	// filled is the number of live ring entries.
	filled int
	// last is the most recently reserved dispatch time; zero before the
	// first dispatch.
	last time.Time

	inFlight   atomic.Int64
	dispatched atomic.Int64
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock substitutes the time source.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// New constructs a Limiter from cfg.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if cfg.Reservoir == 0 {
		cfg.Reservoir = DefaultReservoir
	}
	if cfg.RefillInterval == 0 {
		cfg.RefillInterval = DefaultRefillInterval
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MinSpacing == 0 {
		cfg.MinSpacing = DefaultMinSpacing
	}
	if cfg.Reservoir < 0 || cfg.MaxConcurrent < 0 || cfg.RefillInterval < 0 {
		return nil, fmt.Errorf("ratelimit: reservoir, max concurrent and refill interval must be positive")
	}

	l := &Limiter{
		cfg:    cfg,
		clock:  realClock{},
		slots:  make(chan struct{}, cfg.MaxConcurrent),
		window: make([]time.Time, cfg.Reservoir),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the resolved limiter configuration.
func (l *Limiter) Config() Config { return l.cfg }

// InFlight returns the number of calls currently holding a slot past dispatch.
func (l *Limiter) InFlight() int64 { return l.inFlight.Load() }

// Dispatched returns the total number of dispatches granted.
func (l *Limiter) Dispatched() int64 { return l.dispatched.Load() }

// Acquire blocks until the call may be dispatched, then returns a release
// function that must be called exactly once when the call completes.
// It returns ctx.Err() if ctx is done before dispatch.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	now := l.clock.Now()
	at, seq := l.reserve(now)
	if wait := at.Sub(now); wait > 0 {
		if err := l.clock.Sleep(ctx, wait); err != nil {
			// The reserved window slot is not returned; an abandoned
			// reservation only ever makes the limiter stricter.
			<-l.slots
			return nil, err
		}
		if woke := l.clock.Now(); woke.After(at) {
			l.commit(seq, woke)
		}
	}

	l.inFlight.Add(1)
	l.dispatched.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.inFlight.Add(-1)
			<-l.slots
		})
	}, nil
}

// Do runs fn once the limiter grants a dispatch and releases afterwards.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// reserve books the earliest dispatch time at or after now that satisfies the
// reservoir window and the spacing constraint, and records it under the
// returned sequence number. The oldest live entry bounds the window.
func (l *Limiter) reserve(now time.Time) (time.Time, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	at := now
	if !l.last.IsZero() {
		floor := l.last
		if l.cfg.MinSpacing > 0 {
			floor = floor.Add(l.cfg.MinSpacing)
		}
		if at.Before(floor) {
			at = floor
		}
	}

	size := int64(len(l.window))
	if l.filled == len(l.window) {
		oldest := l.window[(l.seq-size)%size]
		if ready := oldest.Add(l.cfg.RefillInterval); ready.After(at) {
			at = ready
		}
	} else {
		l.filled++
	}

	seq := l.seq
	l.window[seq%size] = at
	l.seq++
	l.last = at
	return at, seq
}

// commit moves reservation seq forward to the time its caller woke. Later
// entries booked earlier than woke are raised with it so the ring stays
// ordered; recording them late only makes the limiter stricter.
func (l *Limiter) commit(seq int64, woke time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := int64(len(l.window))
	if evicted := seq < l.seq-int64(l.filled); !evicted {
		for s := seq; s < l.seq; s++ {
			i := s % size
			if !l.window[i].Before(woke) {
				break
			}
			l.window[i] = woke
		}
	}
	if woke.After(l.last) {
		l.last = woke
	}
}
