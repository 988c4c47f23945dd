package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the per-caller request throttle.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20

	// callerIdle is how long an unused bucket is kept.
	callerIdle = 5 * time.Minute
)

// callerBucket is one caller's token bucket.
type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// throttle limits protected routes per caller. Every embedding a request
// triggers spends the caller's share of the provider quota, so requests
// carrying a userId are bucketed by user; anything else falls back to the
// remote IP.
type throttle struct {
	mu      sync.Mutex
	buckets map[string]*callerBucket

	rps   rate.Limit
	burst int
	now   func() time.Time
	log   *slog.Logger
}

// newThrottle starts a throttle and its idle-bucket sweeper. The returned
// function stops the sweeper.
func newThrottle(rps float64, burst int, log *slog.Logger) (*throttle, func()) {
	t := &throttle{
		buckets: make(map[string]*callerBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		log:     log,
	}
	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(time.Minute)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				t.sweep()
			}
		}
	}()
	return t, func() { close(done) }
}

func (t *throttle) bucket(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[key]
	if !ok {
		b = &callerBucket{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[key] = b
	}
	b.lastSeen = t.now()
	return b.limiter
}

// sweep drops buckets idle for longer than callerIdle.
func (t *throttle) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-callerIdle)
	for k, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, k)
		}
	}
}

// size is the number of live buckets.
func (t *throttle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// middleware rejects over-quota callers with 429. Retry-After carries the
// whole seconds until the caller's next token.
func (t *throttle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		now := t.now()
		res := t.bucket(key).ReserveN(now, 1)
		if !res.OK() {
			t.reject(w, r, key, time.Second)
			return
		}
		if delay := res.DelayFrom(now); delay > 0 {
			res.CancelAt(now)
			t.reject(w, r, key, delay)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *throttle) reject(w http.ResponseWriter, r *http.Request, key string, wait time.Duration) {
	t.log.WarnContext(r.Context(), "rate limit exceeded",
		slog.String("caller", key),
		slog.String("path", r.URL.Path),
		slog.Duration("retry_after", wait),
	)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
}

// callerKey returns "user:<id>" when the JSON body names a userId, otherwise
// "ip:<addr>". The body is restored in full for the next handler.
func callerKey(r *http.Request) string {
	if r.Body != nil && r.Body != http.NoBody {
		head, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
		if err == nil {
			var peek struct {
				UserID string `json:"userId"`
			}
			if json.Unmarshal(head, &peek) == nil && peek.UserID != "" {
				return "user:" + peek.UserID
			}
		}
	}
	return "ip:" + clientIP(r)
}

// clientIP is the remote host without its port. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
