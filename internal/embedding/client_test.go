package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/ragpipe-go/internal/rag"
	"github.com/54b3r/ragpipe-go/internal/ratelimit"
)

// stubProvider returns a one-element vector holding len(text), unless the
// text has a behaviour prefix:
//
//	"hang:" blocks until the context is done
//	"fail:" returns a provider error
type stubProvider struct {
	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (p *stubProvider) Model() string { return "stub-embed" }

func (p *stubProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if cur <= peak || p.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	switch {
	case strings.HasPrefix(text, "hang:"):
		<-ctx.Done()
		return nil, ctx.Err()
	case strings.HasPrefix(text, "fail:"):
		return nil, errors.New("upstream said no")
	}
	time.Sleep(time.Millisecond)
	return []float32{float32(len(text))}, nil
}

func newTestLimiter(t *testing.T, maxConcurrent int) *ratelimit.Limiter {
	t.Helper()
	l, err := ratelimit.New(ratelimit.Config{
		Reservoir:      10000,
		RefillInterval: time.Minute,
		MaxConcurrent:  maxConcurrent,
		MinSpacing:     -1,
	})
	require.NoError(t, err)
	return l
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(nil, newTestLimiter(t, 1))
	assert.ErrorIs(t, err, rag.ErrValidation)

	_, err = New(&stubProvider{}, nil)
	assert.ErrorIs(t, err, rag.ErrValidation)
}

func TestEmbedOne_Success(t *testing.T) {
	t.Parallel()

	c, err := New(&stubProvider{}, newTestLimiter(t, 2))
	require.NoError(t, err)

	vec, err := c.EmbedOne(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, vec)
	assert.Equal(t, "stub-embed", c.Model())
	assert.Equal(t, DefaultTimeout, c.Timeout())
}

func TestEmbedOne_TimeoutIsDistinctFromProviderError(t *testing.T) {
	t.Parallel()

	c, err := New(&stubProvider{}, newTestLimiter(t, 2), WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = c.EmbedOne(context.Background(), "hang: forever")
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrTimeout)
	assert.NotErrorIs(t, err, rag.ErrProvider)

	_, err = c.EmbedOne(context.Background(), "fail: please")
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrProvider)
	assert.NotErrorIs(t, err, rag.ErrTimeout)
	assert.Contains(t, err.Error(), "upstream said no")
}

func TestEmbedOne_ParentCancellationIsNotATimeout(t *testing.T) {
	t.Parallel()

	c, err := New(&stubProvider{}, newTestLimiter(t, 2), WithTimeout(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = c.EmbedOne(ctx, "hang: until cancelled")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, rag.ErrTimeout)
}

func TestEmbedMany_IsolatesFailures(t *testing.T) {
	t.Parallel()

	c, err := New(&stubProvider{}, newTestLimiter(t, 4), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk-%02d", i)
	}
	texts[2] = "hang: chunk 3"
	texts[6] = "fail: chunk 7"

	results := c.EmbedMany(context.Background(), texts)
	require.Len(t, results, 10)

	var failed []int
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		if r.Err != nil {
			failed = append(failed, i)
			assert.Nil(t, r.Values)
			continue
		}
		assert.Equal(t, []float32{float32(len(texts[i]))}, r.Values)
	}
	assert.Equal(t, []int{2, 6}, failed)
	assert.ErrorIs(t, results[2].Err, rag.ErrTimeout)
	assert.ErrorIs(t, results[6].Err, rag.ErrProvider)
}

func TestEmbedEach_RespectsConcurrencyCeiling(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	c, err := New(p, newTestLimiter(t, 3))
	require.NoError(t, err)

	texts := make([]string, 40)
	for i := range texts {
		texts[i] = "text"
	}

	var (
		mu   sync.Mutex
		seen int
	)
	c.EmbedEach(context.Background(), texts, func(r Result) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	assert.Equal(t, 40, seen)
	assert.Equal(t, int64(40), p.calls.Load())
	assert.LessOrEqual(t, p.peak.Load(), int64(3))
}

func TestMetrics_RecordOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	l := newTestLimiter(t, 2)
	c, err := New(&stubProvider{}, l, WithTimeout(20*time.Millisecond), WithMetrics(NewMetrics(reg, l)))
	require.NoError(t, err)

	_, _ = c.EmbedOne(context.Background(), "ok")
	_, _ = c.EmbedOne(context.Background(), "ok again")
	_, _ = c.EmbedOne(context.Background(), "hang: x")
	_, _ = c.EmbedOne(context.Background(), "fail: x")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	var sawGauge, sawWait bool
	for _, mf := range mfs {
		switch mf.GetName() {
		case "ragpipe_embedding_calls_total":
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "outcome" {
						counts[lp.GetValue()] = m.GetCounter().GetValue()
					}
				}
			}
		case "ragpipe_limiter_in_flight":
			sawGauge = true
			assert.Zero(t, mf.GetMetric()[0].GetGauge().GetValue())
		case "ragpipe_limiter_wait_seconds":
			sawWait = true
			assert.Equal(t, uint64(4), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}

	assert.Equal(t, map[string]float64{"ok": 2, "timeout": 1, "error": 1}, counts)
	assert.True(t, sawGauge, "in-flight gauge not registered")
	assert.True(t, sawWait, "limiter wait histogram not registered")
}

func TestTimeoutFromEnv(t *testing.T) {
	t.Setenv("EMBEDDING_TIMEOUT", "3s")
	assert.Equal(t, 3*time.Second, TimeoutFromEnv())

	t.Setenv("EMBEDDING_TIMEOUT", "")
	assert.Equal(t, DefaultTimeout, TimeoutFromEnv())
}
