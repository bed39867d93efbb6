package score

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightbridge/insightbridge/internal/governance"
	"github.com/insightbridge/insightbridge/pkg/domain"
)

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(map[string]int{
		"agent-1": 85,
		"agent-2": -5,
		"agent-3": 150,
	})
	ctx := context.Background()

	score, err := src.Resolve(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 85, score)

	t.Run("clamps_out_of_range", func(t *testing.T) {
		score, err := src.Resolve(ctx, "agent-2")
		require.NoError(t, err)
		assert.Equal(t, 0, score)

		score, err = src.Resolve(ctx, "agent-3")
		require.NoError(t, err)
		assert.Equal(t, 100, score)
	})

	t.Run("unknown_subject_fails", func(t *testing.T) {
		score, err := src.Resolve(ctx, "stranger")
		assert.ErrorIs(t, err, domain.ErrScoreUnavailable)
		assert.Equal(t, 0, score)
	})
}

// countingSource counts resolutions and can be switched to failing.
type countingSource struct {
	calls   int
	failing bool
	score   int
}

func (c *countingSource) Resolve(context.Context, string) (int, error) {
	c.calls++
	if c.failing {
		return 0, fmt.Errorf("%w: backend down", domain.ErrScoreUnavailable)
	}
	return c.score, nil
}

func TestCachedSourceServesFresh(t *testing.T) {
	inner := &countingSource{score: 80}
	cached := NewCachedSource(inner, time.Minute, 10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		score, err := cached.Resolve(ctx, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, 80, score)
	}
	assert.Equal(t, 1, inner.calls, "fresh hits must not reach the backend")
}

func TestCachedSourceExpiry(t *testing.T) {
	inner := &countingSource{score: 80}
	cached := NewCachedSource(inner, 50*time.Millisecond, 10)
	ctx := context.Background()

	_, err := cached.Resolve(ctx, "agent-1")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = cached.Resolve(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "an expired entry must be re-resolved, never served stale")
}

func TestCachedSourceDoesNotCacheFailures(t *testing.T) {
	inner := &countingSource{failing: true}
	cached := NewCachedSource(inner, time.Minute, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		score, err := cached.Resolve(ctx, "agent-1")
		assert.ErrorIs(t, err, domain.ErrScoreUnavailable)
		assert.Equal(t, 0, score)
	}
	assert.Equal(t, 3, inner.calls)
}

func TestHTTPSource(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/subjects/agent-1/score", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"score": 73, "fetchedAt": "2026-01-01T00:00:00Z"}`)
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL, "secret", time.Second)
		score, err := src.Resolve(context.Background(), "agent-1")
		require.NoError(t, err)
		assert.Equal(t, 73, score)
	})

	t.Run("non_200_fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL, "", time.Second)
		score, err := src.Resolve(context.Background(), "agent-1")
		assert.ErrorIs(t, err, domain.ErrScoreUnavailable)
		assert.Equal(t, 0, score)
	})

	t.Run("bad_body_fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "not json")
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL, "", time.Second)
		_, err := src.Resolve(context.Background(), "agent-1")
		assert.ErrorIs(t, err, domain.ErrScoreUnavailable)
	})

	t.Run("timeout_fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL, "", 50*time.Millisecond)
		score, err := src.Resolve(context.Background(), "agent-1")
		assert.ErrorIs(t, err, domain.ErrScoreUnavailable)
		assert.Equal(t, 0, score)
	})

	t.Run("clamps_out_of_range", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"score": 9001}`)
		}))
		defer server.Close()

		src := NewHTTPSource(server.URL, "", time.Second)
		score, err := src.Resolve(context.Background(), "agent-1")
		require.NoError(t, err)
		assert.Equal(t, 100, score)
	})
}

func TestBreakerSourceOpensAfterFailures(t *testing.T) {
	inner := &countingSource{failing: true}
	breaker := governance.NewCircuitBreaker(governance.CircuitBreakerConfig{
		MaxFailures:         3,
		Timeout:             time.Minute,
		MaxHalfOpenRequests: 1,
	})
	src := NewBreakerSource(inner, breaker)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		score, err := src.Resolve(ctx, "agent-1")
		assert.Error(t, err)
		assert.Equal(t, 0, score)
	}

	// Circuit is now open: the backend stops seeing traffic but callers keep
	// getting fail-closed denials.
	callsBefore := inner.calls
	score, err := src.Resolve(ctx, "agent-1")
	assert.ErrorIs(t, err, domain.ErrScoreUnavailable)
	assert.Equal(t, 0, score)
	assert.Equal(t, callsBefore, inner.calls)
}

func TestBreakerSourcePassesThroughSuccess(t *testing.T) {
	inner := &countingSource{score: 90}
	src := NewBreakerSource(inner, governance.NewCircuitBreaker(governance.DefaultCircuitBreakerConfig()))

	score, err := src.Resolve(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 90, score)
}

func TestBreakerSourceRecovers(t *testing.T) {
	inner := &countingSource{failing: true, score: 90}
	breaker := governance.NewCircuitBreaker(governance.CircuitBreakerConfig{
		MaxFailures:         1,
		Timeout:             50 * time.Millisecond,
		MaxHalfOpenRequests: 1,
	})
	src := NewBreakerSource(inner, breaker)
	ctx := context.Background()

	_, err := src.Resolve(ctx, "agent-1")
	require.Error(t, err)

	// After the open interval the breaker admits a probe; a success closes it.
	time.Sleep(80 * time.Millisecond)
	inner.failing = false

	score, err := src.Resolve(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 90, score)
}
