package llm_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/llm"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func testPolicy(attempts int) llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts:       attempts,
		Timeout:           time.Second,
		BaseDelay:         5 * time.Second,
		RateLimitExpCap:   4,
		UnavailableExpCap: 3,
		NetworkExpCap:     3,
		RetryAfterGrace:   2 * time.Second,
	}
}

func TestInvoke_RateLimitedThenSuccess(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var bodies []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	inv := llm.NewInvoker(nil, llm.WithSleep(rec.sleep))
	req, err := llm.NewJSONRequest("test", srv.URL, nil, map[string]any{"prompt": "same every time"})
	require.NoError(t, err)

	out, err := inv.Invoke(context.Background(), req, testPolicy(5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, int32(4), calls.Load())

	require.Len(t, bodies, 4)
	for _, b := range bodies {
		assert.Equal(t, bodies[0], b)
	}
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}, rec.delays)
}

func TestInvoke_RetryAfterHeaderAddsGrace(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	inv := llm.NewInvoker(nil, llm.WithSleep(rec.sleep))
	_, err := inv.Invoke(context.Background(), llm.Request{Service: "test", URL: srv.URL, Body: []byte(`{}`)}, testPolicy(3))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{9 * time.Second}, rec.delays)
}

func TestInvoke_UnavailableExhausts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	inv := llm.NewInvoker(nil, llm.WithSleep(rec.sleep))
	_, err := inv.Invoke(context.Background(), llm.Request{Service: "test", URL: srv.URL, Body: []byte(`{}`)}, testPolicy(6))
	require.Error(t, err)

	assert.True(t, errors.Is(err, common.ErrExhaustedRetries))
	assert.True(t, errors.Is(err, common.ErrTransientUpstream))
	var ex *common.ExhaustedRetriesError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 6, ex.Attempts)
	assert.Equal(t, int32(6), calls.Load())

	// No sleep after the final attempt; exponent capped at 3.
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 40 * time.Second,
	}, rec.delays)
}

func TestInvoke_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`bad request`))
	}))
	defer srv.Close()

	inv := llm.NewInvoker(nil, llm.WithSleep((&sleepRecorder{}).sleep))
	_, err := inv.Invoke(context.Background(), llm.Request{Service: "test", URL: srv.URL, Body: []byte(`{}`)}, testPolicy(5))

	var up *common.UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, http.StatusBadRequest, up.StatusCode)
	assert.Equal(t, "bad request", up.Body)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, errors.Is(err, common.ErrExhaustedRetries))
}

func TestInvoke_ConnectionRefusedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	rec := &sleepRecorder{}
	inv := llm.NewInvoker(nil, llm.WithSleep(rec.sleep))
	_, err := inv.Invoke(context.Background(), llm.Request{Service: "test", URL: url, Body: []byte(`{}`)}, testPolicy(3))

	require.True(t, errors.Is(err, common.ErrExhaustedRetries))
	var te *common.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "connection", te.Reason)
	assert.Len(t, rec.delays, 2)
}

func TestInvoke_AttemptTimeoutRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"late":false}`))
	}))
	defer srv.Close()

	policy := testPolicy(2)
	policy.Timeout = 50 * time.Millisecond

	rec := &sleepRecorder{}
	inv := llm.NewInvoker(nil, llm.WithSleep(rec.sleep))
	out, err := inv.Invoke(context.Background(), llm.Request{Service: "test", URL: srv.URL, Body: []byte(`{}`)}, policy)
	require.NoError(t, err)
	assert.JSONEq(t, `{"late":false}`, string(out))
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.delays)
}

func TestInvoke_ContextCancelledStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	inv := llm.NewInvoker(nil, llm.WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	_, err := inv.Invoke(ctx, llm.Request{Service: "test", URL: srv.URL, Body: []byte(`{}`)}, testPolicy(5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicyFromConfig(t *testing.T) {
	p := llm.PolicyFromConfig(common.LLMConfig{MaxRetries: 15, TimeoutSeconds: 120, BaseDelaySeconds: 5})
	assert.Equal(t, 15, p.MaxAttempts)
	assert.Equal(t, 120*time.Second, p.Timeout)
	assert.Equal(t, 5*time.Second, p.BaseDelay)
	assert.Equal(t, 4, p.RateLimitExpCap)
	assert.Equal(t, 3, p.UnavailableExpCap)
	assert.Equal(t, 2*time.Second, p.RetryAfterGrace)
}

func TestInvoke_MalformedURLIsNotRetried(t *testing.T) {
	for _, url := range []string{"://no-scheme", "api.example.com/v1/chat/completions", "ftp://api.example.com/chat"} {
		t.Run(url, func(t *testing.T) {
			rec := &sleepRecorder{}
			inv := llm.NewInvoker(nil, llm.WithSleep(rec.sleep))
			req, err := llm.NewJSONRequest("test", url, nil, map[string]any{"prompt": "x"})
			require.NoError(t, err)

			_, err = inv.Invoke(context.Background(), req, testPolicy(5))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidInput))
			assert.False(t, errors.Is(err, common.ErrExhaustedRetries))
			assert.Empty(t, rec.delays)
		})
	}
}
