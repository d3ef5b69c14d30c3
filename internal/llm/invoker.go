package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/exam-grader/internal/common"
)

// RetryPolicy controls how one service is retried. Exponents are capped per
// failure class: base * 2^min(attempt, cap).
type RetryPolicy struct {
	MaxAttempts       int
	Timeout           time.Duration // per attempt
	BaseDelay         time.Duration
	RateLimitExpCap   int
	UnavailableExpCap int
	NetworkExpCap     int
	RetryAfterGrace   time.Duration
}

// PolicyFromConfig builds the policy for one configured service.
func PolicyFromConfig(cfg common.LLMConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       cfg.MaxRetries,
		Timeout:           cfg.Timeout(),
		BaseDelay:         cfg.BaseDelay(),
		RateLimitExpCap:   4,
		UnavailableExpCap: 3,
		NetworkExpCap:     3,
		RetryAfterGrace:   2 * time.Second,
	}
}

const (
	reasonRateLimited = "rate_limited"
	reasonTooLarge    = "too_large"
	reasonUnavailable = "unavailable"
	reasonTimeout     = "timeout"
	reasonConnection  = "connection"
)

func (p RetryPolicy) backoff(reason string, attempt int, header http.Header) time.Duration {
	switch reason {
	case reasonRateLimited, reasonTooLarge:
		if d, ok := retryAfter(header); ok {
			return d + p.RetryAfterGrace
		}
		return exp(p.BaseDelay, attempt, p.RateLimitExpCap)
	case reasonUnavailable:
		return exp(p.BaseDelay, attempt, p.UnavailableExpCap)
	default:
		return exp(p.BaseDelay, attempt, p.NetworkExpCap)
	}
}

func exp(base time.Duration, attempt, limit int) time.Duration {
	if attempt > limit {
		attempt = limit
	}
	return base * time.Duration(1<<attempt)
}

// retryAfter reads delta-seconds or an HTTP date.
func retryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Invoker sends prepared requests with per-class backoff. Only the sleeping
// goroutine blocks; concurrent jobs share the invoker freely.
type Invoker struct {
	client  *http.Client
	logger  *slog.Logger
	limiter *rate.Limiter
	sleep   SleepFunc
	metrics *Metrics
}

type InvokerOption func(*Invoker)

func WithHTTPClient(c *http.Client) InvokerOption {
	return func(i *Invoker) {
		if c != nil {
			i.client = c
		}
	}
}

// WithRateLimit spaces attempts to at most rpm per minute. Zero disables it.
func WithRateLimit(rpm int) InvokerOption {
	return func(i *Invoker) {
		if rpm > 0 {
			i.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
		}
	}
}

func WithSleep(fn SleepFunc) InvokerOption {
	return func(i *Invoker) {
		if fn != nil {
			i.sleep = fn
		}
	}
}

func NewInvoker(logger *slog.Logger, opts ...InvokerOption) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Invoker{
		client:  &http.Client{},
		logger:  logger,
		sleep:   sleepCtx,
		metrics: NewMetrics(),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Invoke sends req until it gets a 200, a non-retryable status, or runs out
// of attempts. The request body is never rebuilt between attempts.
func (i *Invoker) Invoke(ctx context.Context, req Request, policy RetryPolicy) ([]byte, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := common.LoggerFromContext(ctx, i.logger).With("service", req.Service)

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if i.limiter != nil {
			if err := i.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		logger.Debug("llm.invoke.attempt", "attempt", attempt+1, "max_attempts", attempts)
		resp, err := i.once(ctx, req, policy.Timeout, logger)

		var reason string
		var header http.Header
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, common.ErrInvalidInput) {
				// a request that cannot be built fails the same way every time
				i.metrics.OutcomesTotal.WithLabelValues(req.Service, "invalid_request").Inc()
				return nil, err
			}
			reason = classifyTransport(err)
			last = &common.TransientError{Reason: reason, Cause: err}
		case resp.status == http.StatusOK:
			i.metrics.OutcomesTotal.WithLabelValues(req.Service, "ok").Inc()
			return resp.body, nil
		case resp.status == http.StatusTooManyRequests:
			reason, header = reasonRateLimited, resp.header
			last = &common.TransientError{Reason: reason, StatusCode: resp.status}
		case resp.status == http.StatusRequestEntityTooLarge:
			reason, header = reasonTooLarge, resp.header
			last = &common.TransientError{Reason: reason, StatusCode: resp.status}
		case resp.status == http.StatusServiceUnavailable:
			reason = reasonUnavailable
			last = &common.TransientError{Reason: reason, StatusCode: resp.status}
		default:
			i.metrics.OutcomesTotal.WithLabelValues(req.Service, "upstream_error").Inc()
			logger.Error("llm.invoke.upstream_error", "status", resp.status, "attempt", attempt+1)
			return nil, &common.UpstreamError{Service: req.Service, StatusCode: resp.status, Body: string(resp.body)}
		}

		if attempt == attempts-1 {
			break
		}
		delay := policy.backoff(reason, attempt, header)
		i.metrics.RetriesTotal.WithLabelValues(req.Service, reason).Inc()
		logger.Warn("llm.invoke.retry",
			"reason", reason,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"delay_ms", delay.Milliseconds(),
		)
		if err := i.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	i.metrics.OutcomesTotal.WithLabelValues(req.Service, "exhausted").Inc()
	logger.Error("llm.invoke.exhausted", "attempts", attempts, "error", last)
	return nil, &common.ExhaustedRetriesError{Service: req.Service, Attempts: attempts, Last: last}
}

func (i *Invoker) once(ctx context.Context, req Request, timeout time.Duration, logger *slog.Logger) (response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	i.metrics.AttemptsTotal.WithLabelValues(req.Service).Inc()
	resp, err := send(ctx, i.client, req, logger)
	i.metrics.AttemptDuration.WithLabelValues(req.Service).Observe(time.Since(start).Seconds())
	return resp, err
}

func classifyTransport(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return reasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return reasonTimeout
	}
	return reasonConnection
}
