package github

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v81/github"
)

// Default retry tuning. Four retries with a 1s base covers the common
// secondary-rate-limit window without holding a webhook evaluation for long.
const (
	DefaultMaxRetries = 4
	DefaultBaseDelay  = time.Second
)

// RetryPolicy wraps outbound API calls and retries the transient failure
// shapes the API is known to emit:
//
//   - 429, 500, 502, 503 unconditionally
//   - 403 only when response headers indicate a rate-limit condition
//     (a Retry-After header, or an exhausted X-RateLimit-Remaining)
//
// Everything else, including 404 and plain 403 permission denials, is
// propagated immediately. After MaxRetries the last error is re-raised
// unchanged.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration

	// sleep is a test seam; nil means a context-aware timer wait.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryPolicy(maxRetries int, baseDelay time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: baseDelay}
}

// Do runs fn until it succeeds, fails permanently, or the retry budget is
// spent. op names the call for logging only.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() (*github.Response, error)) error {
	_, err := DoWithResult(ctx, p, op, func() (struct{}, *github.Response, error) {
		resp, err := fn()
		return struct{}{}, resp, err
	})
	return err
}

// DoWithResult is Do for calls that return a value alongside the response.
func DoWithResult[T any](ctx context.Context, p RetryPolicy, op string, fn func() (T, *github.Response, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		val, resp, err := fn()
		if err == nil {
			return val, nil
		}

		hr := httpResponse(resp, err)
		if !retryable(hr) || attempt >= p.MaxRetries {
			return zero, err
		}

		delay := p.delayFor(hr, attempt)
		slog.Warn("retrying github call",
			"op", op,
			"attempt", attempt+1,
			"max_retries", p.MaxRetries,
			"status", hr.StatusCode,
			"delay", delay,
		)
		if serr := p.doSleep(ctx, delay); serr != nil {
			return zero, err
		}
	}
}

func (p RetryPolicy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// httpResponse digs the raw *http.Response out of a go-github call result.
// Errors without a recognizable response (network failures, decode errors)
// yield nil and are never retried.
func httpResponse(resp *github.Response, err error) *http.Response {
	if resp != nil {
		return resp.Response
	}
	switch e := err.(type) {
	case *github.ErrorResponse:
		return e.Response
	case *github.RateLimitError:
		return e.Response
	case *github.AbuseRateLimitError:
		return e.Response
	}
	return nil
}

func retryable(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	case http.StatusForbidden:
		// Only rate-limited 403s retry; a permission denial never resolves
		// by waiting.
		if resp.Header.Get("Retry-After") != "" {
			return true
		}
		return resp.Header.Get("X-RateLimit-Remaining") == "0"
	}
	return false
}

// delayFor honors a server-provided Retry-After hint in seconds, falling back
// to exponential delay (BaseDelay * 2^attempt).
func (p RetryPolicy) delayFor(resp *http.Response, attempt int) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return p.BaseDelay << attempt
}
