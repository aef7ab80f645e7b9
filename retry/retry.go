// Package retry implements the retry/back-off controller described in spec
// §4.4: it wraps an HTTP request callable, honours a 429 response's
// Retry-After hint, and applies exponential back-off with jitter up to a
// bounded number of attempts before surfacing waveerrors.ErrRateLimit.
//
// The spec calls for "a synchronous form and a cooperative-concurrency form
// with identical semantics". In Go, goroutines already provide cooperative
// scheduling over a single set of OS threads, so one Controller serves both
// of httppool's Pool variants — the blocking-call path calls Do directly on
// the caller's goroutine, the cooperative path calls it from a worker
// goroutine dispatched by the engine. See SPEC_FULL.md §2 and spec.md §9's
// "two near-duplicate connection classes... collapse to a single set of
// interfaces parameterised by scheduling mode".
package retry

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mitayan0/WaveQL/waveerrors"
)

// RateLimitStatusCode is the HTTP status the spec documents as the
// rate-limit signal (spec §6 "Rate-limit signal").
const RateLimitStatusCode = http.StatusTooManyRequests

// maxTransientRetries bounds retries of transient connection resets that
// are not rate-limit signals (spec §4.4 "transient connection resets may be
// retried up to a small constant").
const maxTransientRetries = 2

// Config configures a Controller.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Jitter, when non-nil, is added to each computed back-off delay. nil
	// defaults to a random duration in [0, BaseDelay).
	Jitter func() time.Duration
}

// Controller wraps HTTP request callables with rate-limit-aware retry.
type Controller struct {
	cfg Config
	log logrus.FieldLogger
}

// New builds a Controller.
func New(cfg Config, log logrus.FieldLogger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Jitter == nil {
		base := cfg.BaseDelay
		cfg.Jitter = func() time.Duration {
			if base <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(base)))
		}
	}
	return &Controller{cfg: cfg, log: log}
}

// Do executes request until it succeeds, exhausts MaxRetries against
// rate-limiting, or fails with a non-retryable error. request is called at
// least once. The *http.Response returned on the RateLimitStatusCode path
// is the final (still-429) response when retries are exhausted; the error
// in that case satisfies waveerrors.ErrRateLimit.Is.
func (c *Controller) Do(ctx context.Context, request func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	var transientAttempts int

	for attempt := 0; ; attempt++ {
		resp, err := request(ctx)
		if err != nil {
			if isTransient(err) && transientAttempts < maxTransientRetries {
				transientAttempts++
				c.log.WithError(err).WithField("attempt", transientAttempts).Debug("retry: transient error, retrying")
				continue
			}
			return nil, err
		}

		if resp.StatusCode != RateLimitStatusCode {
			return resp, nil
		}

		retryAfter := retryAfterSeconds(resp)
		if attempt >= c.cfg.MaxRetries {
			return resp, waveerrors.NewRateLimitError(retryAfter)
		}

		delay := c.backoff(attempt, retryAfter)
		c.log.WithFields(logrus.Fields{
			"attempt":     attempt + 1,
			"retry_after": retryAfter,
			"delay":       delay,
		}).Debug("retry: rate limited, backing off")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff computes max(retryAfter, base*2^attempt + jitter), the formula
// spec §4.4 specifies verbatim.
func (c *Controller) backoff(attempt, retryAfterSeconds int) time.Duration {
	exp := time.Duration(float64(c.cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	withJitter := exp + c.cfg.Jitter()
	hinted := time.Duration(retryAfterSeconds) * time.Second
	if hinted > withJitter {
		return hinted
	}
	return withJitter
}

func retryAfterSeconds(resp *http.Response) int {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}

// isTransient reports whether err looks like a connection reset worth a
// small, bounded number of blind retries, as opposed to a hard failure
// that should propagate immediately (spec §4.4).
func isTransient(err error) bool {
	type temporary interface{ Temporary() bool }
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return false
}
