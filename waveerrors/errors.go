// Package waveerrors declares the closed set of error kinds that the
// planner, engine, and adapters are allowed to surface to a caller.
//
// Every kind is a *errors.Kind from gopkg.in/src-d/go-errors.v1, the same
// pattern the engine's own auth package uses for ErrNotAuthorized and
// ErrNoPermission: a package-level Kind constructed once, instantiated with
// .New(args...) at the error site, and classified with .Is(err) by callers.
package waveerrors

import (
	stderrors "errors"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrConnection means the engine could not establish or maintain a
	// connection to a remote source.
	ErrConnection = errors.NewKind("connection failed: %s")

	// ErrAuthentication means the remote source rejected credentials.
	ErrAuthentication = errors.NewKind("authentication failed: %s")

	// ErrQuery means a statement was malformed, referenced a missing
	// parameter, or a mutation was missing its required identifying
	// predicate.
	ErrQuery = errors.NewKind("query error: %s")

	// ErrAdapter means a source adapter failed for a reason other than
	// authentication, rate-limiting, or timeout (typically a transport or
	// decoding failure).
	ErrAdapter = errors.NewKind("adapter error: %s")

	// ErrSchema means schema discovery or validation failed.
	ErrSchema = errors.NewKind("schema error: %s")

	// ErrRateLimit means a source's rate limit was exceeded and the retry
	// controller exhausted its attempts. RetryAfter, when known, is the
	// number of seconds the source asked the caller to wait.
	ErrRateLimit = errors.NewKind("rate limit exceeded, retry after %d seconds")

	// ErrPushdownUnsupported means an adapter could not honour some part of
	// a pushdown plan. The engine handles this internally via fallback; it
	// must never reach a caller.
	ErrPushdownUnsupported = errors.NewKind("pushdown unsupported: %s")

	// ErrTimeout means a request's connect or read deadline expired.
	ErrTimeout = errors.NewKind("timeout: %s")

	// ErrConfiguration means a pool, adapter, or connection string was
	// configured inconsistently.
	ErrConfiguration = errors.NewKind("configuration error: %s")

	// ErrUnsupportedOperation means a write was attempted against an
	// adapter whose corresponding capability flag is false (spec §4.2).
	ErrUnsupportedOperation = errors.NewKind("%s does not support %s")
)

// RateLimitError is the concrete error value behind ErrRateLimit, carrying
// the retry-after hint so callers can inspect it without string-parsing the
// message.
type RateLimitError struct {
	cause      error
	RetryAfter int
}

func (e *RateLimitError) Error() string { return e.cause.Error() }

func (e *RateLimitError) Unwrap() error { return e.cause }

// NewRateLimitError builds the RateLimitError surfaced when the retry
// controller exhausts its attempts against a rate-limited source.
func NewRateLimitError(retryAfter int) *RateLimitError {
	return &RateLimitError{
		cause:      ErrRateLimit.New(retryAfter),
		RetryAfter: retryAfter,
	}
}

// IsRateLimit reports whether err is (or wraps) an ErrRateLimit.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	if stderrors.As(err, &rle) {
		return true
	}
	return ErrRateLimit.Is(err)
}
