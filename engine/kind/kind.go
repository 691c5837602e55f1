// Package kind implements the closed error-kind taxonomy from spec.md §7
// on top of core.Error: every failure the engine produces is classified
// into one of these kinds so the executor, queue, and dispatcher can each
// make a terminal-vs-retry decision without inspecting error strings.
package kind

import (
	"errors"

	"github.com/workflowd/workflowd/engine/core"
)

type Kind string

const (
	NotConnected   Kind = "not_connected"
	ReauthRequired Kind = "reauth_required"
	NotFound       Kind = "not_found"
	InvalidRequest Kind = "invalid_request"
	RateLimited    Kind = "rate_limited"
	Transient      Kind = "transient"
	ProviderError  Kind = "provider_error"
	Internal       Kind = "internal"
)

// Error wraps core.Error with a Kind and an optional RetryAfter, the only
// additional signal a rate-limited response carries.
type Error struct {
	*core.Error
	Kind       Kind
	RetryAfter int // seconds; 0 when the provider didn't say
}

func newErr(k Kind, err error, details map[string]any) *Error {
	return &Error{Error: core.NewError(err, string(k), details), Kind: k}
}

func New(k Kind, err error) *Error                    { return newErr(k, err, nil) }
func NewWithDetails(k Kind, err error, d map[string]any) *Error { return newErr(k, err, d) }

func NewRateLimited(err error, retryAfter int) *Error {
	e := newErr(RateLimited, err, nil)
	e.RetryAfter = retryAfter
	return e
}

// Retryable reports whether the queue should retry a job that failed with
// this kind. Only Transient, RateLimited and ProviderError are retried;
// everything else is a terminal, synchronous failure.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case Transient, RateLimited, ProviderError:
		return true
	default:
		return false
	}
}

// As extracts a *kind.Error from an error chain, the idiomatic way
// callers (executor, queue) learn whether a failure is retryable.
func As(err error) (*Error, bool) {
	var k *Error
	if errors.As(err, &k) {
		return k, true
	}
	return nil, false
}

// Of returns the Kind of err, or Internal if err does not carry one —
// the conservative default for an unclassified failure.
func Of(err error) Kind {
	if k, ok := As(err); ok {
		return k.Kind
	}
	return Internal
}

// FromHTTPStatus maps a third-party adapter's HTTP status code to a Kind,
// per spec.md §4.2's adapter error-translation rule.
func FromHTTPStatus(status int, err error) *Error {
	switch {
	case status == 401:
		return New(Unauthorized(), err)
	case status == 403:
		return New(Forbidden(), err)
	case status == 404:
		return New(NotFound, err)
	case status == 429:
		return New(RateLimited, err)
	case status >= 500:
		return New(Transient, err)
	case status >= 400:
		return New(InvalidRequest, err)
	default:
		return New(Internal, err)
	}
}

// Unauthorized and Forbidden are not distinct Kinds — per spec.md §7 they
// are "treated as ReauthRequired" once past the initial credential check,
// so both map to the same post-refresh kind. Kept as funcs (not consts) so
// the mapping reads explicitly at each call site.
func Unauthorized() Kind { return ReauthRequired }
func Forbidden() Kind    { return ReauthRequired }
