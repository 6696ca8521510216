// Package apierr defines the stable error kinds that cross the tool
// boundary. Upstream provider payloads are never considered stable across
// provider versions, so every remote failure is wrapped in an *Error carrying
// a kind tag and a human-readable message.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Kind is the stable machine-readable tag of an error.
type Kind string

const (
	// KindAuthDenied: the user declined consent. Terminal for the current
	// authorization attempt.
	KindAuthDenied Kind = "auth_denied"

	// KindReauthRequired: the refresh token was revoked or expired; the
	// caller must run the authorization flow again.
	KindReauthRequired Kind = "reauth_required"

	// KindTransient: network or 5xx failure, eligible for retry.
	KindTransient Kind = "transient"

	// KindUpstreamUnavailable: a transient failure that exhausted its retry
	// budget.
	KindUpstreamUnavailable Kind = "upstream_unavailable"

	// KindPermissionDenied, KindNotFound, KindQuotaExceeded: surfaced
	// immediately, never retried.
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindQuotaExceeded    Kind = "quota_exceeded"

	// KindValidation: malformed input, rejected before any remote call.
	KindValidation Kind = "invalid_input"

	// KindTimeout: the caller's deadline expired while waiting on an
	// in-flight retry sequence.
	KindTimeout Kind = "timeout"
)

// Error is the only error type surfaced across the tool boundary.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "gmail.modify_labels"
	Msg  string // human-readable message
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Msg, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with a formatted message and no cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an underlying error. A nil err
// returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		// Already classified; keep the original kind and innermost op.
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindTransient for unclassified errors
// so callers fail toward retry rather than toward dropping work.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Retryable reports whether err may be retried with backoff.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Classify maps an upstream error to an *Error with a stable kind. It
// understands googleapi HTTP errors, oauth2 token retrieval errors, context
// errors, and generic network failures; anything unrecognized is transient.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Op: op, Msg: "canceled", Err: err}
	}

	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		// invalid_grant is the revoked/expired refresh token signal; the
		// authorization server returns it as a 400.
		if retrieve.ErrorCode == "invalid_grant" {
			return &Error{Kind: KindReauthRequired, Op: op, Msg: "refresh token revoked or expired", Err: err}
		}
		if retrieve.Response != nil && retrieve.Response.StatusCode >= 500 {
			return &Error{Kind: KindTransient, Op: op, Err: err}
		}
		return &Error{Kind: KindReauthRequired, Op: op, Err: err}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return &Error{Kind: KindReauthRequired, Op: op, Msg: "credentials rejected", Err: err}
		case gerr.Code == 403 && hasReason(gerr, "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "dailyLimitExceeded"):
			return &Error{Kind: KindQuotaExceeded, Op: op, Err: err}
		case gerr.Code == 403:
			return &Error{Kind: KindPermissionDenied, Op: op, Err: err}
		case gerr.Code == 404:
			return &Error{Kind: KindNotFound, Op: op, Err: err}
		case gerr.Code == 429:
			return &Error{Kind: KindQuotaExceeded, Op: op, Err: err}
		case gerr.Code >= 500:
			return &Error{Kind: KindTransient, Op: op, Err: err}
		case gerr.Code >= 400:
			return &Error{Kind: KindValidation, Op: op, Err: err}
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}

	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Exhausted converts a transient error into upstream_unavailable after the
// retry budget is spent. Non-transient errors pass through unchanged.
func Exhausted(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindTransient {
		return err
	}
	return &Error{Kind: KindUpstreamUnavailable, Op: op, Msg: "retries exhausted", Err: err}
}

func hasReason(gerr *googleapi.Error, reasons ...string) bool {
	for _, item := range gerr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}
