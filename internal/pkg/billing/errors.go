package billing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies billing failures for the API layer. Every kind is
// recoverable by retry or cancellation; none is fatal to the process.
type ErrorKind string

const (
	// KindProviderUnavailable means the billing provider SDK is not configured
	// (e.g. missing secret key). The feature is disabled, not retried.
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	// KindFetchFailed covers failed read operations (methods, subscription).
	KindFetchFailed ErrorKind = "fetch_failed"
	// KindSetupRequestFailed covers a failed setup-intent creation.
	KindSetupRequestFailed ErrorKind = "setup_request_failed"
	// KindDefaultUpdateFailed covers a failed set-default call.
	KindDefaultUpdateFailed ErrorKind = "default_update_failed"
	// KindMutationFailed covers failed subscription create/update/cancel calls.
	KindMutationFailed ErrorKind = "mutation_failed"
	// KindPaymentConfirmationFailed means the hosted widget's collection
	// attempt did not succeed; the user stays in the collection UI to retry.
	KindPaymentConfirmationFailed ErrorKind = "payment_confirmation_failed"
	// KindMutationInFlight rejects a second mutation while one is pending.
	KindMutationInFlight ErrorKind = "mutation_in_flight"
)

// Error carries a kind for the API layer, a user-presentable message and the
// wrapped provider error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the error kind, or "" for non-billing errors.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsKind reports whether err carries the given billing error kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// UserMessage extracts the presentable message, falling back to a generic one.
func UserMessage(err error, fallback string) string {
	var be *Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}

// ErrNoSubscription is the "no subscription" sentinel returned by the fetcher
// when the user has never subscribed or the subscription fully expired.
var ErrNoSubscription = errors.New("no active subscription")
