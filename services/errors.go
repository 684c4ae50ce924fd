package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies reconciliation failures by how callers must react.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindNotFound
	KindAmountMismatch
	KindInvalidPayload
	KindInvalidState
	KindTransientProvider
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication_failure"
	case KindNotFound:
		return "not_found"
	case KindAmountMismatch:
		return "amount_mismatch"
	case KindInvalidPayload:
		return "invalid_payload"
	case KindInvalidState:
		return "invalid_state"
	case KindTransientProvider:
		return "transient_provider_failure"
	case KindInvariant:
		return "invariant_violation"
	default:
		return "internal"
	}
}

// StatusCode is the HTTP status reported to the caller for this kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindAmountMismatch, KindInvalidPayload:
		return http.StatusBadRequest
	case KindInvalidState:
		return http.StatusConflict
	case KindTransientProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a queue retry may succeed later. Terminal kinds
// are answered to the caller and never re-enqueued.
func (k Kind) Retryable() bool {
	return k == KindTransientProvider || k == KindInternal
}

// ReconcileError is the typed error returned by the settlement pipeline.
type ReconcileError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ReconcileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ReconcileError) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *ReconcileError {
	return &ReconcileError{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a ReconcileError of kind k.
func IsKind(err error, k Kind) bool {
	var re *ReconcileError
	return errors.As(err, &re) && re.Kind == k
}
