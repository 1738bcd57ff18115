package gateway

import (
	"context"
	"fmt"
	"net"

	"github.com/cockroachdb/errors"
)

// Error carries a taxonomy kind with a human-readable detail.
// Services return it from typed operations; ResultFromError shapes it
// into the uniform contract at the tool boundary.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Detail
}

// NewError returns an Error with the given kind and detail.
func NewError(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Errorf returns an Error with a formatted detail.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf classifies an error into the taxonomy. Errors that are not
// already shaped are reported as internal, except for deadline and
// network conditions which map to their dedicated kinds.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	return KindInternal
}

// ResultFromError shapes an error into a failed Result.
// Shaped errors keep their detail; anything else gets a generic detail
// so internals never leak to the protocol layer.
func ResultFromError(err error) *Result {
	var te *Error
	if errors.As(err, &te) {
		return Failure(te.Kind, te.Detail)
	}
	switch kind := KindOf(err); kind {
	case KindTimeout:
		return Failure(kind, "the operation did not complete in time")
	case KindConnection:
		return Failure(kind, "upstream is unreachable")
	default:
		return Failure(KindInternal, "unexpected error")
	}
}
