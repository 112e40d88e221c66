package analytics

import (
	"errors"
	"fmt"

	"popstats/internal/gateway"
)

// ErrInvalidInput marks a request the caller must fix.
var ErrInvalidInput = errors.New("analytics: invalid input")

// RequestError carries a user-facing detail alongside its kind, which is
// ErrInvalidInput or gateway.ErrNotFound.
type RequestError struct {
	Kind   error
	Detail string
}

func (e *RequestError) Error() string {
	return e.Kind.Error() + ": " + e.Detail
}

func (e *RequestError) Unwrap() error {
	return e.Kind
}

func invalidf(format string, args ...any) error {
	return &RequestError{Kind: ErrInvalidInput, Detail: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &RequestError{Kind: gateway.ErrNotFound, Detail: fmt.Sprintf(format, args...)}
}
