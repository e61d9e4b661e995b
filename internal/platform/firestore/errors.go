package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error records the gRPC status of a failed Firestore call so storage layers can classify it.
type Error struct {
	Op   string
	Code codes.Code
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e.Code == codes.NotFound }

// IsQuotaExceeded reports a write rejected for document size or rate limits.
func (e *Error) IsQuotaExceeded() bool {
	return e.Code == codes.ResourceExhausted || e.Code == codes.InvalidArgument
}

// IsUnavailable reports a transient backend failure.
func (e *Error) IsUnavailable() bool {
	switch e.Code {
	case codes.Unavailable, codes.Internal, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}

// WrapError attaches op and the status code to err. Cancellation is returned as the
// matching context error so callers can tell it apart from backend failures.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return &Error{Op: op, Code: code, Err: err}
}
