package errorbank

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Kind enumerates supported application error categories.
type Kind string

const (
	KindInvalidAction    Kind = "invalid_action"
	KindMalformedPayload Kind = "malformed_payload"
	KindStore            Kind = "store"
	KindInternal         Kind = "internal"
)

// AppError captures rich error context shared across transports.
type AppError struct {
	kind    Kind
	message string
	details map[string]any
	cause   error
}

// Option mutates an AppError during construction.
type Option func(*AppError)

// WithCause attaches an underlying error.
func WithCause(err error) Option {
	return func(appErr *AppError) {
		appErr.cause = err
	}
}

// WithDetail adds a single named detail value.
func WithDetail(key string, value any) Option {
	return func(appErr *AppError) {
		if appErr.details == nil {
			appErr.details = make(map[string]any)
		}
		appErr.details[key] = value
	}
}

// New constructs a new AppError with the supplied kind and message.
func New(kind Kind, message string, opts ...Option) *AppError {
	if message == "" {
		message = string(kind)
	}
	appErr := &AppError{kind: kind, message: message}
	for _, opt := range opts {
		opt(appErr)
	}
	return appErr
}

// Error satisfies the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil && e.cause.Error() != e.message {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Kind returns the error category.
func (e *AppError) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

// Message returns the human-readable message rendered to callers.
func (e *AppError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Details returns optional metadata about the error.
func (e *AppError) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

// ClientFault reports whether the caller, not the store, caused the error.
func (e *AppError) ClientFault() bool {
	if e == nil {
		return false
	}
	switch e.kind {
	case KindInvalidAction, KindMalformedPayload:
		return true
	default:
		return false
	}
}

// GRPCCode maps the error kind onto a gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if e == nil {
		return codes.Internal
	}
	switch e.kind {
	case KindInvalidAction, KindMalformedPayload:
		return codes.InvalidArgument
	case KindStore:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// InvalidAction reports an unrecognised action identifier.
func InvalidAction(opts ...Option) *AppError {
	return New(KindInvalidAction, "Invalid action", opts...)
}

// MalformedPayload reports a request body or query value that failed to parse.
// The cause message is what callers see.
func MalformedPayload(err error, opts ...Option) *AppError {
	msg := "malformed payload"
	if err != nil {
		msg = err.Error()
	}
	return New(KindMalformedPayload, msg, append([]Option{WithCause(err)}, opts...)...)
}

// Store wraps a row-store failure, keeping the backend's message visible.
func Store(err error, opts ...Option) *AppError {
	msg := "row store failure"
	if err != nil {
		msg = err.Error()
	}
	return New(KindStore, msg, append([]Option{WithCause(err)}, opts...)...)
}

// Internal constructs a generic internal error.
func Internal(message string, opts ...Option) *AppError {
	return New(KindInternal, message, opts...)
}

// From returns an AppError for any error input, wrapping unexpected values.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err.Error(), WithCause(err))
}
