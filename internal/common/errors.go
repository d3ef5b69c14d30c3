package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Pipeline failure taxonomy.
var (
	// ErrTransientUpstream covers rate limits, 503s, timeouts and refused
	// connections. The invoker retries these; callers only see them wrapped
	// inside ErrExhaustedRetries.
	ErrTransientUpstream  = errors.New("transient upstream failure")
	ErrExhaustedRetries   = errors.New("exhausted retries")
	ErrUpstream           = errors.New("upstream error")
	ErrUnparsableResponse = errors.New("unparsable response")
	ErrMissingInput       = errors.New("missing input")
)

// UpstreamError is a non-retryable HTTP status from an external service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s api error %d: %s", e.Service, e.StatusCode, truncateBody(e.Body, 500))
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// TransientError describes one retryable attempt failure.
type TransientError struct {
	Reason     string // rate_limited, unavailable, timeout, connection
	StatusCode int
	Cause      error
}

func (e *TransientError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Reason, e.StatusCode)
	default:
		return e.Reason
	}
}

func (e *TransientError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrTransientUpstream, e.Cause}
	}
	return []error{ErrTransientUpstream}
}

// ExhaustedRetriesError is returned once every attempt allowed by a retry
// policy failed transiently. Last holds the final attempt's failure.
type ExhaustedRetriesError struct {
	Service  string
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s: max retries exceeded after %d attempts: %v", e.Service, e.Attempts, e.Last)
	}
	return fmt.Sprintf("%s: max retries exceeded after %d attempts", e.Service, e.Attempts)
}

func (e *ExhaustedRetriesError) Unwrap() []error {
	if e.Last != nil {
		return []error{ErrExhaustedRetries, e.Last}
	}
	return []error{ErrExhaustedRetries}
}

// UnparsableResponseError keeps the raw model reply for diagnosis.
type UnparsableResponseError struct {
	Raw string
}

func (e *UnparsableResponseError) Error() string {
	return fmt.Sprintf("could not extract valid JSON from model response (%d bytes)", len(e.Raw))
}

func (e *UnparsableResponseError) Unwrap() error { return ErrUnparsableResponse }

// MissingInputError names a required document that is not on disk.
type MissingInputError struct {
	Path string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input file: %s", e.Path)
}

func (e *MissingInputError) Unwrap() error { return ErrMissingInput }

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func FailedPreconditionError(message string) error {
	return status.Error(codes.FailedPrecondition, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

func NotFoundErrorf(format string, args ...interface{}) error {
	return NotFoundError(fmt.Sprintf(format, args...))
}

func InternalErrorf(format string, args ...interface{}) error {
	return InternalError(fmt.Sprintf(format, args...))
}

func FailedPreconditionErrorf(format string, args ...interface{}) error {
	return FailedPreconditionError(fmt.Sprintf(format, args...))
}

// ToStatus maps domain errors onto gRPC status codes. Errors that already
// carry a status pass through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrConflict):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrMissingInput):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrExhaustedRetries):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
