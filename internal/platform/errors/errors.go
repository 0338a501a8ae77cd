// Package errors provides structured, coded error handling for the engine.
package errors

import (
	stderrors "errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// As is errors.As re-exported so callers of this package do not need a
// second errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Domain is the error domain for statevar errors.
const Domain = "github.com/tavernforge/statevar"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Event model errors
	CodeEventNotObject Code = "EVENT_NOT_OBJECT"
	CodeEventInvalid   Code = "EVENT_INVALID"

	// Table store errors
	CodeStoreMissingRowID Code = "STORE_MISSING_ROW_ID"
	CodePatchMissingRow   Code = "PATCH_MISSING_ROW_PAYLOAD"
	CodePatchConflict     Code = "PATCH_CONFLICT"

	// Storage errors
	CodeStoragePathRequired Code = "STORAGE_PATH_REQUIRED"
	CodeNotFound            Code = "NOT_FOUND"

	// Replay errors
	CodeBaselineUnreadable Code = "BASELINE_UNREADABLE"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with contextual metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from any error. Returns CodeUnknown if
// the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeEventNotObject,
		CodeEventInvalid,
		CodeStoreMissingRowID,
		CodePatchMissingRow,
		CodeStoragePathRequired,
		CodeBaselineUnreadable:
		return codes.InvalidArgument
	case CodePatchConflict:
		return codes.FailedPrecondition
	case CodeNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// ToGRPCStatus converts the error to a gRPC status with errdetails, for
// callers that surface engine results over RPC.
func (e *Error) ToGRPCStatus() error {
	grpcCode := e.Code.GRPCCode()
	st := status.New(grpcCode, e.Message)

	st, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(e.Code),
		Domain:   Domain,
		Metadata: e.Metadata,
	})
	if err != nil {
		return status.New(grpcCode, e.Message).Err()
	}
	return st.Err()
}
