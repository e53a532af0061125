// Package apierr defines the error taxonomy used throughout netvault.
//
// Every failure the upload pipeline can surface is one of the predeclared
// errors below. Handlers map them to HTTP responses via the HTTPStatus field;
// pipeline stages detect them locally and pass them up unchanged.
package apierr

import (
	"errors"
	"fmt"
)

// APIError represents a netvault API error with a machine-readable code,
// human-readable message, and the HTTP status code it maps to.
type APIError struct {
	// Code is the error kind (e.g., "MalformedFilename", "HashMismatch").
	Code string
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the HTTP status code to return (e.g., 400, 409, 500).
	HTTPStatus int
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// WithMessage returns a copy of the APIError with the message replaced.
// The code and status are preserved so errors.Is still matches the original.
func (e *APIError) WithMessage(format string, args ...any) *APIError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Is reports whether target is an APIError with the same code. This makes
// errors.Is match detail-carrying copies produced by WithMessage against
// their predeclared originals.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// FromError returns the *APIError inside err, or ErrInternal if err is not
// an APIError. A nil err returns nil.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae
	}
	return ErrInternal
}

// Client errors: the request is rejected and nothing is written.
var (
	// ErrMalformedFilename is returned when the claimed filename does not
	// match the nn-<hex digest>.nnue naming convention.
	ErrMalformedFilename = &APIError{
		Code:       "MalformedFilename",
		Message:    "The filename does not match the expected pattern",
		HTTPStatus: 400,
	}

	// ErrHashMismatch is returned when the content digest does not match
	// the digest token encoded in the filename.
	ErrHashMismatch = &APIError{
		Code:       "HashMismatch",
		Message:    "The content digest does not match the digest in the filename",
		HTTPStatus: 400,
	}

	// ErrEmptyContent is returned when the uploaded stream yields zero bytes.
	ErrEmptyContent = &APIError{
		Code:       "EmptyContent",
		Message:    "The uploaded file is empty",
		HTTPStatus: 400,
	}

	// ErrPayloadTooLarge is returned when the upload exceeds the configured
	// maximum size.
	ErrPayloadTooLarge = &APIError{
		Code:       "PayloadTooLarge",
		Message:    "The uploaded file exceeds the maximum allowed size",
		HTTPStatus: 413,
	}

	// ErrMissingFile is returned when the multipart request carries no file
	// field.
	ErrMissingFile = &APIError{
		Code:       "MissingFile",
		Message:    "The request does not contain a file upload",
		HTTPStatus: 400,
	}
)

// Conflict errors: existing on-disk state prevents the write.
var (
	// ErrArtifactConflict is returned when a stored file's digest does not
	// match the name it bears. This indicates on-disk corruption and must be
	// detected, never silently accepted.
	ErrArtifactConflict = &APIError{
		Code:       "ArtifactConflict",
		Message:    "An artifact already exists under this name with different content",
		HTTPStatus: 409,
	}
)

// Server errors: infrastructure faults, mapped to 5xx.
var (
	// ErrCompressionIO is returned when the compressor cannot read its input
	// or flush its output.
	ErrCompressionIO = &APIError{
		Code:       "CompressionIOError",
		Message:    "Failed to compress the uploaded file",
		HTTPStatus: 500,
	}

	// ErrDiskFull is returned when the storage device has no space left.
	ErrDiskFull = &APIError{
		Code:       "DiskFull",
		Message:    "No space left on the storage device",
		HTTPStatus: 500,
	}

	// ErrPermissionDenied is returned when the process lacks permission to
	// write to the storage directory.
	ErrPermissionDenied = &APIError{
		Code:       "PermissionDenied",
		Message:    "Insufficient permission to write to storage",
		HTTPStatus: 500,
	}

	// ErrInternal is returned for unexpected internal failures.
	ErrInternal = &APIError{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		HTTPStatus: 500,
	}
)

// Not-found errors for the read-side endpoints.
var (
	// ErrNoSuchArtifact is returned when the requested artifact does not exist.
	ErrNoSuchArtifact = &APIError{
		Code:       "NoSuchArtifact",
		Message:    "The specified artifact does not exist",
		HTTPStatus: 404,
	}
)
