// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeValidation reports a violated invariant: title too long, coordinate
	// out of range, rating outside [1,5], or a malformed request.
	CodeValidation Code = "VALIDATION"
	// CodeNotFound reports a lookup by id that matched no row.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConstraint reports a failed referential constraint, such as a rating
	// that references a pin that does not exist.
	CodeConstraint Code = "CONSTRAINT"
	// CodeStorageUnavailable reports that storage could not be opened, created,
	// or reached in time.
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	// CodeSerialization reports malformed persisted data encountered on read.
	CodeSerialization Code = "SERIALIZATION"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConstraint:
		return http.StatusConflict
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may reasonably retry an operation that
// failed with this code. The storage layer itself never retries.
func (c Code) Retryable() bool {
	return c == CodeStorageUnavailable
}
