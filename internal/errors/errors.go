// Package errors defines stable error codes for all ccbisect failure modes.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// RevisionUnresolvable indicates a revision could not be resolved to a commit
	RevisionUnresolvable ErrorCode = "REVISION_UNRESOLVABLE"
	// RepoQueryFailed indicates a git query against the compiler repository failed
	RepoQueryFailed ErrorCode = "REPO_QUERY_FAILED"
	// BuildFailed indicates a compiler revision could not be built
	BuildFailed ErrorCode = "BUILD_FAILED"
	// BisectionAborted indicates the bisection gave up before finding a boundary
	BisectionAborted ErrorCode = "BISECTION_ABORTED"
	// BranchPointInteresting indicates the behavior already exists at the
	// common ancestor of the good and bad revisions
	BranchPointInteresting ErrorCode = "BRANCH_POINT_INTERESTING"
	// VerificationFailed indicates the candidate boundary commit did not
	// survive the final re-test
	VerificationFailed ErrorCode = "VERIFICATION_FAILED"
	// CaseInvalid indicates a case archive is malformed or incomplete
	CaseInvalid ErrorCode = "CASE_INVALID"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// BisectError represents a ccbisect error with a stable code and message
type BisectError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new BisectError
func New(code ErrorCode, message string, cause error) *BisectError {
	return &BisectError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new BisectError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *BisectError {
	return &BisectError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *BisectError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *BisectError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *BisectError) WithDetails(details interface{}) *BisectError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from err, or InternalError if err carries
// no BisectError in its chain.
func CodeOf(err error) ErrorCode {
	var be *BisectError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return InternalError
}

// HasCode reports whether err carries a BisectError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var be *BisectError
	if stderrors.As(err, &be) {
		return be.Code == code
	}
	return false
}
