package common

import (
	"errors"
	"fmt"
)

// Error classification codes. The orchestrator branches on these: transient
// and content errors are per-document outcomes, configuration errors halt the
// whole pipeline.
const (
	CodeTransient    = "TRANSIENT"
	CodeContentError = "CONTENT_ERROR"
	CodeConfigError  = "CONFIG_ERROR"
)

// AppError represents application-specific errors.
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

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewTransient wraps a failure that is expected to succeed on retry
// (network, timeout, quota).
func NewTransient(message string, cause error) *AppError {
	return NewAppError(CodeTransient, message, cause)
}

// NewContentError wraps a failure caused by the document's or the service
// response's content rather than transient infrastructure. The document is
// skipped and never marked processed.
func NewContentError(message string, cause error) *AppError {
	return NewAppError(CodeContentError, message, cause)
}

// NewConfigError wraps a setup problem: missing credentials, schema mismatch,
// corrupted ledger. Fatal; the pipeline must not keep running.
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(CodeConfigError, message, cause)
}

func hasCode(err error, code string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func IsTransient(err error) bool    { return hasCode(err, CodeTransient) }
func IsContentError(err error) bool { return hasCode(err, CodeContentError) }
func IsConfigError(err error) bool  { return hasCode(err, CodeConfigError) }

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
