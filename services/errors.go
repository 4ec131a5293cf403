package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a workflow failure
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION_ERROR"
	KindAuthorization ErrorKind = "FORBIDDEN"
	KindConflict      ErrorKind = "CONFLICT"
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindTransaction   ErrorKind = "TRANSACTION_FAILED"
)

// WorkflowError is a rejected workflow operation. Code names the rule that blocked it.
type WorkflowError struct {
	Kind    ErrorKind
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a WorkflowError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var werr *WorkflowError
	return errors.As(err, &werr) && werr.Kind == kind
}

// ErrorCode returns the rule code carried by err, or "" when err is not a WorkflowError
func ErrorCode(err error) string {
	var werr *WorkflowError
	if errors.As(err, &werr) {
		return werr.Code
	}
	return ""
}

func validationError(field, code, message string) *WorkflowError {
	return &WorkflowError{Kind: KindValidation, Code: code, Field: field, Message: message}
}

func forbidden(code, message string) *WorkflowError {
	return &WorkflowError{Kind: KindAuthorization, Code: code, Message: message}
}

func conflict(code, message string) *WorkflowError {
	return &WorkflowError{Kind: KindConflict, Code: code, Message: message}
}

func notFound(code, message string) *WorkflowError {
	return &WorkflowError{Kind: KindNotFound, Code: code, Message: message}
}

// transactionFailure wraps a persistence error raised inside a transaction.
// WorkflowErrors pass through unchanged so callers still see the rule that failed.
func transactionFailure(message string, err error) error {
	if err == nil {
		return nil
	}
	var werr *WorkflowError
	if errors.As(err, &werr) {
		return werr
	}
	return &WorkflowError{Kind: KindTransaction, Code: "TRANSACTION_FAILED", Message: message, Err: err}
}
