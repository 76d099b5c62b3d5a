package apperr

import (
	"errors"
	"fmt"
)

// Package apperr defines the error taxonomy shared by all vault services.
// Handlers translate codes to HTTP statuses; services never import net/http.

// Code is a machine-readable error classification.
type Code string

const (
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"
	CodeQuotaExceeded   Code = "QUOTA_EXCEEDED"
	CodePlanRestricted  Code = "PLAN_RESTRICTED"
	CodeConflict        Code = "CONFLICT"
	CodeRetryable       Code = "RETRYABLE"
	CodeFatal           Code = "FATAL"
)

// Error is a classified error. Detail is optional structured context
// (e.g. quota numbers) that callers may render to the user.
type Error struct {
	Code    Code
	Message string
	Detail  any
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New creates a classified error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error without losing it.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// WithDetail attaches structured detail and returns the same error.
func (e *Error) WithDetail(detail any) *Error {
	e.Detail = detail
	return e
}

// CodeOf returns the code of err, or CodeFatal for unclassified errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeFatal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}

// DetailOf returns the structured detail attached to err, if any.
func DetailOf(err error) any {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return nil
}

// Retryable reports whether the caller may retry the operation.
// The services classify transient backend faults as CodeRetryable;
// everything else is treated as final.
func Retryable(err error) bool {
	return Is(err, CodeRetryable)
}

// QuotaDetail is the structured payload attached to QuotaExceeded errors so
// callers can render an actionable upgrade prompt, not a bare failure.
type QuotaDetail struct {
	Resource   string  `json:"resource"`
	CurrentGB  float64 `json:"current_gb,omitempty"`
	LimitGB    float64 `json:"limit_gb,omitempty"`
	WouldBeGB  float64 `json:"would_be_gb,omitempty"`
	UsedUnits  int64   `json:"used_units,omitempty"`
	LimitUnits int64   `json:"limit_units,omitempty"`
	Action     string  `json:"action,omitempty"`
}
