// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindQuotaExceeded
)

// Error is the single error type handlers know how to render.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Kind and Message so sentinels survive wrapping with details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// WithDetails returns a copy carrying client-visible details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Status maps the error kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrInvalidTarget   = &Error{Kind: KindValidation, Message: "invalid target"}
	ErrQuotaExceeded   = &Error{Kind: KindQuotaExceeded, Message: "daily quota exceeded"}
	ErrPremiumRequired = &Error{Kind: KindForbidden, Message: "premium subscription required"}
	ErrMatchInactive   = &Error{Kind: KindForbidden, Message: "match is no longer active"}
	ErrNotParticipant  = &Error{Kind: KindForbidden, Message: "not a participant"}
	ErrAlreadyBlocked  = &Error{Kind: KindConflict, Message: "user already blocked"}
	ErrAlreadyMatched  = &Error{Kind: KindConflict, Message: "users are already matched"}
	ErrBadSignature    = &Error{Kind: KindUnauthenticated, Message: "invalid signature"}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
)

// Map converts repo/infra errors into the domain taxonomy.
// Errors that are already *Error pass through untouched.
func Map(err error) *Error {
	if err == nil {
		return nil
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Message: "record not found", cause: err}

	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Message: "already exists", cause: err}

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindInternal, Message: "request timed out", cause: err}

	default:
		// upstream detail stays in logs only
		return &Error{Kind: KindInternal, Message: "internal server error", cause: err}
	}
}

// InvalidArgument creates a validation error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// AlreadyExists creates a conflict error.
func AlreadyExists(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Unauthenticated(msg string) error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func QuotaExceeded(msg string) error {
	return &Error{Kind: KindQuotaExceeded, Message: msg}
}

// Internal wraps an upstream failure; cause is logged, never rendered.
func Internal(msg string, cause error) error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}
