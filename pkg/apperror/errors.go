package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Kind classifies an AppError independently of its message.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindValidation          Kind = "validation"
	KindForbidden           Kind = "forbidden"
	KindExternalUnavailable Kind = "external_unavailable"
	KindInternal            Kind = "internal"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Kind    Kind         `json:"kind"`
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	Err     error        `json:"-"`
}

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError of the same kind, so callers can write
// errors.Is(err, apperror.ErrConflict) regardless of the message.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Common errors
var (
	ErrNotFound            = &AppError{Kind: KindNotFound, Code: http.StatusNotFound, Message: "Resource not found"}
	ErrConflict            = &AppError{Kind: KindConflict, Code: http.StatusConflict, Message: "Conflict"}
	ErrValidation          = &AppError{Kind: KindValidation, Code: http.StatusUnprocessableEntity, Message: "Validation failed"}
	ErrForbidden           = &AppError{Kind: KindForbidden, Code: http.StatusForbidden, Message: "Forbidden"}
	ErrExternalUnavailable = &AppError{Kind: KindExternalUnavailable, Code: http.StatusServiceUnavailable, Message: "External service unavailable"}
	ErrInternal            = &AppError{Kind: KindInternal, Code: http.StatusInternalServerError, Message: "Internal server error"}
)

// NotFound creates a not found error for a named resource
func NotFound(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Code: http.StatusNotFound, Message: resource + " not found"}
}

// Conflict creates a conflict error with a custom message
func Conflict(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindConflict, Code: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates a policy error explaining which rule blocked the mutation
func Forbidden(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindForbidden, Code: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error with a custom message and optional field errors
func Validation(message string, fields ...FieldError) *AppError {
	return &AppError{Kind: KindValidation, Code: http.StatusUnprocessableEntity, Message: message, Errors: fields}
}

// ExternalUnavailable wraps a failure of an exchange-rate feed or payment processor
func ExternalUnavailable(service string, err error) *AppError {
	return &AppError{Kind: KindExternalUnavailable, Code: http.StatusServiceUnavailable, Message: service + " unavailable", Err: err}
}

// FromValidation converts validator errors into a validation AppError
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation(err.Error())
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		fields = append(fields, FieldError{Field: fe.Field(), Message: msg})
	}
	return Validation("Validation failed", fields...)
}

// IsKind reports whether err is an AppError of the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// GetAppError converts an error to AppError if possible
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{
		Kind:    KindInternal,
		Code:    http.StatusInternalServerError,
		Message: err.Error(),
	}
}
