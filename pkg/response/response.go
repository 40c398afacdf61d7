package response

import "settlement/pkg/apperror"

// Response represents a standard API response format
type Response struct {
	Status     string                `json:"status"`      // "success" or "error"
	StatusCode int                   `json:"status_code"` // HTTP status code
	Data       interface{}           `json:"data,omitempty"`
	Error      string                `json:"error,omitempty"`
	Kind       apperror.Kind         `json:"kind,omitempty"`
	Fields     []apperror.FieldError `json:"fields,omitempty"`
}

// Page wraps a list payload with its pagination metadata
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// FromAppError renders an application error with its kind and field details,
// so terminals can show which policy or field rejected the request.
func FromAppError(err *apperror.AppError) Response {
	return Response{
		Status:     "error",
		StatusCode: err.Code,
		Error:      err.Message,
		Kind:       err.Kind,
		Fields:     err.Errors,
	}
}
