package httpserver

import (
	"fmt"
	"net/http"
)

// ApiError represents a structured API error response that can be serialized to JSON.
type ApiError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	InnerError string            `json:"innerError,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	httpStatus int
}

// NewApiError creates a new ApiError with the specified code, HTTP status, and message.
// The HTTP status code determines what status will be written to the response when WriteResponse is called.
func NewApiError(code string, httpStatus int, message string) *ApiError {
	return &ApiError{
		Code:    code,
		Message: message,

		httpStatus: httpStatus,
	}
}

// HTTPStatus returns the status code for the response.
func (e ApiError) HTTPStatus() int {
	return e.httpStatus
}

// WriteResponse writes the ApiError as a JSON response, with the error's HTTP status code.
func (e ApiError) WriteResponse(w http.ResponseWriter, r *http.Request) {
	RespondWithStatus(w, r, e.httpStatus, e)
}

// Clone creates a copy of the ApiError and applies the modifications from the provided functions.
// This is useful for adding details to a pre-defined error without modifying it.
func (e ApiError) Clone(with ...func(*ApiError)) *ApiError {
	cloned := &ApiError{
		Code:    e.Code,
		Message: e.Message,

		httpStatus: e.httpStatus,
	}

	for _, w := range with {
		w(cloned)
	}

	return cloned
}

// WithInnerError returns a function that sets the InnerError field on an ApiError, to be used with Clone.
func WithInnerError(innerError error) func(*ApiError) {
	return func(e *ApiError) {
		if innerError != nil {
			e.InnerError = innerError.Error()
		}
	}
}

// WithMetadata returns a function that sets the Metadata field on an ApiError, to be used with Clone.
func WithMetadata(metadata map[string]string) func(*ApiError) {
	return func(e *ApiError) {
		e.Metadata = metadata
	}
}

// Error implements the error interface.
func (e ApiError) Error() string {
	return fmt.Sprintf("API error (%s): %s", e.Code, e.Message)
}

// Is allows using errors.Is() to compare API errors based on their code.
func (e ApiError) Is(target error) bool {
	switch t := target.(type) {
	case ApiError:
		return t.Code == e.Code
	case *ApiError:
		return t != nil && t.Code == e.Code
	default:
		return false
	}
}
