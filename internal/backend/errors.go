package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Category classifies a backend failure.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategoryAuth       Category = "auth"
	CategoryTransport  Category = "transport"
	CategoryInternal   Category = "internal"
)

var (
	// ErrMalformedResponse marks a 2xx response whose body does not have the expected shape.
	ErrMalformedResponse = errors.New("malformed backend response")
	// ErrResponseTooLarge marks a response body over backend.max_response_bytes.
	ErrResponseTooLarge = errors.New("backend response too large")
)

// Error is a typed backend failure. StatusCode is 0 when no response was received.
type Error struct {
	Category   Category
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Category)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsCategory reports whether err carries a backend Error of the given category.
func IsCategory(err error, category Category) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return be.Category == category
}

// Retryable reports whether a failed list call may be attempted again.
func Retryable(err error) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	if be.Category != CategoryTransport {
		return false
	}
	return be.StatusCode == 0 || be.StatusCode >= http.StatusInternalServerError || be.StatusCode == http.StatusTooManyRequests
}

func transportError(message string, cause error) *Error {
	return &Error{Category: CategoryTransport, Message: message, Cause: cause}
}

func internalError(message string, cause error) *Error {
	return &Error{Category: CategoryInternal, Message: message, Cause: cause}
}

func validationError(message string, cause error) *Error {
	return &Error{Category: CategoryValidation, Message: message, Cause: cause}
}

func malformedError(message string, cause error) *Error {
	if cause == nil {
		cause = ErrMalformedResponse
	} else {
		cause = fmt.Errorf("%w: %v", ErrMalformedResponse, cause)
	}
	return &Error{Category: CategoryValidation, Message: message, Cause: cause}
}

// tooLargeError is a transport failure that is never retried: the same request
// would return the same body.
func tooLargeError(statusCode int, limit int64) *Error {
	return &Error{
		Category:   CategoryTransport,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("response exceeds %d bytes (raise backend.max_response_bytes)", limit),
		Cause:      ErrResponseTooLarge,
	}
}

// classifyStatusError maps a non-2xx response to a typed error. A body of shape
// {"error": "..."} supplies the message.
func classifyStatusError(statusCode int, body []byte) *Error {
	e := &Error{StatusCode: statusCode, Message: errorMessage(body)}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Category = CategoryAuth
	case statusCode == http.StatusNotFound:
		e.Category = CategoryNotFound
	case statusCode == http.StatusConflict:
		e.Category = CategoryConflict
	case statusCode == http.StatusTooManyRequests:
		e.Category = CategoryTransport
	case statusCode >= 400 && statusCode < 500:
		e.Category = CategoryValidation
	default:
		e.Category = CategoryTransport
	}
	return e
}

func errorMessage(body []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return summarizeBody(body)
}

func summarizeBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "backend request failed"
	}
	if len(trimmed) > 512 {
		return trimmed[:512] + "..."
	}
	return trimmed
}
