package core

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType represents the kind of error that occurred
type ErrorType string

const (
	// ErrorTypeRemoteUnavailable indicates the remote backend could not be
	// reached or returned a server error
	ErrorTypeRemoteUnavailable ErrorType = "remote_unavailable"
	// ErrorTypePersistenceUnavailable indicates the local durable store is
	// inaccessible
	ErrorTypePersistenceUnavailable ErrorType = "persistence_unavailable"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401/403)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
)

// ServiceError is the base error type for all barback errors
type ServiceError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *ServiceError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRemoteUnavailable:
		return http.StatusBadGateway
	case ErrorTypePersistenceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *ServiceError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewRemoteUnavailableError creates a new remote backend error
func NewRemoteUnavailableError(message string, err error) *ServiceError {
	return &ServiceError{
		Type:       ErrorTypeRemoteUnavailable,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// NewPersistenceUnavailableError creates a new durable store error
func NewPersistenceUnavailableError(message string, err error) *ServiceError {
	return &ServiceError{
		Type:       ErrorTypePersistenceUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *ServiceError {
	return NewInvalidRequestErrorWithStatus(http.StatusBadRequest, message, err)
}

// NewInvalidRequestErrorWithStatus creates a new invalid request error with a specific status code
func NewInvalidRequestErrorWithStatus(statusCode int, message string, err error) *ServiceError {
	return &ServiceError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(message string) *ServiceError {
	return &ServiceError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// ParseRemoteError translates an error response from the remote backend into
// a ServiceError. The backend replies with JSON error bodies of varying
// shapes ({"message": ...}, {"error": {"message": ...}}, {"msg": ...}), so
// the message is extracted with gjson rather than a fixed struct.
func ParseRemoteError(statusCode int, body []byte, originalErr error) *ServiceError {
	message := string(body)
	for _, path := range []string{"message", "error.message", "msg", "error"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.Str != "" {
			message = v.Str
			break
		}
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		err := NewAuthenticationError(message)
		err.Err = originalErr
		return err
	case statusCode == http.StatusNotFound:
		err := NewNotFoundError(message)
		err.Err = originalErr
		return err
	case statusCode >= 400 && statusCode < 500:
		return NewInvalidRequestErrorWithStatus(statusCode, message, originalErr)
	default:
		// 5xx and anything unexpected: the backend is unavailable as far as
		// the cache is concerned.
		return NewRemoteUnavailableError(message, originalErr)
	}
}
