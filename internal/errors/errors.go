package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrAlreadyExists is returned when a user with the same email or username exists.
	ErrAlreadyExists = errors.New("user already exist, login instead")
	// ErrNotFound is returned when a user is not found.
	ErrNotFound = errors.New("user not found")
	// ErrNotVerified is returned when the account email has not been verified yet.
	ErrNotVerified = errors.New("verify email to login")
	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOrExpiredToken is returned for unknown, consumed or expired verification and reset tokens.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrInvalidToken is returned when an access token fails signature or format checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when an access token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrValidationFailed is returned when input fields fail validation.
	ErrValidationFailed = errors.New("validation failed")
	// ErrForbidden is returned when the caller may not act on the target user.
	ErrForbidden = errors.New("forbidden")
	// ErrUnexpected wraps store and infrastructure failures.
	ErrUnexpected = errors.New("unexpected error")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Wrapped errors are matched with errors.Is.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return NewHTTPError(http.StatusNotFound, ErrNotFound.Error(), "USER_NOT_FOUND")
	case errors.Is(err, ErrAlreadyExists):
		return NewHTTPError(http.StatusBadRequest, ErrAlreadyExists.Error(), "USER_ALREADY_EXISTS")
	case errors.Is(err, ErrNotVerified):
		return NewHTTPError(http.StatusBadRequest, ErrNotVerified.Error(), "EMAIL_NOT_VERIFIED")
	case errors.Is(err, ErrInvalidCredentials):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidCredentials.Error(), "INVALID_CREDENTIALS")
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidOrExpiredToken.Error(), "INVALID_OR_EXPIRED_TOKEN")
	case errors.Is(err, ErrValidationFailed):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "VALIDATION_FAILED")
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return NewHTTPError(http.StatusUnauthorized, err.Error(), "INVALID_TOKEN")
	case errors.Is(err, ErrForbidden):
		return NewHTTPError(http.StatusForbidden, ErrForbidden.Error(), "FORBIDDEN")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
