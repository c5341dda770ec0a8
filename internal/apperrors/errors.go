package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrUnauthorized indicates the banking API rejected the credentials.
var ErrUnauthorized = errors.New("unauthorized")

// ErrRefreshTokenMissing indicates an access token exists without a refresh token.
// The user has to remove the token file and authorise again.
var ErrRefreshTokenMissing = errors.New("refresh token missing")

// ErrStateMismatch indicates the OAuth redirect carried an unexpected state value.
var ErrStateMismatch = errors.New("oauth state mismatch")

// ErrOAuthProvider indicates the OAuth provider redirected back with an error.
var ErrOAuthProvider = errors.New("oauth provider error")

// HTTPError is returned for any non-2xx response from the banking API.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
	}
	return fmt.Sprintf("GET %s: %s: %s", e.URL, e.Status, e.Body)
}

// IsFatal reports whether err belongs to the configuration/authorisation class
// that must end the process instead of being retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRefreshTokenMissing) ||
		errors.Is(err, ErrStateMismatch) ||
		errors.Is(err, ErrOAuthProvider)
}
