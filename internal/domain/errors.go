package domain

import "errors"

var (
	// ErrUnauthenticated: missing, malformed, expired or revoked credential,
	// or the user is unknown or inactive. Fatal to the connection attempt.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrAccessDenied is what clients see for both ErrForbidden and ErrNotFound.
	ErrAccessDenied = errors.New("chat not found or access denied")

	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrPersistence      = errors.New("failed to persist message")
	ErrNotActive        = errors.New("connection is not active")
)

// accessError keeps the precise cause for logs and errors.Is while
// presenting the shared client-facing text.
type accessError struct {
	cause  error
	detail string
}

func (e *accessError) Error() string {
	return ErrAccessDenied.Error() + " (" + e.detail + ")"
}

func (e *accessError) Is(target error) bool {
	return target == ErrAccessDenied
}

func (e *accessError) Unwrap() error {
	return e.cause
}

// DenyAccess wraps ErrForbidden or ErrNotFound so the result matches both the
// cause and ErrAccessDenied.
func DenyAccess(cause error, detail string) error {
	return &accessError{cause: cause, detail: detail}
}
