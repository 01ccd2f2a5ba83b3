package clinicauth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials is returned for unknown identifiers and wrong
	// passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked means the lockout window is still open.
	ErrAccountLocked = errors.New("account is locked")
	// ErrAccountInactive means the user status is not active.
	ErrAccountInactive = errors.New("account is not active")
	// ErrEmailNotVerified is returned by Login when verified email is required.
	ErrEmailNotVerified = errors.New("email address is not verified")
	// ErrInvalidToken covers missing, malformed, expired and mis-signed access tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidRefreshToken covers every refresh rotation failure.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	// ErrTokenInvalidOrExpired covers every reset/verify token failure.
	ErrTokenInvalidOrExpired = errors.New("token not found or expired")
	ErrForbidden             = errors.New("forbidden")
	ErrValidation            = errors.New("validation failed")
	ErrPasswordMismatch      = errors.New("passwords do not match")
	ErrPasswordReuse         = errors.New("new password must be different from current password")
	ErrCurrentPassword       = errors.New("current password is incorrect")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrDuplicateUsername     = errors.New("username already taken")
	ErrUserNotFound          = errors.New("user not found")
	ErrRoleNotFound          = errors.New("role not found")
	ErrSystemRoleImmutable   = errors.New("system roles cannot be modified")
	ErrRoleInUse             = errors.New("role is assigned to users")
	ErrRoleNameTaken         = errors.New("role name already exists")
	ErrRateLimited           = errors.New("too many requests")
	ErrInternal              = errors.New("internal server error")
	// ErrEngineNotReady is returned when a nil or unbuilt engine is used.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// FieldError is one field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the detailed application error. It always wraps one of the
// sentinels above, so errors.Is keeps working.
type Error struct {
	Kind        error
	Message     string
	Fields      []FieldError
	LockedUntil *time.Time
	Count       int
	cause       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	return msg
}

// Unwrap exposes the sentinel and, when present, the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// Status returns the HTTP status of the wrapped sentinel.
func (e *Error) Status() int {
	return StatusOf(e.Kind)
}

func validationError(fields ...FieldError) *Error {
	return &Error{Kind: ErrValidation, Fields: fields}
}

func field(name, msg string) FieldError {
	return FieldError{Field: name, Message: msg}
}

func lockedError(until time.Time) *Error {
	u := until.UTC()
	return &Error{Kind: ErrAccountLocked, LockedUntil: &u}
}

func internalError(cause error) *Error {
	return &Error{Kind: ErrInternal, cause: cause}
}

var statusBySentinel = []struct {
	err    error
	status int
}{
	{ErrInternal, http.StatusInternalServerError},
	{ErrInvalidCredentials, http.StatusUnauthorized},
	{ErrAccountInactive, http.StatusUnauthorized},
	{ErrEmailNotVerified, http.StatusUnauthorized},
	{ErrInvalidToken, http.StatusUnauthorized},
	{ErrInvalidRefreshToken, http.StatusUnauthorized},
	{ErrAccountLocked, http.StatusLocked},
	{ErrForbidden, http.StatusForbidden},
	{ErrSystemRoleImmutable, http.StatusForbidden},
	{ErrUserNotFound, http.StatusNotFound},
	{ErrRoleNotFound, http.StatusNotFound},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrTokenInvalidOrExpired, http.StatusBadRequest},
	{ErrValidation, http.StatusBadRequest},
	{ErrPasswordMismatch, http.StatusBadRequest},
	{ErrPasswordReuse, http.StatusBadRequest},
	{ErrCurrentPassword, http.StatusBadRequest},
	{ErrDuplicateEmail, http.StatusBadRequest},
	{ErrDuplicateUsername, http.StatusBadRequest},
	{ErrRoleInUse, http.StatusBadRequest},
	{ErrRoleNameTaken, http.StatusBadRequest},
}

// StatusOf maps any error to its HTTP status. Unknown errors are 500.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, row := range statusBySentinel {
		if errors.Is(err, row.err) {
			return row.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-safe message for err. Internal failures
// collapse to ErrInternal's text.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if StatusOf(err) == http.StatusInternalServerError {
		return ErrInternal.Error()
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Message != "" {
			return appErr.Message
		}
		if appErr.Kind != nil {
			return appErr.Kind.Error()
		}
	}
	for _, row := range statusBySentinel {
		if errors.Is(err, row.err) {
			return row.err.Error()
		}
	}
	return ErrInternal.Error()
}
