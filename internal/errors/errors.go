package errors

import (
	"errors"
	"net/http"
)

// Kind classifies operational errors into the status they surface with.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindReset
	KindDelivery
	KindDependency
	KindTooManyRequests
)

const genericAuthMessage = "You are not logged in or your session has expired. Please log in again."

var (
	// ErrUnauthenticated is returned when no usable identity accompanies a request.
	ErrUnauthenticated = &AppError{Kind: KindAuthentication, Reason: "unauthenticated", Message: genericAuthMessage}
	// ErrInvalidToken is returned for malformed tokens or tokens signed with another key.
	ErrInvalidToken = &AppError{Kind: KindAuthentication, Reason: "invalid_token", Message: genericAuthMessage}
	// ErrTokenExpired is returned once a token's expiry has passed.
	ErrTokenExpired = &AppError{Kind: KindAuthentication, Reason: "token_expired", Message: genericAuthMessage}
	// ErrStalePassword is returned for tokens issued before the last password change.
	ErrStalePassword = &AppError{Kind: KindAuthentication, Reason: "stale_password", Message: genericAuthMessage}
	// ErrInvalidCredentials is returned when email or password is incorrect.
	ErrInvalidCredentials = &AppError{Kind: KindAuthentication, Reason: "invalid_credentials", Message: "Incorrect email or password"}
	// ErrWrongCurrentPassword is returned when a password change presents the wrong current password.
	ErrWrongCurrentPassword = &AppError{Kind: KindAuthentication, Reason: "wrong_current_password", Message: "Your current password is wrong"}
	// ErrForbidden is returned when the caller's role is not allowed.
	ErrForbidden = &AppError{Kind: KindAuthorization, Reason: "forbidden", Message: "You do not have permission to perform this action"}
	// ErrInvalidOrExpiredReset is returned for unknown, consumed or expired reset secrets.
	ErrInvalidOrExpiredReset = &AppError{Kind: KindReset, Reason: "invalid_reset", Message: "Token is invalid or has expired"}
	// ErrDelivery is returned when a notification could not be sent.
	ErrDelivery = &AppError{Kind: KindDelivery, Reason: "delivery_failed", Message: "There was an error sending the email. Try again later."}
	// ErrDependency is returned when the credential store is unavailable.
	ErrDependency = &AppError{Kind: KindDependency, Reason: "dependency_unavailable", Message: "Service temporarily unavailable. Try again later."}
	// ErrUserNotFound is returned when a lookup by email or id finds no active user.
	ErrUserNotFound = &AppError{Kind: KindNotFound, Reason: "user_not_found", Message: "There is no user with that email address"}
	// ErrEmailTaken is returned when signing up with an email already in use.
	ErrEmailTaken = &AppError{Kind: KindValidation, Reason: "email_taken", Message: "Email address is already in use"}
	// ErrTooManyResetRequests is returned when reset emails are requested too often.
	ErrTooManyResetRequests = &AppError{Kind: KindTooManyRequests, Reason: "reset_throttled", Message: "Too many password reset requests. Try again later."}
	// ErrNoIdentity signals a role check running without a resolved user.
	ErrNoIdentity = &AppError{Kind: KindInternal, Reason: "no_identity", Message: "identity missing from request context"}
)

// AppError is an operational error with a client-safe message.
type AppError struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind and reason, so wrapped copies of a
// sentinel still satisfy errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// Wrap returns a copy of e carrying cause.
func (e *AppError) Wrap(cause error) *AppError {
	cp := *e
	cp.Err = cause
	return &cp
}

// StatusCode returns the HTTP status for the error kind.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindReset:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Operational reports whether the message is safe to show to the client.
func (e *AppError) Operational() bool {
	return e.Kind != KindInternal
}

// Validation builds a 400 error with message.
func Validation(message string) *AppError {
	return &AppError{Kind: KindValidation, Reason: "validation", Message: message}
}

// Dependency wraps a credential store failure.
func Dependency(cause error) *AppError {
	return ErrDependency.Wrap(cause)
}

// Internal wraps a failure that must not leak to the client.
func Internal(cause error) *AppError {
	return &AppError{Kind: KindInternal, Reason: "internal", Message: "Something went very wrong!", Err: cause}
}

// ErrorResponse represents the failure envelope.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	status := "fail"
	if e.StatusCode >= http.StatusInternalServerError {
		status = "error"
	}
	return ErrorResponse{
		Status:  status,
		Message: e.Message,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Anything that is not an
// operational AppError becomes a generic 500.
func MapErrorToHTTP(err error) *HTTPError {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Operational() {
		return NewHTTPError(appErr.StatusCode(), appErr.Message)
	}
	return NewHTTPError(http.StatusInternalServerError, "Something went very wrong!")
}
