package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Token and revocation failures. Callers branch on these with errors.Is;
// none of them is ever shown to a client verbatim.
var (
	ErrTokenMalformedOrUnverifiable = errors.New("token_malformed_or_unverifiable")
	ErrAuthenticationFailed         = errors.New("authentication_failed")
	ErrRevocationStoreUnavailable   = errors.New("revocation_store_unavailable")
)

// Account-level errors used by the service layer.
var (
	ErrInvalidCredentials   = errors.New("invalid_credentials")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidPassword      = errors.New("invalid_password")
	ErrPasswordMismatch     = errors.New("password_confirmation_mismatch")
	ErrEmailExists          = errors.New("email_exists")
	ErrPasswordReused       = errors.New("password_reused")
	ErrPrincipalNotFound    = errors.New("principal_not_found")
	ErrResetTokenMismatch   = errors.New("reset_token_mismatch")
	ErrTooManyResetRequests = errors.New("too_many_reset_requests")
	ErrRateLimitExceeded    = errors.New("rate_limit_exceeded")

	// For external service failures (SendGrid)
	ErrExternalServiceFailure = errors.New("external_service_failure")
)

// AppError carries a status code and public message from services to controllers.
type AppError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Unauthenticated is the one response every authentication failure collapses to.
func Unauthenticated(err error) *AppError {
	return &AppError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrCodeUnauthorized,
		Message:    "Unauthorized",
		Err:        err,
	}
}

// HandleAppError centralizes responding to AppErrors.
func HandleAppError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		RespondErrorWithCode(w, appErr.StatusCode, appErr.Code, appErr.Message, nil, appErr.Err)
		return
	}

	switch {
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenMalformedOrUnverifiable),
		errors.Is(err, ErrPrincipalNotFound):
		RespondErrorWithCode(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized", nil, err)
	case errors.Is(err, ErrEmailExists):
		RespondErrorWithCode(w, http.StatusConflict, ErrCodeConflict, "An account with this email already exists", nil, err)
	case errors.Is(err, ErrInvalidEmail):
		RespondErrorWithCode(w, http.StatusBadRequest, ErrCodeValidation, "Invalid email address", nil, err)
	case errors.Is(err, ErrInvalidPassword):
		RespondErrorWithCode(w, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("Password must be %d to %d characters", MinPasswordLength, MaxPasswordLength), nil, err)
	case errors.Is(err, ErrPasswordMismatch):
		RespondErrorWithCode(w, http.StatusBadRequest, ErrCodeValidation, "Password confirmation does not match", nil, err)
	case errors.Is(err, ErrPasswordReused):
		RespondErrorWithCode(w, http.StatusBadRequest, ErrCodePasswordReused, "New password must differ from the current one", nil, err)
	case errors.Is(err, ErrResetTokenMismatch):
		RespondErrorWithCode(w, http.StatusBadRequest, ErrCodeResetTokenInvalid, "Invalid or expired reset token", nil, err)
	case errors.Is(err, ErrTooManyResetRequests),
		errors.Is(err, ErrRateLimitExceeded):
		RespondErrorWithCode(w, http.StatusTooManyRequests, ErrCodeTooManyRequests, "Too many requests", nil, err)
	case errors.Is(err, ErrExternalServiceFailure):
		RespondErrorWithCode(w, http.StatusBadGateway, ErrCodeExternalService, "Upstream service failure", nil, err)
	case errors.Is(err, ErrRevocationStoreUnavailable):
		RespondErrorWithCode(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Service temporarily unavailable", nil, err)
	default:
		RespondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred", nil, err)
	}
}
