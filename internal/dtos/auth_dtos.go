package dtos

// ----------------------
// Register / Login
// ----------------------

type RegisterRequest struct {
	Email           string `json:"email" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ----------------------
// Refresh / Logout
// ----------------------

// RefreshTokenRequest may omit RefreshToken when the refresh cookie is sent.
type RefreshTokenRequest struct {
	UserEmail    string `json:"user_email" validate:"required"`
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ----------------------
// Credential changes
// ----------------------

type ChangePasswordRequest struct {
	PasswordCurrent string `json:"password_current" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
	RefreshToken    string `json:"refresh_token,omitempty"`
}

type DeleteAccountRequest struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
	RefreshToken    string `json:"refresh_token,omitempty"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

type ResetPasswordRequest struct {
	Email              string `json:"email" validate:"required"`
	PasswordResetToken string `json:"password_reset_token" validate:"required"`
	Password           string `json:"password" validate:"required"`
	PasswordConfirm    string `json:"password_confirm" validate:"required"`
}

// ----------------------
// Responses
// ----------------------

type MessageResponse struct {
	Message string `json:"message"`
}

type MeResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	LastLogin *int64 `json:"last_login,omitempty"`
}

type HealthCheckResponse struct {
	Status string `json:"status"`
}
