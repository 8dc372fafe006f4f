package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/recollector/auth-service/internal/config"
	"github.com/recollector/auth-service/internal/dtos"
	"github.com/recollector/auth-service/internal/middleware"
	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/services"
	"github.com/recollector/auth-service/internal/utils"
)

type AuthController struct {
	auth       services.AuthService
	revocation services.RevocationService
	jwt        services.JWTService
	limiter    services.RateLimiterService
	cfg        *config.Config
}

func NewAuthController(
	auth services.AuthService,
	revocation services.RevocationService,
	jwt services.JWTService,
	limiter services.RateLimiterService,
	cfg *config.Config,
) *AuthController {
	return &AuthController{auth: auth, revocation: revocation, jwt: jwt, limiter: limiter, cfg: cfg}
}

var validate = validator.New()

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the 400 itself and reports false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid payload", nil, err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeValidation, "Missing required fields", nil, err)
		return false
	}
	return true
}

// refreshTokenFrom prefers the refresh cookie and falls back to the body.
func refreshTokenFrom(r *http.Request, fromBody string) string {
	if c, err := r.Cookie(utils.RefreshTokenCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return fromBody
}

func (c *AuthController) respondWithPair(w http.ResponseWriter, status int, pair models.TokenPair) {
	utils.SetRefreshCookie(w, pair.RefreshToken, c.jwt.RefreshTTL(), c.cfg.LDFlag_CORSHighSecurity)
	utils.RespondWithJSON(w, status, pair)
}

// ---------------------------------------------------------------------
// Public endpoints
// ---------------------------------------------------------------------

func (c *AuthController) Register(w http.ResponseWriter, r *http.Request) {
	var req dtos.RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, err := c.auth.Register(r.Context(), req.Email, req.Password, req.PasswordConfirm)
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}
	c.respondWithPair(w, http.StatusCreated, pair)
}

func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var req dtos.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, err := c.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}
	c.respondWithPair(w, http.StatusOK, pair)
}

func (c *AuthController) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req dtos.RefreshTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	refreshToken := refreshTokenFrom(r, req.RefreshToken)
	pair, err := c.revocation.Refresh(r.Context(), utils.NormalizeEmail(req.UserEmail), req.AccessToken, refreshToken)
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}
	c.respondWithPair(w, http.StatusOK, pair)
}

// ForgotPassword answers 200 whatever happens so the endpoint cannot be used
// to probe accounts or reset state.
func (c *AuthController) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dtos.ForgotPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if !c.sendAllowed(r, req.Email) {
		utils.RespondWithJSON(w, http.StatusOK, forgotPasswordAck)
		return
	}

	if err := c.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		entry := utils.Logger.WithError(err)
		if errors.Is(err, utils.ErrTooManyResetRequests) {
			entry.Info("password reset already pending")
		} else {
			entry.Error("password reset request failed")
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, forgotPasswordAck)
}

var forgotPasswordAck = dtos.MessageResponse{Message: "If that account exists, a reset email is on its way"}

// sendAllowed applies the email rate limits. A limiter failure blocks the
// send as well.
func (c *AuthController) sendAllowed(r *http.Request, email string) bool {
	err := c.limiter.CheckEmailRateLimits(r.Context(), utils.ClientIP(r), email)
	switch {
	case err == nil:
		return true
	case errors.Is(err, utils.ErrRateLimitExceeded):
		utils.Logger.Info("password reset email suppressed by rate limit")
	default:
		utils.Logger.WithError(err).Error("email rate limit check failed")
	}
	return false
}

func (c *AuthController) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dtos.ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := c.auth.ResetPassword(r.Context(), req.Email, req.PasswordResetToken, req.Password, req.PasswordConfirm); err != nil {
		utils.HandleAppError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dtos.MessageResponse{Message: "Password has been reset"})
}

// ---------------------------------------------------------------------
// Protected endpoints (behind middleware.RequireAuth)
// ---------------------------------------------------------------------

func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	var req dtos.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondErrorWithCode(w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid payload", nil, err)
		return
	}

	p := middleware.PrincipalFromContext(r.Context())
	c.revocation.Logout(r.Context(), p, middleware.AccessTokenFromContext(r.Context()), refreshTokenFrom(r, req.RefreshToken))

	utils.ClearRefreshCookie(w, c.cfg.LDFlag_CORSHighSecurity)
	utils.RespondWithJSON(w, http.StatusOK, dtos.MessageResponse{Message: "Logged out"})
}

func (c *AuthController) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req dtos.ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p := middleware.PrincipalFromContext(r.Context())
	err := c.auth.ChangePassword(
		r.Context(), p,
		req.PasswordCurrent, req.Password, req.PasswordConfirm,
		middleware.AccessTokenFromContext(r.Context()), refreshTokenFrom(r, req.RefreshToken),
	)
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}

	utils.ClearRefreshCookie(w, c.cfg.LDFlag_CORSHighSecurity)
	utils.RespondWithJSON(w, http.StatusOK, dtos.MessageResponse{Message: "Password changed"})
}

func (c *AuthController) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req dtos.DeleteAccountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p := middleware.PrincipalFromContext(r.Context())
	err := c.auth.DeleteAccount(
		r.Context(), p,
		req.Password, req.PasswordConfirm,
		middleware.AccessTokenFromContext(r.Context()), refreshTokenFrom(r, req.RefreshToken),
	)
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}

	utils.ClearRefreshCookie(w, c.cfg.LDFlag_CORSHighSecurity)
	utils.RespondWithJSON(w, http.StatusOK, dtos.MessageResponse{Message: "Account deleted"})
}

func (c *AuthController) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())

	resp := dtos.MeResponse{ID: p.ID.String(), Email: p.Email}
	if p.LastLogin != nil {
		ts := p.LastLogin.Unix()
		resp.LastLogin = &ts
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}
