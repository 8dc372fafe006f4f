package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/recollector/auth-service/internal/middleware"
)

const APIPrefix = "/api/v1/auth"

// NewRouter mounts every endpoint under APIPrefix. gate runs on all routes and
// only attaches identity; the protected subrouter adds RequireAuth on top.
func NewRouter(auth *AuthController, health *HealthController, gate func(http.Handler) http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, gate)

	v1 := router.PathPrefix(APIPrefix).Subrouter()

	v1.HandleFunc("/health", health.HealthCheckHandler).Methods(http.MethodGet)

	v1.HandleFunc("/register", auth.Register).Methods(http.MethodPost)
	v1.HandleFunc("/login", auth.Login).Methods(http.MethodPost)
	v1.HandleFunc("/refresh-token", auth.RefreshToken).Methods(http.MethodPost)
	v1.HandleFunc("/forgot-password", auth.ForgotPassword).Methods(http.MethodPost)
	v1.HandleFunc("/reset-password", auth.ResetPassword).Methods(http.MethodPost)

	protected := v1.NewRoute().Subrouter()
	protected.Use(middleware.RequireAuth)
	protected.HandleFunc("/logout", auth.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/change-password", auth.ChangePassword).Methods(http.MethodPost)
	protected.HandleFunc("/delete-account", auth.DeleteAccount).Methods(http.MethodPost)
	protected.HandleFunc("/me", auth.Me).Methods(http.MethodGet)

	return router
}
