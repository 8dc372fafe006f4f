package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"github.com/recollector/auth-service/internal/app"
	"github.com/recollector/auth-service/internal/config"
	"github.com/recollector/auth-service/internal/controllers"
	"github.com/recollector/auth-service/internal/middleware"
	"github.com/recollector/auth-service/internal/repositories"
	"github.com/recollector/auth-service/internal/services"
	"github.com/recollector/auth-service/internal/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize application:", err)
	}
	defer application.Close()

	accessKey, refreshKey, err := cfg.Keys()
	if err != nil {
		utils.Logger.WithError(err).Fatal("Invalid signing secrets")
	}

	//----------------------------------------------------------------------
	// Repositories
	//----------------------------------------------------------------------
	principalRepo := repositories.NewPrincipalRepository(application.DB, utils.SystemClock)
	revokedRepo := repositories.NewRevokedTokenRepository(application.DB, utils.SystemClock)
	rateLimitRepo := repositories.NewRateLimitRepository(application.DB, utils.SystemClock)

	//----------------------------------------------------------------------
	// Services
	//----------------------------------------------------------------------
	jwtService := services.NewJWTService(
		accessKey,
		refreshKey,
		cfg.AccessTTLMinutes,
		cfg.RefreshTTLHours,
		utils.SystemClock,
	)
	revocationService := services.NewRevocationService(principalRepo, revokedRepo, jwtService, utils.SystemClock)
	authService := services.NewAuthService(
		principalRepo,
		revokedRepo,
		jwtService,
		revocationService,
		services.NewMailer(cfg),
		utils.SystemClock,
		cfg.PasswordResetTTL,
	)
	tokenCleanupService := services.NewTokenCleanupService(revokedRepo, utils.SystemClock, cfg.SweepSchedule)

	rateLimiterService := services.NewRateLimiterService(rateLimitRepo, services.EmailLimits{
		Global:     cfg.GlobalEmailLimitPerHour,
		PerIP:      cfg.EmailLimitPerIPPerHour,
		PerAddress: cfg.EmailLimitPerAddressPerHour,
		Window:     cfg.RateLimitWindow,
	})
	rateLimitCleanupService := services.NewRateLimitCleanupService(rateLimitRepo)

	//----------------------------------------------------------------------
	// Controllers & Router
	//----------------------------------------------------------------------
	authController := controllers.NewAuthController(authService, revocationService, jwtService, rateLimiterService, cfg)
	healthController := controllers.NewHealthController(application.DB)

	gate := middleware.AuthMiddleware(principalRepo, revokedRepo, jwtService.Access())
	router := controllers.NewRouter(authController, healthController, gate)

	co := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})

	//----------------------------------------------------------------------
	// Revocation sweeper
	//----------------------------------------------------------------------
	if err := tokenCleanupService.Start(); err != nil {
		utils.Logger.WithError(err).Fatal("Failed to schedule revoked-token sweep")
	}

	//----------------------------------------------------------------------
	// Daily rate limit counter cleanup via cron
	//----------------------------------------------------------------------
	c := cron.New()
	_, schErr := c.AddFunc(cfg.RateLimitCleanupSchedule, func() {
		if e := rateLimitCleanupService.CleanupDaily(ctx); e != nil {
			utils.Logger.WithError(e).Error("Scheduled rate limit counter cleanup failed")
		}
	})
	if schErr != nil {
		utils.Logger.WithError(schErr).Fatal("Failed to schedule rate limit counter cleanup job")
	}
	c.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           co.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		utils.Logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			utils.Logger.WithError(err).Error("Server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.WithError(err).Error("HTTP server shutdown did not complete cleanly")
	}
	if err := tokenCleanupService.Stop(shutdownCtx); err != nil {
		utils.Logger.WithError(err).Error("Revoked-token sweeper did not stop cleanly")
	}
	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		utils.Logger.Warn("Rate limit cleanup still running at shutdown")
	}
	utils.Logger.Info("Server stopped")
}
