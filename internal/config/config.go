package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"
	"github.com/robfig/cron/v3"

	"github.com/recollector/auth-service/internal/tokens"
	"github.com/recollector/auth-service/internal/utils"
)

// Config holds all application configuration, including secrets and flags.
type Config struct {
	AppName          string
	AppPort          string
	AppUrl           string
	DBUrl            string
	AccessSecret     []byte
	RefreshSecret    []byte
	AccessTTLMinutes int64
	RefreshTTLHours  int64
	SweepSchedule    string
	RunMigrations    bool
	SendGridAPIKey   string
	SendGridFrom     string
	LDSDKKey         string
	PasswordResetTTL time.Duration

	// Password-reset email rate limits
	GlobalEmailLimitPerHour     int
	EmailLimitPerIPPerHour      int
	EmailLimitPerAddressPerHour int
	RateLimitWindow             time.Duration
	RateLimitCleanupSchedule    string

	// Static flags fetched once from LaunchDarkly
	LDFlag_ShortTokenTTL       bool
	LDFlag_CORSHighSecurity    bool
	LDFlag_SendgridSandboxMode bool
}

// Constants for configuration defaults.
const (
	DefaultAppPort             = "8080"
	DefaultAppUrl              = "http://localhost:5173"
	DefaultAccessTTLMinutes    = 60
	DefaultRefreshTTLHours     = 168
	DefaultSweepSchedule       = "* * * * *"
	DefaultPasswordResetTTL    = time.Hour
	TestShortAccessTTLMinutes  = 1
	TestShortRefreshTTLHours   = 1
	LDConnectionTimeout        = 5 * time.Second
	DefaultLDServerContextKind = "service"

	DefaultGlobalEmailLimitPerHour     = 500
	DefaultEmailLimitPerIPPerHour      = 10
	DefaultEmailLimitPerAddressPerHour = 3
	DefaultRateLimitWindow             = time.Hour
	DefaultRateLimitCleanupSchedule    = "10 3 * * *"
)

// Global compile-time overrides.
var (
	AppName             = "auth-service"
	LDServerContextKey  = "auth-service"
	LDServerContextKind = DefaultLDServerContextKind
)

// AllowedOrigins lists the CORS origins. Without cors_high_security the local
// dev front end is allowed alongside AppUrl.
func (c *Config) AllowedOrigins() []string {
	origins := []string{c.AppUrl}
	if !c.LDFlag_CORSHighSecurity && c.AppUrl != DefaultAppUrl {
		origins = append(origins, DefaultAppUrl)
	}
	return origins
}

// AccessTTL is the access-token lifetime as a duration.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

// RefreshTTL is the refresh-token lifetime as a duration.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLHours) * time.Hour
}

// Keys builds the typed signing keys from the configured secrets.
func (c *Config) Keys() (tokens.AccessKey, tokens.RefreshKey, error) {
	ak, err := tokens.NewAccessKey(c.AccessSecret)
	if err != nil {
		return tokens.AccessKey{}, tokens.RefreshKey{}, err
	}
	rk, err := tokens.NewRefreshKey(c.RefreshSecret)
	if err != nil {
		return tokens.AccessKey{}, tokens.RefreshKey{}, err
	}
	return ak, rk, nil
}

// LoadConfig reads an optional .env file, then the process environment, then
// the LaunchDarkly flags. Any configuration error is fatal.
func LoadConfig() *Config {
	utils.Logger.Info("Loading config for app: ", AppName)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		utils.Logger.WithError(err).Fatal("Failed to parse .env file")
	}

	cfg, err := LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Invalid configuration")
	}

	if cfg.LDSDKKey == "" {
		utils.Logger.Info("LD_SDK_KEY not set; feature flags use their defaults")
		return cfg
	}

	//----------------------------------------------------------------------
	// Initialize the LaunchDarkly client with the LD_SDK_KEY.
	//----------------------------------------------------------------------
	ldClient, err := ld.MakeClient(cfg.LDSDKKey, LDConnectionTimeout)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to create LaunchDarkly client")
	}
	defer ldClient.Close()
	if !ldClient.Initialized() {
		utils.Logger.Fatal("LaunchDarkly client failed to initialize")
	}

	if err := ApplyFlags(cfg, ldClient); err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving LaunchDarkly flags")
	}
	return cfg
}

// LoadConfigFromEnv builds a Config from lookup, applying defaults and
// validating every value.
func LoadConfigFromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		AppName:          AppName,
		AppPort:          get("APP_PORT", DefaultAppPort),
		AppUrl:           get("APP_URL", DefaultAppUrl),
		DBUrl:            get("DB_URL", ""),
		AccessSecret:     []byte(get("JWT_ACCESS_SECRET", "")),
		RefreshSecret:    []byte(get("JWT_REFRESH_SECRET", "")),
		SweepSchedule:    get("SWEEP_SCHEDULE", DefaultSweepSchedule),
		SendGridAPIKey:   get("SENDGRID_API_KEY", ""),
		SendGridFrom:     get("SENDGRID_FROM_EMAIL", ""),
		LDSDKKey:         get("LD_SDK_KEY", ""),
		PasswordResetTTL: DefaultPasswordResetTTL,

		RateLimitWindow:          DefaultRateLimitWindow,
		RateLimitCleanupSchedule: DefaultRateLimitCleanupSchedule,
	}

	if cfg.DBUrl == "" {
		return nil, errors.New("DB_URL env var is missing")
	}
	if _, err := strconv.Atoi(cfg.AppPort); err != nil {
		return nil, fmt.Errorf("APP_PORT must be numeric, got %q", cfg.AppPort)
	}

	var err error
	if cfg.AccessTTLMinutes, err = positiveInt(get("JWT_ACCESS_TTL_MINUTES", ""), DefaultAccessTTLMinutes); err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_TTL_MINUTES: %w", err)
	}
	if cfg.RefreshTTLHours, err = positiveInt(get("JWT_REFRESH_TTL_HOURS", ""), DefaultRefreshTTLHours); err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_TTL_HOURS: %w", err)
	}
	if cfg.RunMigrations, err = boolOr(get("RUN_MIGRATIONS", ""), true); err != nil {
		return nil, fmt.Errorf("RUN_MIGRATIONS: %w", err)
	}

	limits := []struct {
		env string
		dst *int
		def int64
	}{
		{"GLOBAL_EMAIL_LIMIT_PER_HOUR", &cfg.GlobalEmailLimitPerHour, DefaultGlobalEmailLimitPerHour},
		{"EMAIL_LIMIT_PER_IP_PER_HOUR", &cfg.EmailLimitPerIPPerHour, DefaultEmailLimitPerIPPerHour},
		{"EMAIL_LIMIT_PER_ADDRESS_PER_HOUR", &cfg.EmailLimitPerAddressPerHour, DefaultEmailLimitPerAddressPerHour},
	}
	for _, l := range limits {
		n, err := positiveInt(get(l.env, ""), l.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.env, err)
		}
		*l.dst = int(n)
	}

	if _, _, err := cfg.Keys(); err != nil {
		return nil, fmt.Errorf("JWT secrets: %w", err)
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		return nil, fmt.Errorf("SWEEP_SCHEDULE %q: %w", cfg.SweepSchedule, err)
	}
	if _, err := cron.ParseStandard(cfg.RateLimitCleanupSchedule); err != nil {
		return nil, fmt.Errorf("rate limit cleanup schedule %q: %w", cfg.RateLimitCleanupSchedule, err)
	}

	if cfg.SendGridAPIKey != "" && cfg.SendGridFrom == "" {
		return nil, errors.New("SENDGRID_FROM_EMAIL is required when SENDGRID_API_KEY is set")
	}

	utils.Logger.Debugf("App can be accessed at: %s", cfg.AppUrl)
	return cfg, nil
}

// FlagSource is the part of *ld.LDClient used to read static flags.
type FlagSource interface {
	BoolVariation(key string, context ldcontext.Context, defaultVal bool) (bool, error)
}

// ApplyFlags reads the boolean flags once and folds them into cfg. A true
// short_token_ttl shrinks both token lifetimes for test environments.
func ApplyFlags(cfg *Config, src FlagSource) error {
	context := ldcontext.NewWithKind(ldcontext.Kind(LDServerContextKind), LDServerContextKey)

	var err error
	if cfg.LDFlag_ShortTokenTTL, err = src.BoolVariation("short_token_ttl", context, false); err != nil {
		return fmt.Errorf("short_token_ttl: %w", err)
	}
	utils.Logger.Debugf("short_token_ttl flag: %t", cfg.LDFlag_ShortTokenTTL)

	if cfg.LDFlag_CORSHighSecurity, err = src.BoolVariation("cors_high_security", context, false); err != nil {
		return fmt.Errorf("cors_high_security: %w", err)
	}
	utils.Logger.Debugf("cors_high_security flag: %t", cfg.LDFlag_CORSHighSecurity)

	if cfg.LDFlag_SendgridSandboxMode, err = src.BoolVariation("sendgrid_sandbox_mode", context, false); err != nil {
		return fmt.Errorf("sendgrid_sandbox_mode: %w", err)
	}
	utils.Logger.Debugf("sendgrid_sandbox_mode flag: %t", cfg.LDFlag_SendgridSandboxMode)

	if cfg.LDFlag_ShortTokenTTL {
		cfg.AccessTTLMinutes = TestShortAccessTTLMinutes
		cfg.RefreshTTLHours = TestShortRefreshTTLHours
	}
	return nil
}

func positiveInt(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func boolOr(raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}
