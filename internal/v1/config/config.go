package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the call-report engine.
type Config struct {
	// Required variables
	GatewayToken string
	GatewayURL   string

	// Optional routing / policy
	ReportChannelID      string
	ShardCount           int
	IdleTimeoutSec       int
	RefreshIntervalSec   int
	TerminalRateLimitSec int
	AssetCacheCapacity   int
	AvatarPixelSize      int

	// Outbound publisher
	OutboundBaseURL string

	GoEnv    string
	LogLevel string

	// Admin HTTP surface
	AdminAddr            string
	AdminJWTIssuerDomain string
	AdminJWTAudience     string
	AdminSkipAuth        bool
	DevelopmentMode      bool
	AllowedOrigins       string

	// Rate limits (ulule/limiter formatted strings, e.g. "100-M")
	RateLimitAdminGlobal string
	RateLimitAdminDebug  string
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error joining every validation failure found.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: GATEWAY_TOKEN
	cfg.GatewayToken = os.Getenv("GATEWAY_TOKEN")
	if cfg.GatewayToken == "" {
		errs = append(errs, "GATEWAY_TOKEN is required")
	}

	// Required: GATEWAY_URL (format: scheme://host[:port])
	cfg.GatewayURL = os.Getenv("GATEWAY_URL")
	if cfg.GatewayURL == "" {
		errs = append(errs, "GATEWAY_URL is required")
	} else if !strings.Contains(cfg.GatewayURL, "://") {
		errs = append(errs, fmt.Sprintf("GATEWAY_URL must include a scheme (got '%s')", cfg.GatewayURL))
	}

	// Required: OUTBOUND_BASE_URL (format: host:port or scheme://host)
	cfg.OutboundBaseURL = os.Getenv("OUTBOUND_BASE_URL")
	if cfg.OutboundBaseURL == "" {
		errs = append(errs, "OUTBOUND_BASE_URL is required")
	}

	cfg.ReportChannelID = os.Getenv("REPORT_CHANNEL_ID")

	var err error
	if cfg.ShardCount, err = getEnvIntOrDefault("SHARD_COUNT", 16); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.IdleTimeoutSec, err = getEnvIntOrDefault("IDLE_TIMEOUT_SEC", 60); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.RefreshIntervalSec, err = getEnvIntOrDefault("REFRESH_INTERVAL_SEC", 60); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.TerminalRateLimitSec, err = getEnvIntOrDefault("TERMINAL_RATE_LIMIT_SEC", 20); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.AssetCacheCapacity, err = getEnvIntOrDefault("ASSET_CACHE_CAPACITY", 128); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.AvatarPixelSize, err = getEnvIntOrDefault("AVATAR_PIXEL_SIZE", 64); err != nil {
		errs = append(errs, err.Error())
	}

	// Optional: ADMIN_ADDR (defaults to ":8080"; must be host:port or :port)
	cfg.AdminAddr = getEnvOrDefault("ADMIN_ADDR", ":8080")
	if !isValidHostPort(cfg.AdminAddr) && !strings.HasPrefix(cfg.AdminAddr, ":") {
		errs = append(errs, fmt.Sprintf("ADMIN_ADDR must be in format 'host:port' or ':port' (got '%s')", cfg.AdminAddr))
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.AdminJWTIssuerDomain = os.Getenv("ADMIN_JWT_ISSUER_DOMAIN")
	cfg.AdminJWTAudience = os.Getenv("ADMIN_JWT_AUDIENCE")
	cfg.AdminSkipAuth = os.Getenv("ADMIN_SKIP_AUTH") == "true"
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	if !cfg.AdminSkipAuth && cfg.AdminJWTIssuerDomain == "" {
		errs = append(errs, "ADMIN_JWT_ISSUER_DOMAIN is required unless ADMIN_SKIP_AUTH=true")
	}

	// Rate limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitAdminGlobal = getEnvOrDefault("RATE_LIMIT_ADMIN_GLOBAL", "1000-M")
	cfg.RateLimitAdminDebug = getEnvOrDefault("RATE_LIMIT_ADMIN_DEBUG", "60-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated")
	slog.Info("configuration",
		"gateway_token", redactSecret(cfg.GatewayToken),
		"gateway_url", cfg.GatewayURL,
		"outbound_base_url", cfg.OutboundBaseURL,
		"report_channel_id", cfg.ReportChannelID,
		"shard_count", cfg.ShardCount,
		"idle_timeout_sec", cfg.IdleTimeoutSec,
		"refresh_interval_sec", cfg.RefreshIntervalSec,
		"terminal_rate_limit_sec", cfg.TerminalRateLimitSec,
		"asset_cache_capacity", cfg.AssetCacheCapacity,
		"avatar_pixel_size", cfg.AvatarPixelSize,
		"admin_addr", cfg.AdminAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the integer value of the environment variable, or a
// default value if not set. Returns an error describing the bad value if set but
// not parseable as a positive integer.
func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer (got '%s')", key, raw)
	}
	return v, nil
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
