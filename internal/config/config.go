package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the HTTP API, background jobs and the bot.
type Config struct {
	HTTPAddr        string
	DatabaseURL     string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	RedisURL     string
	TaskCacheTTL time.Duration

	TelegramToken  string
	ReportInterval time.Duration

	PurgeAfter time.Duration
	PurgeAt    string

	ShutdownTimeout time.Duration
	Debug           bool
	LogFormat       string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		DatabaseURL:    env("DATABASE_URL", "task_tracker.db"),
		JWTSecret:      env("JWT_SECRET", ""),
		RedisURL:       env("REDIS_URL", ""),
		TelegramToken:  env("TELEGRAM_TOKEN", ""),
		ReportInterval: parseInterval(env("REPORT_INTERVAL_HOURS", "")),
		PurgeAt:        env("PURGE_AT", "03:00"),
		LogFormat:      strings.ToLower(env("LOG_FORMAT", "text")),
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	var err error
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.TaskCacheTTL, err = durationEnv("TASK_CACHE_TTL", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", 12); err != nil {
		return cfg, err
	}
	purgeDays, err := intEnv("PURGE_AFTER_DAYS", 30)
	if err != nil {
		return cfg, err
	}
	if purgeDays < 0 {
		return cfg, fmt.Errorf("PURGE_AFTER_DAYS must not be negative")
	}
	cfg.PurgeAfter = time.Duration(purgeDays) * 24 * time.Hour
	if cfg.Debug, err = boolEnv("DEBUG"); err != nil {
		return cfg, err
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return cfg, fmt.Errorf("token lifetimes must be positive")
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return cfg, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

func boolEnv(key string) (bool, error) {
	raw := env(key, "")
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, raw)
	}
	return b, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
