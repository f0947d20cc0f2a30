// Package config loads the daemon's settings from the environment. Missing or
// malformed values fall back to defaults.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIURL     string
	WSURL      string
	AuthToken  string
	ListenAddr string
	CORSOrigin string

	// RedisURL is optional. Without it snapshots live in memory and
	// invalidations stay in process.
	RedisURL    string
	SnapshotTTL time.Duration

	ReconnectMin time.Duration
	ReconnectMax time.Duration

	FetchRetries    int
	FetchRetryDelay time.Duration

	JoinRate  float64
	JoinBurst int

	LogLevel slog.Level
}

func Default() Config {
	return Config{
		APIURL:          "http://localhost:4000/api",
		WSURL:           "ws://localhost:4000/ws",
		ListenAddr:      ":8090",
		CORSOrigin:      "http://localhost:5173",
		SnapshotTTL:     24 * time.Hour,
		ReconnectMin:    500 * time.Millisecond,
		ReconnectMax:    30 * time.Second,
		FetchRetries:    3,
		FetchRetryDelay: time.Second,
		JoinRate:        200,
		JoinBurst:       100,
		LogLevel:        slog.LevelInfo,
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// Load reads the configuration from the environment.
func Load() Config {
	cfg := Default()

	cfg.APIURL = strings.TrimRight(getEnv("API_URL", cfg.APIURL), "/")
	cfg.WSURL = getEnv("WS_URL", cfg.WSURL)
	cfg.AuthToken = strings.TrimSpace(getEnv("AUTH_TOKEN", ""))
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", cfg.CORSOrigin)
	cfg.RedisURL = getEnv("REDIS_URL", "")

	cfg.SnapshotTTL = parseDuration(os.Getenv("SNAPSHOT_TTL"), cfg.SnapshotTTL)
	cfg.ReconnectMin = parseDuration(os.Getenv("RECONNECT_MIN"), cfg.ReconnectMin)
	cfg.ReconnectMax = parseDuration(os.Getenv("RECONNECT_MAX"), cfg.ReconnectMax)
	cfg.FetchRetries = parseCount(os.Getenv("FETCH_RETRIES"), cfg.FetchRetries)
	cfg.FetchRetryDelay = parseDuration(os.Getenv("FETCH_RETRY_DELAY"), cfg.FetchRetryDelay)
	cfg.JoinRate = parseRate(os.Getenv("JOIN_RATE"), cfg.JoinRate)
	cfg.JoinBurst = parseCount(os.Getenv("JOIN_BURST"), cfg.JoinBurst)
	cfg.LogLevel = parseLevel(os.Getenv("LOG_LEVEL"), cfg.LogLevel)

	return sanitize(cfg)
}

func sanitize(cfg Config) Config {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8090"
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	if cfg.JoinBurst <= 0 {
		cfg.JoinBurst = 1
	}
	return cfg
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

// parseCount accepts zero, unlike the other parsers.
func parseCount(value string, defaultValue int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
		return n
	}
	return defaultValue
}

func parseRate(value string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && f > 0 {
		return f
	}
	return defaultValue
}

func parseLevel(value string, defaultValue slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return defaultValue
	}
	return level
}
