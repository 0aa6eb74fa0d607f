// Package config loads the fixed set of recognized environment keys once
// at startup, following the teacher's envOr-at-main-time convention
// (cmd/streammon/main.go) rather than a reloadable config service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the complete set of environment-sourced settings.
type Config struct {
	Addr string

	AppSecretKey      string
	PresharedPassword string
	TMDBAPIKey        string
	FeedToken         string
	PlexWebhookToken  string
	PlexServerName    string
	TVDBAPIKey        string
	VAPIDPrivateKey   string
	VAPIDPublicKey    string
	VAPIDSubject      string
	AllowedOrigin     string
	BaseURL           string

	RateLimitEnabled     bool
	RateLimitMaxAttempts int64
	RateLimitWindow      time.Duration

	DBPath string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envIntOr(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// Load reads every recognized key from the environment.
func Load() Config {
	return Config{
		Addr: envOr("ADDR", ":8080"),

		AppSecretKey:      os.Getenv("APP_SECRET_KEY"),
		PresharedPassword: os.Getenv("PRESHARED_PASSWORD"),
		TMDBAPIKey:        os.Getenv("TMDB_API_KEY"),
		FeedToken:         os.Getenv("FEED_TOKEN"),
		PlexWebhookToken:  os.Getenv("PLEX_WEBHOOK_TOKEN"),
		PlexServerName:    os.Getenv("PLEX_SERVER_NAME"),
		TVDBAPIKey:        os.Getenv("TVDB_API_KEY"),
		VAPIDPrivateKey:   os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDPublicKey:    os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDSubject:      envOr("VAPID_SUBJECT", "mailto:ops@example.com"),
		AllowedOrigin:     os.Getenv("ALLOWED_ORIGIN"),
		BaseURL:           os.Getenv("BASE_URL"),

		RateLimitEnabled:     envBoolOr("RATE_LIMIT_ENABLED", false),
		RateLimitMaxAttempts: envIntOr("RATE_LIMIT_MAX_ATTEMPTS", 5),
		RateLimitWindow:      time.Duration(envIntOr("RATE_LIMIT_WINDOW_SECONDS", 900)) * time.Second,

		DBPath: envOr("DB_PATH", "arrbridge.db"),
	}
}
