// Package config loads the gateway's flat, environment-variable
// configuration — there is no YAML file here, unlike the scanning bot this
// package was adapted from: the gateway has no multi-section tunables that
// warrant one.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the gateway's full runtime configuration.
type Config struct {
	CLOBHost    string
	ChainID     int64
	DomeAPIKey  string
	DomeBaseURL string

	// BuilderAPIKey/Secret/Passphrase/SigningURL are accepted for
	// forward-compatibility with a server-side order-building mode but
	// unused by any handler: this gateway only ever forwards orders the
	// client has already signed (see DESIGN.md).
	BuilderAPIKey        string
	BuilderAPISecret     string
	BuilderAPIPassphrase string
	BuilderSigningURL    string

	SessionCookieName          string
	SessionTTLSeconds          int
	NonceTTLSeconds            int
	AuthRateLimitMaxRequests   int
	AuthRateLimitWindowSeconds int

	TPPollSeconds float64
	TPMaxMinutes  int

	ListenAddr string
	LogLevel   string
	LogFormat  string
}

// SessionTTL is SessionTTLSeconds as a time.Duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// NonceTTL is NonceTTLSeconds as a time.Duration.
func (c *Config) NonceTTL() time.Duration {
	return time.Duration(c.NonceTTLSeconds) * time.Second
}

// AuthRateLimitWindow is AuthRateLimitWindowSeconds as a time.Duration.
func (c *Config) AuthRateLimitWindow() time.Duration {
	return time.Duration(c.AuthRateLimitWindowSeconds) * time.Second
}

// webExperimentEnabledVar gates the whole process on startup: this gateway
// only ever runs as an opt-in experiment, never unconditionally.
const webExperimentEnabledVar = "WEB_EXPERIMENT"

// Load reads configuration from the environment, loading a .env file first
// if one is present. It returns an error if WEB_EXPERIMENT is not set to a
// truthy value.
func Load() (*Config, error) {
	_ = godotenv.Load()

	if !isTruthy(os.Getenv(webExperimentEnabledVar)) {
		return nil, fmt.Errorf("config: %s must be set to enable the gateway", webExperimentEnabledVar)
	}

	cfg := &Config{
		CLOBHost:    envOr("CLOB_HOST", "https://clob.polymarket.com"),
		ChainID:     envInt64Or("CHAIN_ID", 137),
		DomeAPIKey:  os.Getenv("DOME_API_KEY"),
		DomeBaseURL: envOr("DOME_BASE_URL", "https://api.domeapi.io/v1"),

		BuilderAPIKey:        os.Getenv("BUILDER_API_KEY"),
		BuilderAPISecret:     os.Getenv("BUILDER_API_SECRET"),
		BuilderAPIPassphrase: os.Getenv("BUILDER_API_PASSPHRASE"),
		BuilderSigningURL:    os.Getenv("BUILDER_SIGNING_URL"),

		SessionCookieName:          envOr("SESSION_COOKIE_NAME", "gateway_session"),
		SessionTTLSeconds:          envIntOr("SESSION_TTL_SECONDS", 24*3600),
		NonceTTLSeconds:            envIntOr("NONCE_TTL_SECONDS", 300),
		AuthRateLimitMaxRequests:   envIntOr("AUTH_RATE_LIMIT_MAX_REQUESTS", 10),
		AuthRateLimitWindowSeconds: envIntOr("AUTH_RATE_LIMIT_WINDOW_SECONDS", 60),

		TPPollSeconds: envFloatOr("TP_POLL_SECONDS", 5.0),
		TPMaxMinutes:  envIntOr("TP_MAX_MINUTES", 240),

		ListenAddr: envOr("LISTEN_ADDR", ":8080"),
		LogLevel:   envOr("LOG_LEVEL", "info"),
		LogFormat:  envOr("LOG_FORMAT", "text"),
	}

	return cfg, nil
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	default:
		return false
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
