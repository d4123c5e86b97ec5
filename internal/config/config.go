// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/pushctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Push providers accepted in PUSH_PROVIDER.
const (
	ProviderExpo = "expo"
	ProviderFCM  = "fcm"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration
	MigrateOnStart bool

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Trigger auth
	TriggerSecret string

	// Push gateway
	PushProvider            string
	ExpoPushURL             string
	ExpoAccessToken         string
	PushGatewayTimeout      time.Duration
	PushGatewayRPS          float64
	FirebaseCredentialsFile string

	// Scheduling
	SchedulerEnabled  bool
	SchedulerTimezone string
	Schedules         map[string]string

	// Maintenance
	MaintenanceInterval time.Duration
	RunRetention        time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("NEON_DATABASE_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or NEON_DATABASE_URL must be set")
	}

	provider := strings.ToLower(envOr("PUSH_PROVIDER", ProviderExpo))
	if provider != ProviderExpo && provider != ProviderFCM {
		return nil, fmt.Errorf("PUSH_PROVIDER must be %q or %q, got %q", ProviderExpo, ProviderFCM, provider)
	}
	if provider == ProviderFCM && os.Getenv("FIREBASE_CREDENTIALS_FILE") == "" {
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_FILE must be set when PUSH_PROVIDER=fcm")
	}

	schedules, err := ParseSchedules(envOr("NOTIFY_SCHEDULES", ""))
	if err != nil {
		return nil, fmt.Errorf("NOTIFY_SCHEDULES: %w", err)
	}

	rps, err := strconv.ParseFloat(envOr("PUSH_GATEWAY_RPS", "0"), 64)
	if err != nil || rps < 0 {
		return nil, fmt.Errorf("PUSH_GATEWAY_RPS must be a non-negative number")
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,
		MigrateOnStart: envBool("MIGRATE_ON_START", true),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{"*"}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		TriggerSecret: envOr("NOTIFY_TRIGGER_SECRET", envOr("CRON_SECRET", "")),

		PushProvider:            provider,
		ExpoPushURL:             envOr("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send"),
		ExpoAccessToken:         envOr("EXPO_ACCESS_TOKEN", ""),
		PushGatewayTimeout:      envDuration("PUSH_GATEWAY_TIMEOUT", 15*time.Second),
		PushGatewayRPS:          rps,
		FirebaseCredentialsFile: envOr("FIREBASE_CREDENTIALS_FILE", ""),

		SchedulerEnabled:  envBool("SCHEDULER_ENABLED", false),
		SchedulerTimezone: envOr("SCHEDULER_TIMEZONE", "UTC"),
		Schedules:         schedules,

		MaintenanceInterval: envDuration("MAINTENANCE_INTERVAL", time.Hour),
		RunRetention:        time.Duration(envInt("RUN_RETENTION_DAYS", 30)) * 24 * time.Hour,
	}

	// An open trigger surface is tolerated in development only.
	if cfg.IsProduction() && cfg.TriggerSecret == "" {
		return nil, fmt.Errorf("NOTIFY_TRIGGER_SECRET or CRON_SECRET must be set in production")
	}
	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseSchedules parses "class=cronspec;class=cronspec". Blank entries are
// skipped; a class listed twice is an error.
func ParseSchedules(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		class, spec, ok := strings.Cut(entry, "=")
		class, spec = strings.TrimSpace(class), strings.TrimSpace(spec)
		if !ok || class == "" || spec == "" {
			return nil, fmt.Errorf("malformed entry %q, want class=cronspec", entry)
		}
		if _, dup := out[class]; dup {
			return nil, fmt.Errorf("class %q scheduled twice", class)
		}
		out[class] = spec
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("90s", "1h") or a bare number of
// seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
