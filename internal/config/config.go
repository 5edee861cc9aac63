// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/watcher and cmd/sirsectl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cerberusteck/sirse-watch/internal/geo"
)

// --------------------------------------------------------------------------
// Polling defaults
// --------------------------------------------------------------------------

const (
	DefaultPollInterval  = 2 * time.Minute
	DefaultRadiusKm      = 5.0
	DefaultCheckTimeout  = 10 * time.Second
	DefaultRestartSettle = 500 * time.Millisecond
)

// IntervalMenuMinutes is the fixed set of polling intervals offered to users.
var IntervalMenuMinutes = []int{1, 2, 5, 10, 15}

// ValidIntervalMinutes reports whether m is one of IntervalMenuMinutes.
func ValidIntervalMinutes(m int) bool {
	for _, v := range IntervalMenuMinutes {
		if v == m {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// SIRSE report API
	ReportsAPIURL     string
	ReportsAPIToken   string
	ReportsAPIRPM     int
	ReportCategory    string
	ReportStatus      string
	NotificationTitle string

	// State persistence. DatabaseURL wins over StateFile when set.
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration
	StateFile      string

	// Polling
	PollEnabled   bool
	PollInterval  time.Duration
	RadiusKm      float64
	HomeLocation  *geo.Point
	CheckTimeout  time.Duration
	RestartSettle time.Duration
	ConfigReload  time.Duration // how often the daemon re-reads persisted polling config

	// Notification sinks
	NotificationsGranted bool
	WebhookURL           string
	NATSURL              string
	NATSSubject          string
	KafkaBrokers         []string
	KafkaTopic           string

	// Control API
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	ControlURL  string // where sirsectl finds a running watcher

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	apiURL := strings.TrimRight(envOr("SIRSE_API_URL", ""), "/")
	if apiURL == "" {
		return nil, fmt.Errorf("SIRSE_API_URL must be set")
	}

	home, err := envPoint("HOME_LATITUDE", "HOME_LONGITUDE")
	if err != nil {
		return nil, err
	}

	interval := time.Duration(envInt("POLL_INTERVAL_MINUTES", int(DefaultPollInterval/time.Minute))) * time.Minute
	if interval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MINUTES must be positive")
	}
	radius := envFloat("POLL_RADIUS_KM", DefaultRadiusKm)
	if radius <= 0 {
		return nil, fmt.Errorf("POLL_RADIUS_KM must be positive")
	}

	return &Config{
		ReportsAPIURL:     apiURL,
		ReportsAPIToken:   envOr("SIRSE_API_TOKEN", ""),
		ReportsAPIRPM:     envInt("SIRSE_API_RPM", 30),
		ReportCategory:    envOr("REPORT_CATEGORY", ""),
		ReportStatus:      envOr("REPORT_STATUS", ""),
		NotificationTitle: envOr("NOTIFICATION_TITLE", "🚨 Nuevo reporte cerca de ti"),

		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 4),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,
		StateFile:      envOr("STATE_FILE", "sirse-state.json"),

		PollEnabled:   envBool("POLL_ENABLED", true),
		PollInterval:  interval,
		RadiusKm:      radius,
		HomeLocation:  home,
		CheckTimeout:  time.Duration(envInt("CHECK_TIMEOUT_SECONDS", int(DefaultCheckTimeout/time.Second))) * time.Second,
		RestartSettle: time.Duration(envInt("RESTART_SETTLE_MS", int(DefaultRestartSettle/time.Millisecond))) * time.Millisecond,
		ConfigReload:  time.Duration(envInt("CONFIG_RELOAD_SECONDS", 30)) * time.Second,

		NotificationsGranted: envBool("NOTIFICATIONS_GRANTED", true),
		WebhookURL:           envOr("NOTIFY_WEBHOOK_URL", ""),
		NATSURL:              envOr("NATS_URL", ""),
		NATSSubject:          envOr("NATS_SUBJECT", "sirse.notifications"),
		KafkaBrokers:         envList("KAFKA_BROKERS", nil),
		KafkaTopic:           envOr("KAFKA_TOPIC", "sirse-notifications"),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8080)),
		Environment: envOr("ENVIRONMENT", "development"),
		ControlURL:  strings.TrimRight(envOr("SIRSE_WATCH_URL", fmt.Sprintf("http://localhost:%d", envInt("API_PORT", envInt("PORT", 8080)))), "/"),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:8081",
			"http://localhost:19006",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

// envPoint reads an optional coordinate pair. Both variables must be set
// together; neither set yields nil.
func envPoint(latKey, lonKey string) (*geo.Point, error) {
	latStr, lonStr := os.Getenv(latKey), os.Getenv(lonKey)
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, fmt.Errorf("%s and %s must be set together", latKey, lonKey)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", latKey, err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", lonKey, err)
	}
	p := geo.Point{Latitude: lat, Longitude: lon}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("home location: %w", err)
	}
	return &p, nil
}
