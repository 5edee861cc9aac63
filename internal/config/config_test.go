package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresAPIURL(t *testing.T) {
	t.Setenv("SIRSE_API_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without SIRSE_API_URL")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SIRSE_API_URL", "https://example.test/sirse/api/")
	for _, k := range []string{"POLL_ENABLED", "POLL_INTERVAL_MINUTES", "POLL_RADIUS_KM",
		"HOME_LATITUDE", "HOME_LONGITUDE", "CHECK_TIMEOUT_SECONDS", "RESTART_SETTLE_MS",
		"CONFIG_RELOAD_SECONDS", "SIRSE_WATCH_URL", "API_PORT", "PORT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReportsAPIURL != "https://example.test/sirse/api" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.ReportsAPIURL)
	}
	if !cfg.PollEnabled {
		t.Fatal("polling should default to enabled")
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Fatalf("unexpected interval %v", cfg.PollInterval)
	}
	if cfg.RadiusKm != DefaultRadiusKm {
		t.Fatalf("unexpected radius %v", cfg.RadiusKm)
	}
	if cfg.CheckTimeout != 10*time.Second {
		t.Fatalf("unexpected check timeout %v", cfg.CheckTimeout)
	}
	if cfg.RestartSettle != 500*time.Millisecond {
		t.Fatalf("unexpected settle delay %v", cfg.RestartSettle)
	}
	if cfg.HomeLocation != nil {
		t.Fatalf("expected no home location, got %+v", cfg.HomeLocation)
	}
	if cfg.ConfigReload != 30*time.Second {
		t.Fatalf("unexpected reload interval %v", cfg.ConfigReload)
	}
	if cfg.ControlURL != "http://localhost:8080" {
		t.Fatalf("unexpected control url %q", cfg.ControlURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SIRSE_API_URL", "http://localhost:9000")
	t.Setenv("POLL_INTERVAL_MINUTES", "5")
	t.Setenv("POLL_RADIUS_KM", "2.5")
	t.Setenv("HOME_LATITUDE", "20.1400")
	t.Setenv("HOME_LONGITUDE", "-98.3390")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SIRSE_WATCH_URL", "http://watcher.lan:9090/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Fatalf("unexpected interval %v", cfg.PollInterval)
	}
	if cfg.RadiusKm != 2.5 {
		t.Fatalf("unexpected radius %v", cfg.RadiusKm)
	}
	if cfg.HomeLocation == nil || cfg.HomeLocation.Latitude != 20.14 {
		t.Fatalf("unexpected home location %+v", cfg.HomeLocation)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.ControlURL != "http://watcher.lan:9090" {
		t.Fatalf("unexpected control url %q", cfg.ControlURL)
	}
}

func TestLoad_RejectsHalfLocation(t *testing.T) {
	t.Setenv("SIRSE_API_URL", "http://localhost:9000")
	t.Setenv("HOME_LATITUDE", "20.14")
	t.Setenv("HOME_LONGITUDE", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when only latitude is set")
	}
}

func TestLoad_RejectsNonPositiveRadius(t *testing.T) {
	t.Setenv("SIRSE_API_URL", "http://localhost:9000")
	t.Setenv("POLL_RADIUS_KM", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative radius")
	}
}

func TestValidIntervalMinutes(t *testing.T) {
	for _, m := range []int{1, 2, 5, 10, 15} {
		if !ValidIntervalMinutes(m) {
			t.Errorf("%d should be valid", m)
		}
	}
	for _, m := range []int{0, 3, 30} {
		if ValidIntervalMinutes(m) {
			t.Errorf("%d should be invalid", m)
		}
	}
}
