package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/leadflow")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "false")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GetSweepInterval() != 5*time.Minute {
		t.Fatalf("expected default sweep interval 5m, got %s", cfg.GetSweepInterval())
	}
	if cfg.GetRecommendationTimeout() != 8*time.Second {
		t.Fatalf("expected default recommendation timeout 8s, got %s", cfg.GetRecommendationTimeout())
	}
	if cfg.GetAsynqQueueName() != "followups" {
		t.Fatalf("unexpected queue name %q", cfg.GetAsynqQueueName())
	}
	if cfg.GetTimezone() != time.UTC {
		t.Fatalf("expected UTC timezone, got %s", cfg.GetTimezone())
	}
	if cfg.IsRecommendationEnabled() {
		t.Fatalf("recommendation must be disabled without an API key")
	}
}

func TestLoadRejectsSweepIntervalOutsideBounds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FOLLOWUP_SWEEP_INTERVAL", "10s")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for sweep interval below one minute")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is empty")
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FOLLOWUP_TIMEZONE", "Mars/Olympus_Mons")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}
