package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Env != "development" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.EmergencyTokenTTL != 15*time.Minute || cfg.EmergencySessionTTL != time.Hour {
		t.Fatalf("unexpected ttl defaults: %s %s", cfg.EmergencyTokenTTL, cfg.EmergencySessionTTL)
	}
	if cfg.StoreTimeout != 5*time.Second || cfg.RedeemMaxPerHour != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("addr: %s", cfg.Addr())
	}
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	content := "PORT=9090\nEMERGENCY_TOKEN_TTL=5m\nREDEEM_MAX_PER_HOUR=3\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("REDEEM_MAX_PER_HOUR", "7")

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.EmergencyTokenTTL != 5*time.Minute {
		t.Fatalf("env file not applied: %+v", cfg)
	}
	if cfg.RedeemMaxPerHour != 7 {
		t.Fatalf("process env should win over file, got %d", cfg.RedeemMaxPerHour)
	}
}

func TestValidate_Production(t *testing.T) {
	cfg := &Config{
		Port:                "8080",
		Env:                 "production",
		LogFormat:           "json",
		EmergencyTokenTTL:   time.Minute,
		EmergencySessionTTL: time.Hour,
		SweepInterval:       time.Minute,
		StoreTimeout:        time.Second,
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"DB_DSN", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestValidate_RejectsNonPositiveDurations(t *testing.T) {
	cfg := &Config{Port: "8080", LogFormat: "text"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "EMERGENCY_TOKEN_TTL") {
		t.Fatalf("expected ttl error, got %v", err)
	}
}
