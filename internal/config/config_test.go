package config

import (
	"testing"
	"time"
)

func TestLoadRequiresProviderKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when no provider key is set")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("SOLC_PATH", "")
	t.Setenv("TEST_RUN_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected default listen addr :8080, got %s", cfg.ListenAddr)
	}
	if cfg.SolcPath != "solc" {
		t.Errorf("expected default solc path, got %s", cfg.SolcPath)
	}
	if cfg.TestRunTimeout != 2*time.Minute {
		t.Errorf("expected default test timeout 2m, got %v", cfg.TestRunTimeout)
	}
}

func TestLoadProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT_SECRET missing in production")
	}
}

func TestGetDurationParses(t *testing.T) {
	t.Setenv("TEST_RUN_TIMEOUT", "45s")
	if d := getDuration("TEST_RUN_TIMEOUT", time.Minute); d != 45*time.Second {
		t.Errorf("expected 45s, got %v", d)
	}
	t.Setenv("TEST_RUN_TIMEOUT", "not-a-duration")
	if d := getDuration("TEST_RUN_TIMEOUT", time.Minute); d != time.Minute {
		t.Errorf("expected fallback 1m, got %v", d)
	}
}
