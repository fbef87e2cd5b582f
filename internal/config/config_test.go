package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("addr %q", cfg.ListenAddr)
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("token ttl %v", cfg.TokenTTL)
	}
	if cfg.MaxBodyBytes != 1024*1024 {
		t.Fatalf("max body %d", cfg.MaxBodyBytes)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("BIBLIO_HTTP_ADDR", ":9999")
	t.Setenv("BIBLIO_TOKEN_TTL_MIN", "15")
	t.Setenv("BIBLIO_RATE_BURST", "5")
	t.Setenv("BIBLIO_AUTH_SECRET", "s3cret")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9999" || cfg.TokenTTL != 15*time.Minute || cfg.RateBurst != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.AuthSecret != "s3cret" {
		t.Fatalf("secret %q", cfg.AuthSecret)
	}
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("BIBLIO_TOKEN_TTL_MIN", "-1")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("BIBLIO_RATE_BURST", "not-a-number")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateBurst != 20 {
		t.Fatalf("garbage int should fall back to default, got %d", cfg.RateBurst)
	}
}
