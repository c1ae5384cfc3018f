package internal

import (
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestRepositoryConfig_MissingTier(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Repository.Archive = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing archive dir should fail validation")
	}
}

func TestLedgerConfig_MissingPath(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Ledger.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing ledger path should fail validation")
	}
}

func TestRetentionConfig_Bounds(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Retention.Keep = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero keep should fail validation")
	}

	cfg = NewDefaultConfig()
	cfg.Retention.Retain = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative retain should fail validation")
	}
}

func TestHTTPConfig_PortRange(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("out-of-range port should fail validation")
	}
}

func TestHTTPConfig_Address(t *testing.T) {
	cfg := HTTPConfig{Port: 9090}
	if got := cfg.Address(); got != ":9090" {
		t.Errorf("Address() = %q, want %q", got, ":9090")
	}
}
