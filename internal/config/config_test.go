package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RelayBackend != "ws" {
		t.Errorf("expected ws backend, got %q", cfg.RelayBackend)
	}
	if cfg.DialTimeout() != 20*time.Second {
		t.Errorf("unexpected dial timeout %v", cfg.DialTimeout())
	}
	if cfg.ReconnectWait() != time.Second {
		t.Errorf("unexpected reconnect wait %v", cfg.ReconnectWait())
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := Save(Config{
		DirectoryURL: "https://dir.example.com",
		RelayBackend: "nats",
		NATSURL:      "nats://broker:4222",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Environment overrides the file.
	t.Setenv("RELAY_BACKEND", "ws")
	t.Setenv("RELAY_URL", "wss://relay.example.com/ws")
	t.Setenv("MAX_RECONNECTS", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DirectoryURL != "https://dir.example.com" {
		t.Errorf("expected file value, got %q", cfg.DirectoryURL)
	}
	if cfg.RelayBackend != "ws" || cfg.RelayURL != "wss://relay.example.com/ws" {
		t.Errorf("expected env overrides, got %q %q", cfg.RelayBackend, cfg.RelayURL)
	}
	if cfg.MaxReconnects != 9 {
		t.Errorf("expected 9 reconnects, got %d", cfg.MaxReconnects)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	want := Default()
	want.RedisAddr = "localhost:6379"
	if err := Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RedisAddr != "localhost:6379" {
		t.Errorf("expected redis addr persisted, got %q", got.RedisAddr)
	}
}
