package config

import (
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	os.Setenv("MONGODB_DATABASE", "inkwave_test")
	os.Setenv("REDIS_HOST", "localhost")
	os.Setenv("REDIS_PORT", "6379")
	os.Setenv("JWT_SECRET", "testsecret123456789012345678901234")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.Feed.BackoffInitial <= 0 || cfg.Feed.BackoffMax < cfg.Feed.BackoffInitial {
		t.Fatalf("bad feed backoff defaults: %+v", cfg.Feed)
	}
	if cfg.Presence.LivenessTimeout <= cfg.Presence.HeartbeatInterval {
		t.Fatalf("liveness timeout must exceed heartbeat interval: %+v", cfg.Presence)
	}
}
