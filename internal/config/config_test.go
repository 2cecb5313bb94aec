package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"polytrade/pkg/crypto"
)

const testKey = "12345678901234567890123456789012"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Bot.LegDelay != 100*time.Millisecond {
		t.Errorf("LegDelay = %v, want 100ms", cfg.Bot.LegDelay)
	}
	if cfg.Bot.SettleDelay != 1500*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 1.5s", cfg.Bot.SettleDelay)
	}
	if cfg.Bot.StreamReconnectDelay != 5*time.Second {
		t.Errorf("StreamReconnectDelay = %v, want 5s", cfg.Bot.StreamReconnectDelay)
	}
	if cfg.Bot.RestartSettle != 0 {
		t.Errorf("RestartSettle = %v, want 0", cfg.Bot.RestartSettle)
	}
	if cfg.Exchange.RateLimit != 40 {
		t.Errorf("RateLimit = %v, want 40", cfg.Exchange.RateLimit)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte(testKey)))
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LEG_DELAY", "250ms")
	t.Setenv("SETTLE_DELAY", "2")
	t.Setenv("BINANCE_RATE_LIMIT", "20.5")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Bot.LegDelay != 250*time.Millisecond {
		t.Errorf("LegDelay = %v", cfg.Bot.LegDelay)
	}
	if cfg.Bot.SettleDelay != 2*time.Second {
		t.Errorf("SettleDelay = %v (число секунд)", cfg.Bot.SettleDelay)
	}
	if cfg.Exchange.RateLimit != 20.5 {
		t.Errorf("RateLimit = %v", cfg.Exchange.RateLimit)
	}
	if !cfg.Logging.Development {
		t.Error("Logging.Development should be true")
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil || string(key) != testKey {
		t.Errorf("EncryptionKeyBytes = %q, %v", key, err)
	}
}

func TestLoad_AppPasswordHashed(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("APP_PASSWORD", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := crypto.VerifyPassword("s3cret", cfg.Security.AppPasswordHash); err != nil {
		t.Errorf("APP_PASSWORD was not hashed correctly: %v", err)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing key", map[string]string{"ENCRYPTION_KEY": ""}, "ENCRYPTION_KEY is required"},
		{"short key", map[string]string{"ENCRYPTION_KEY": "short"}, "ENCRYPTION_KEY must be"},
		{"bad port", map[string]string{"ENCRYPTION_KEY": testKey, "SERVER_PORT": "70000"}, "SERVER_PORT"},
		{"negative delay", map[string]string{"ENCRYPTION_KEY": testKey, "LEG_DELAY": "-1s"}, "cannot be negative"},
		{"zero reconnect", map[string]string{"ENCRYPTION_KEY": testKey, "STREAM_RECONNECT_DELAY": "0s"}, "STREAM_RECONNECT_DELAY"},
		{"zero buffer", map[string]string{"ENCRYPTION_KEY": testKey, "EVENT_BUFFER": "0"}, "EVENT_BUFFER"},
		{"bad hash", map[string]string{"ENCRYPTION_KEY": testKey, "APP_PASSWORD_HASH": "plain"}, "bcrypt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	if got := d.DSN(); got != "host=db port=5432 user=u password=p dbname=n sslmode=disable" {
		t.Errorf("DSN = %s", got)
	}
	if strings.Contains(d.DSNWithoutPassword(), "password") {
		t.Error("DSNWithoutPassword leaks password")
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "garbage")
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("invalid value should fall back to default, got %v", got)
	}
	t.Setenv("TEST_DURATION", "0.1")
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 100*time.Millisecond {
		t.Errorf("got %v, want 100ms", got)
	}
}
