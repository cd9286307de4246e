package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrelay/internal/constants"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"QRELAY_HOST", "PORT", "QRELAY_PUBLIC_URL", "QRELAY_ENABLE_TLS", "QRELAY_CERT_FILE",
		"QRELAY_KEY_FILE", "QRELAY_SESSION_TIMEOUT", "QRELAY_LIVENESS_TIMEOUT",
		"QRELAY_SWEEP_INTERVAL", "QRELAY_UPLOAD_DIR", "QRELAY_MAX_UPLOAD_SIZE",
		"QRELAY_MIN_FREE_DISK", "QRELAY_CREATE_RATE_LIMIT", "QRELAY_MAX_UPLOADS_PER_IP",
		"REDIS_HOST", "REDIS_PORT", "REDIS_USERNAME", "REDIS_PASSWORD", "LOG_LEVEL", "LOG_PRETTY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultPort, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Session.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Session.Liveness)
	assert.Equal(t, 30*time.Second, cfg.Session.SweepInterval)
	assert.Equal(t, int64(10<<20), cfg.Storage.MaxUploadSize)
	assert.Equal(t, 30, cfg.Limits.CreatePerMinute)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Storage.UploadDir)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("QRELAY_PUBLIC_URL", "https://relay.example.com/")
	t.Setenv("QRELAY_SESSION_TIMEOUT", "2m")
	t.Setenv("QRELAY_LIVENESS_TIMEOUT", "5s")
	t.Setenv("QRELAY_MAX_UPLOAD_SIZE", "2MiB")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "https://relay.example.com", cfg.Server.PublicURL)
	assert.Equal(t, 2*time.Minute, cfg.Session.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Session.Liveness)
	assert.Equal(t, int64(2<<20), cfg.Storage.MaxUploadSize)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "liveness not shorter than timeout",
			env:     map[string]string{"QRELAY_SESSION_TIMEOUT": "10s", "QRELAY_LIVENESS_TIMEOUT": "10s"},
			wantErr: "session.liveness must be shorter than timeout",
		},
		{
			name:    "negative timeout",
			env:     map[string]string{"QRELAY_SESSION_TIMEOUT": "-1m"},
			wantErr: "session.timeout must be positive",
		},
		{
			name:    "tls without cert",
			env:     map[string]string{"QRELAY_ENABLE_TLS": "true"},
			wantErr: "server.cert_file is required",
		},
		{
			name:    "bad port",
			env:     map[string]string{"PORT": "http"},
			wantErr: "server.port",
		},
		{
			name:    "unknown log level",
			env:     map[string]string{"LOG_LEVEL": "chatty"},
			wantErr: "log.level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1024", 1024, true},
		{"10MiB", 10 << 20, true},
		{"1 GiB", 1 << 30, true},
		{"4KiB", 4096, true},
		{"12B", 12, true},
		{"lots", 0, false},
		{"-5", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseBytes(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
