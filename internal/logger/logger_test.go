package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	t.Run("json output at level", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Config{Level: "warn", Output: &buf})
		assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

		log.Info().Msg("dropped")
		log.Warn().Str("session_id", "abc").Msg("kept")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "kept", entry["message"])
		assert.Equal(t, "abc", entry["session_id"])
		assert.Contains(t, entry, "time")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l := New(Config{Level: "loud", Output: &bytes.Buffer{}})
		assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
	})

	t.Run("pretty output", func(t *testing.T) {
		var buf bytes.Buffer
		New(Config{Level: "debug", Pretty: true, Output: &buf})
		log.Debug().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.False(t, json.Valid(buf.Bytes()))
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Pretty)
}
