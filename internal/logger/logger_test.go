package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_NoopWhenUninitialized(t *testing.T) {
	Global = nil
	l := Get()
	require.NotNil(t, l)
	// must not panic
	l.Info().Msg("discarded")
}

func TestNamed_AddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := FromWriter(&buf, zerolog.InfoLevel).Named("relay")

	l.Info().Str("target", "news").Msg("posted")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "relay", rec["component"])
	assert.Equal(t, "news", rec["target"])
	assert.Equal(t, "posted", rec["message"])
	assert.Equal(t, "info", rec["level"])
	assert.Contains(t, rec, "time")
}

func TestFromWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := FromWriter(&buf, zerolog.WarnLevel)

	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNew_CreatesLogDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relay.log")

	l, err := New("debug", path)
	require.NoError(t, err)
	l.Debug().Msg("hello")

	assert.FileExists(t, path)
}
