package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLevel("loud")
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(&Config{Level: "info", Format: "xml"}, DefaultServiceName)
	assert.ErrorIs(t, err, ErrInvalidLogFormat)
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	l, err := New(&Config{Level: "debug", Format: "json", Output: path}, DefaultServiceName)
	require.NoError(t, err)
	l.Info("hello", User(1, 2)...)
	assert.NoError(t, l.Sync())
}
