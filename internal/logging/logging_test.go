package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLoggerText(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(buf, "text", "debug")
	require.NoError(t, err)

	logger.Debug("debug message", "key", "value")
	logger.Warn("careful", "bucket", 2)

	out := buf.String()
	assert.Contains(t, out, "debug message")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "bucket=2")
}

func TestSlogLoggerJSONRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(buf, "json", "warn")
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Error("kept", "planId", "p-1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "p-1", rec["planId"])
	assert.NotContains(t, buf.String(), "dropped")
}

func TestWithAddsAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlog(slog.New(slog.NewTextHandler(buf, nil))).With("component", "api")
	logger.Info("hello")
	assert.Contains(t, buf.String(), "component=api")
}

func TestNewRejectsUnknownValues(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", "info")
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, "text", "loud")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNopAndOrNop(t *testing.T) {
	l := OrNop(nil)
	require.NotNil(t, l)
	l.Info("nothing", "k", "v")
	l.Error("nothing")

	s := NewSlog(slog.Default())
	assert.Same(t, s, OrNop(s))
}
