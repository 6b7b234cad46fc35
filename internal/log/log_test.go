package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: " WARN ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "fatal", want: LevelFatal},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewWithWriterJSONRendersFatal(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	logger.Log(context.Background(), LevelFatal, "offset recovery failed", "offset", 42)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "FATAL", entry["level"])
	require.Equal(t, "offset recovery failed", entry["msg"])
	require.EqualValues(t, 42, entry["offset"])
}

func TestNewWithWriterFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "text")

	logger.Info("hidden")
	require.Zero(t, buf.Len())

	logger.Warn("shown")
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "msg=shown")
}
