package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CustomWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Writer: &buf})
	logger.Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "\"level\":\"INFO\"")
}

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		env      string
		wantJSON bool
	}{
		{"production", true},
		{"staging", false},
		{"development", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			New(Config{Environment: tt.env, Writer: &buf}).Info("hello")
			assert.Equal(t, tt.wantJSON, strings.HasPrefix(buf.String(), "{"))
		})
	}
}

func TestNew_MirrorsToRotatedFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "fuelup.log")

	logger := New(Config{Format: "json", Writer: &buf, File: path, MaxSizeMB: 1, MaxBackups: 2})
	logger.Info("push processed", "items", 3)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "push processed")
	assert.Contains(t, buf.String(), "push processed")
}

func TestNew_FileStaysJSONInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "fuelup.log")

	logger := New(Config{Environment: "development", Writer: &buf, File: path, MaxSizeMB: 1})
	logger.With("device", "phone").WithGroup("push").Info("batch applied", "items", 2)
	require.NoError(t, logger.Close())

	assert.Contains(t, buf.String(), colorReset, "console keeps its colors")
	assert.Contains(t, buf.String(), "batch applied")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\033")

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "batch applied", rec["msg"])
	assert.Equal(t, "phone", rec["device"])
	assert.Equal(t, map[string]any{"items": float64(2)}, rec["push"])
}

func TestNew_FileRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fuelup.log")

	logger := New(Config{Writer: &bytes.Buffer{}, Level: slog.LevelWarn, File: path})
	logger.Info("skipped")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "skipped")
	assert.Contains(t, string(data), "kept")
}

func TestClose_WithoutFile(t *testing.T) {
	assert.NoError(t, New(Config{Writer: &bytes.Buffer{}}).Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestPrettyHandler_Enabled(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	ctx := context.Background()

	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestPrettyHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, nil))

	logger.Info("pull served", "user_id", "u1", "count", 12, "reason", "base is stale")

	out := buf.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "pull served")
	assert.Contains(t, out, "user_id=u1")
	assert.Contains(t, out, "count=12")
	assert.Contains(t, out, `reason="base is stale"`)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestPrettyHandler_LevelFormatting(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		logger.Log(context.Background(), tt.level, "msg")
		assert.Contains(t, buf.String(), tt.want)
	}
}

func TestPrettyHandler_WithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, nil)).
		With("component", "sync").
		WithGroup("push").
		With("device_id", "phone")

	logger.Info("done", "applied", 2, slog.Group("conflicts", "count", 1))

	out := buf.String()
	assert.Contains(t, out, "component=sync")
	assert.Contains(t, out, "push.device_id=phone")
	assert.Contains(t, out, "push.applied=2")
	assert.Contains(t, out, "push.conflicts.count=1")
}

func TestPrettyHandler_WithSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{AddSource: true}))
	logger.Info("with source")

	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-01T08:00:00Z", formatValue(slog.TimeValue(ts)))
	assert.Equal(t, "1.5s", formatValue(slog.DurationValue(1500*time.Millisecond)))
	assert.Equal(t, "plain", formatValue(slog.StringValue("plain")))
	assert.Equal(t, `"two words"`, formatValue(slog.StringValue("two words")))
	assert.Equal(t, "true", formatValue(slog.BoolValue(true)))
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Writer: &buf})

	logger.WithError(errors.New("disk full")).Error("write failed")
	assert.Contains(t, buf.String(), `"error":"disk full"`)

	assert.Same(t, logger, logger.WithError(nil))
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Writer: &buf})

	logger.WithField("user_id", "u1").WithField("device_id", "d1").Info("synced")
	assert.Contains(t, buf.String(), `"user_id":"u1"`)
	assert.Contains(t, buf.String(), `"device_id":"d1"`)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Writer: &buf, Level: slog.LevelWarn})

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")

	assert.NotContains(t, buf.String(), `"msg":"info"`)
	assert.Contains(t, buf.String(), `"msg":"warn"`)
}
