package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	prev := defaultLogger
	InitLogger(&LoggerConfig{Level: level})
	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() { defaultLogger = prev })
	return buf
}

func TestLogger_TraceIDAndCaller(t *testing.T) {
	buf := captureOutput(t, "info")

	ctx := WithTraceID(context.Background(), "abc-123")
	Info(ctx, "opened session %s", "s1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc-123", line["trace_id"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "[TestLogger_TraceIDAndCaller] opened session s1", line["msg"])
}

func TestLogger_LevelFilter(t *testing.T) {
	buf := captureOutput(t, "warn")

	Debug(context.Background(), "hidden")
	Info(context.Background(), "hidden")
	assert.Empty(t, buf.String())

	Error(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	buf := captureOutput(t, "chatty")

	Debug(context.Background(), "hidden")
	assert.Empty(t, buf.String())
	Info(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLoggerConfig_Writer(t *testing.T) {
	var cfg *LoggerConfig
	assert.NotNil(t, cfg.Writer())

	cfg = &LoggerConfig{File: t.TempDir() + "/app.log"}
	assert.NotNil(t, cfg.Writer())
}
