package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, level string, format OutputFormat, fn func()) string {
	t.Helper()
	buf := &bytes.Buffer{}
	SetTestOutput(buf)
	defer UnsetTestOutput()

	InitLogger(level, format)
	fn()
	return buf.String()
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFn    func()
		contains []string
		excludes []string
	}{
		{
			name:     "info log",
			level:    "info",
			logFn:    func() { Info("test info message") },
			contains: []string{"test info message", "level=INFO"},
		},
		{
			name:     "debug log with debug level",
			level:    "debug",
			logFn:    func() { Debug("test debug message") },
			contains: []string{"test debug message", "level=DEBUG"},
		},
		{
			name:     "debug log with info level",
			level:    "info",
			logFn:    func() { Debug("test debug message") },
			excludes: []string{"test debug message"},
		},
		{
			name:     "warn log with fields",
			level:    "warn",
			logFn:    func() { Warn("test warning", Fields{"key1": "value1", "key2": 42}) },
			contains: []string{"test warning", "level=WARN", "key1=value1", "key2=42"},
		},
		{
			name:     "error log",
			level:    "error",
			logFn:    func() { Error("test error message") },
			contains: []string{"test error message", "level=ERROR"},
		},
		{
			name:     "success log",
			level:    "info",
			logFn:    func() { Success("bundle installed", Fields{"bundle": "python-dev"}) },
			contains: []string{"bundle installed", "status=success", "bundle=python-dev"},
		},
		{
			name:     "component logger",
			level:    "info",
			logFn:    func() { Component("registry").Info("synced") },
			contains: []string{"component=registry", "synced"},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			output := captureOutput(t, testCase.level, FormatText, testCase.logFn)
			for _, s := range testCase.contains {
				assert.Contains(t, output, s)
			}
			for _, s := range testCase.excludes {
				assert.NotContains(t, output, s)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	output := captureOutput(t, "info", FormatJSON, func() {
		Info("hub imported", Fields{"hub": "corp"})
	})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(output)), &record))
	assert.Equal(t, "hub imported", record["msg"])
	assert.Equal(t, "corp", record["hub"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
