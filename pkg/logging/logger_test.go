package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(severity Severity) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Severity: severity,
		Outputs:  []Output{NewConsoleOutput(false, WithColor(false), WithWriter(&buf))},
	})
	return logger, &buf
}

func TestSeverityFiltering(t *testing.T) {
	logger, buf := newTestLogger(WARN)

	logger.Debug(context.Background(), "debug message")
	logger.Info(context.Background(), "info message")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), "warn message")
	logger.Error(context.Background(), "error message")

	out := buf.String()
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
	assert.NotContains(t, out, "info message")
}

func TestContextFields(t *testing.T) {
	logger, buf := newTestLogger(DEBUG)

	ctx := WithJobID(context.Background(), "job-42")
	ctx = WithAgentID(ctx, "clarity-1")
	logger.Info(ctx, "scoring prompt")

	out := buf.String()
	assert.Contains(t, out, "[job=job-42]")
	assert.Contains(t, out, "[agent=clarity-1]")
	assert.Contains(t, out, "scoring prompt")
}

func TestDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Severity:      INFO,
		Outputs:       []Output{NewConsoleOutput(false, WithColor(false), WithWriter(&buf))},
		DefaultFields: map[string]interface{}{"component": "ensemble"},
	})

	logger.Info(context.Background(), "session created")
	assert.Contains(t, buf.String(), "component=ensemble")
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, DEBUG, ParseSeverity("DEBUG"))
	assert.Equal(t, ERROR, ParseSeverity("ERROR"))
	assert.Equal(t, INFO, ParseSeverity("not-a-level"))
}

func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	custom, buf := newTestLogger(INFO)
	SetLogger(custom)

	require.Same(t, custom, GetLogger())
	GetLogger().Info(context.Background(), "via global")
	assert.Contains(t, buf.String(), "via global")
}

func TestFieldTruncation(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}

	formatted := formatFields(map[string]interface{}{"prompt": string(long)})
	assert.Contains(t, formatted, "...")
	assert.Less(t, len(formatted), 140)
}
