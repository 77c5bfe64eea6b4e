package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/amora/internal/config"
)

// captureOutput points the global logger at a buffer while f runs.
func captureOutput(t *testing.T, c Config, f func()) string {
	t.Helper()

	var buf bytes.Buffer
	c.Output = &buf
	Init(&c)
	t.Cleanup(func() { Init(&Config{Level: "info", Format: FormatText}) })

	f()
	return buf.String()
}

func TestLogger_TextFormat(t *testing.T) {
	out := captureOutput(t, Config{Level: "debug", Format: FormatText, Component: "test"}, func() {
		Info("hello amora", "key", "value")
	})

	assert.Contains(t, out, "hello amora")
	assert.Contains(t, out, "component=test")
	assert.Contains(t, out, "key=value")
}

func TestLogger_JSONFormat(t *testing.T) {
	out := captureOutput(t, Config{Level: "info", Format: FormatJSON, Component: "json_test"}, func() {
		Info("json log", "foo", "bar")
	})

	assert.Contains(t, out, `"msg":"json log"`)
	assert.Contains(t, out, `"component":"json_test"`)
	assert.Contains(t, out, `"foo":"bar"`)
}

func TestLogger_LevelFilter(t *testing.T) {
	out := captureOutput(t, Config{Level: "error", Format: FormatText}, func() {
		Info("should not appear")
		Error("should appear")
	})

	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestLogger_WithAddsFields(t *testing.T) {
	out := captureOutput(t, Config{Level: "debug", Format: FormatText}, func() {
		With("req_id", "123").Info("processing request")
	})

	assert.Contains(t, out, "req_id=123")
}

func TestLogger_FromContext(t *testing.T) {
	out := captureOutput(t, Config{Level: "debug", Format: FormatText}, func() {
		ctx := WithContext(context.Background(), With("user_id", 7))
		FromContext(ctx, nil).Info("scoped")
		FromContext(context.Background(), nil).Info("global")
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if assert.Len(t, lines, 2) {
		assert.Contains(t, lines[0], "user_id=7")
		assert.NotContains(t, lines[1], "user_id")
	}
}

func TestLogger_InitFromConfig(t *testing.T) {
	var buf bytes.Buffer
	c := config.Default()
	c.Log.Level = "debug"
	c.Log.Format = "json"
	c.Log.Component = "cfg_test"

	InitFromConfig(c)
	mu.Lock()
	cfg.Output = &buf
	logger = build(cfg)
	mu.Unlock()
	t.Cleanup(func() { Init(&Config{Level: "info", Format: FormatText}) })

	Debug("cfg-based log")

	assert.Contains(t, buf.String(), `"msg":"cfg-based log"`)
	assert.Contains(t, buf.String(), `"component":"cfg_test"`)
}
