package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerWithFields(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	l := NewZerologLoggerWithWriter(&buf, "refresh").With(map[string]any{"run_id": "r1"})
	l.Infof("vehicle %s done", "v1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "refresh", line["component"])
	assert.Equal(t, "r1", line["run_id"])
	assert.Equal(t, "vehicle v1 done", line["message"])
}

func TestZerologLoggerLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer
	l := NewZerologLoggerWithWriter(&buf, "test")
	l.Infof("hidden")
	assert.Zero(t, buf.Len())
	l.Warnf("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.With(map[string]any{"a": 1}).Infof("ignored")
}

func TestConfigureLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	Configure("error", false)
	t.Cleanup(func() { Configure("info", false) })

	var buf bytes.Buffer
	l := NewZerologLoggerWithWriter(&buf, "test")
	l.Warnf("hidden")
	assert.Zero(t, buf.Len())
	l.Errorf("shown")
	assert.Contains(t, buf.String(), "shown")
}
