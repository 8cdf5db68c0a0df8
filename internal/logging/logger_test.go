package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/reelmark/bookmarks-api/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(level, format string) *config.Config {
	cfg := &config.Config{}
	cfg.Log.Level = level
	cfg.Log.Format = format
	cfg.Server.Environment = "test"
	return cfg
}

func TestNew_JSONFormatWithDefaultFields(t *testing.T) {
	logger := New(newTestConfig("debug", "json"))
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.WithField("user_id", "user-1").Info("bookmark added")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "bookmark added", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "user-1", line["user_id"])
	assert.Equal(t, ServiceName, line["service"])
	assert.Equal(t, "test", line["environment"])
	assert.Contains(t, line, "ts")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger := New(newTestConfig("loud", "text"))
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestWithRequest(t *testing.T) {
	logger := New(newTestConfig("info", "json"))
	entry := WithRequest(logger, "GET", "/api/bookmarks", 200, 1.5)

	assert.Equal(t, 1.5, entry.Data["latency_ms"])
	httpFields, ok := entry.Data["http"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/api/bookmarks", httpFields["route"])
}

func TestGetVersion(t *testing.T) {
	t.Setenv("APP_VERSION", "1.2.3")
	assert.Equal(t, "1.2.3", GetVersion())
}
