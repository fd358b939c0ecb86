package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("DATA_ROOT")
	os.Unsetenv("BIND_ADDR")
	os.Unsetenv("LOG_LEVEL")

	cfg := Load()
	assert.Equal(t, "./data", cfg.DataRoot)
	assert.Equal(t, "127.0.0.1:7071", cfg.BindAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATA_ROOT", "/tmp/aingdesk")
	t.Setenv("BIND_ADDR", "0.0.0.0:9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, "/tmp/aingdesk", cfg.DataRoot)
	assert.Equal(t, "0.0.0.0:9090", cfg.BindAddr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}
