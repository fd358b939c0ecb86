// Package config loads the daemon's runtime configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strings"
)

// Runtime holds the daemon's startup configuration. It is populated once at
// boot and passed down by value/pointer; nothing in this package is global.
type Runtime struct {
	DataRoot string
	BindAddr string
	LogLevel slog.Level
}

// Load reads configuration from the environment, applying the documented
// defaults for anything unset.
func Load() Runtime {
	return Runtime{
		DataRoot: getEnv("DATA_ROOT", "./data"),
		BindAddr: getEnv("BIND_ADDR", "127.0.0.1:7071"),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
