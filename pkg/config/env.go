package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// getEnv returns the variable's value or a default.
func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// getEnvInt parses an integer variable, warning and defaulting on malformed
// values.
func getEnvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("Malformed integer environment variable, using default",
			"key", key, "value", v, "default", def)
		return def
	}
	return n
}

// getEnvMillis parses a millisecond-count variable into a duration.
func getEnvMillis(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	ms, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || ms < 0 {
		slog.Warn("Malformed duration environment variable, using default",
			"key", key, "value", v, "default", def)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// getEnvSeconds parses a second-count variable into a duration.
func getEnvSeconds(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		slog.Warn("Malformed duration environment variable, using default",
			"key", key, "value", v, "default", def)
		return def
	}
	return time.Duration(secs) * time.Second
}

// getEnvCSV splits a comma-separated variable, dropping empty elements.
func getEnvCSV(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
