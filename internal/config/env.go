package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the value of the named environment variable, or fallback if
// the variable is unset or empty.
func String(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Int returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func Int(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// Float32 returns the float32 value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func Float32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

// Bool reports whether the named environment variable is "true" or "1".
// Unset or empty returns fallback.
func Bool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "":
		return fallback
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// Duration parses the named environment variable with [time.ParseDuration].
// A bare integer is read as seconds. Unset, empty, or unparseable values
// return fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
