// Package config provides environment configuration helpers for go-avatar commands.
package config

import "os"

// Env returns the value of the named environment variable,
// falling back to the provided default if not set.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
