// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// DefaultDataDir returns the directory session data lives in when no path
// is configured.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "stapler")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "stapler-data"
	}
	return filepath.Join(home, ".local", "share", "stapler")
}

// DefaultDatabasePath returns the default session database location.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), "session.db")
}

// DefaultBlobPath returns the default receipt blob store location.
func DefaultBlobPath() string {
	return filepath.Join(DefaultDataDir(), "receipts.db")
}
