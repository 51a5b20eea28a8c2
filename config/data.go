package config

import (
	"os"
	"path/filepath"
)

// DATA_DIR is the directory where imagegen stores its local databases.
// Defaults to "./data" relative to the executable
var DATA_DIR = getDataDir()

// getDataDir determines the data directory path from environment or default.
// Priority: IMAGEGEN_DATA_DIR environment variable > "./data" default
func getDataDir() string {
	if dir := os.Getenv("IMAGEGEN_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetDataDir returns the current data directory path.
// The environment is checked on every call so tests can redirect it.
func GetDataDir() string {
	return getDataDir()
}

// GetCacheDBPath returns the full path to the pebble result cache.
// Path: {DATA_DIR}/cache.db
func GetCacheDBPath() string {
	return filepath.Join(GetDataDir(), "cache.db")
}

// GetFailuresDBPath returns the full path to the failures database.
// The failures database tracks requests whose fetch or transform failed.
// Path: {DATA_DIR}/failures.db
func GetFailuresDBPath() string {
	return filepath.Join(GetDataDir(), "failures.db")
}

// GetLocalStorageDir returns the base directory for the local object source.
// Configurable via IMAGEGEN_LOCAL_ROOT for server administrators.
// Defaults to "./assets" relative to the executable.
func GetLocalStorageDir() string {
	if dir := os.Getenv("IMAGEGEN_LOCAL_ROOT"); dir != "" {
		return dir
	}
	return "./assets"
}
