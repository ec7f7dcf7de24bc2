// Package jarvis holds the application-wide defaults shared by the config, storage and CLI layers.
package jarvis

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName       = "jarvis"
	DefaultAssistantName = "J.A.R.V.I.S"
	DefaultDatabaseType  = "libsql"
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDataDir     = filepath.Join(userDataDir(), DefaultAppName)
	DefaultDatabaseDSN = filepath.Join(DefaultDataDir, "memory.db")
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

// userDataDir follows XDG_DATA_HOME when set and falls back to ~/.local/share.
func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}
