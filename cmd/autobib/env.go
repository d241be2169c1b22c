package main

import (
	"os"
	"path/filepath"
)

// defaultConfigPath, defaultDatabasePath and defaultResponseCachePath
// resolve AUTOBIB_CONFIG_PATH, AUTOBIB_DATABASE_PATH and
// AUTOBIB_RESPONSE_CACHE_PATH over $XDG_*_HOME-derived defaults, since
// autobib is not tied to a single project checkout.
func defaultConfigPath() string {
	if v := os.Getenv("AUTOBIB_CONFIG_PATH"); v != "" {
		return v
	}
	return filepath.Join(xdgConfigHome(), "autobib", "config.yaml")
}

func defaultDatabasePath() string {
	if v := os.Getenv("AUTOBIB_DATABASE_PATH"); v != "" {
		return v
	}
	return filepath.Join(xdgDataHome(), "autobib", "autobib.db")
}

func defaultResponseCachePath() string {
	return os.Getenv("AUTOBIB_RESPONSE_CACHE_PATH")
}

func xdgConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config"
	}
	return filepath.Join(home, ".config")
}

func xdgDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share"
	}
	return filepath.Join(home, ".local", "share")
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
