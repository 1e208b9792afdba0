package config

import (
	"os"
	"path/filepath"

	"github.com/hmrnsp/vid2mp3/internal/domain"
)

// AppDir returns the per-user directory holding settings and the
// conversion history database.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".vid2mp3")
}

// DefaultSettings returns baseline configuration for first launch.
// Conversion parameters are fixed in this version and never appear
// here; only UI conveniences are persisted.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		LastInputDir:   filepath.Join(homeDir, "Videos"),
		KeepThumbnails: false,
	}
}
