package config

import (
	"os"
	"path/filepath"
)

// UserConfigDir returns ~/.messaging-sdk, creating it if necessary.
func UserConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".messaging-sdk")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// DefaultConfigPath returns the path to config.yaml inside
// UserConfigDir.
func DefaultConfigPath() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
