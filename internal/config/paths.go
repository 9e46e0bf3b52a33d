package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppName = "mailbag"

	// DirEnv overrides the config directory, mostly for tests and scripts.
	DirEnv = "MAILBAG_CONFIG_DIR"
)

// Dir resolves the config directory: $MAILBAG_CONFIG_DIR, then
// $XDG_CONFIG_HOME/mailbag, then ~/.config/mailbag.
func Dir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return filepath.Clean(dir), nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, AppName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home dir: %w", err)
	}
	return filepath.Join(home, ".config", AppName), nil
}

// KeyringDir is where the keyring file backend keeps its encrypted entries.
func KeyringDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "keyring"), nil
}

func EnsureKeyringDir() (string, error) {
	dir, err := KeyringDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("ensure keyring dir: %w", err)
	}
	return dir, nil
}
