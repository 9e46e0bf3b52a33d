package secrets

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"mailbag/internal/config"
)

const (
	keyringPasswordEnv = "MAILBAG_KEYRING_PASSWORD" //nolint:gosec // env var name, not a credential
	keyringBackendEnv  = "MAILBAG_KEYRING_BACKEND"  //nolint:gosec // env var name, not a credential

	backendAuto          = "auto"
	backendKeychain      = "keychain"
	backendSecretService = "secret-service"
	backendFile          = "file"

	// SecretService over D-Bus can hang when gnome-keyring is installed but
	// not running.
	openTimeout = 5 * time.Second
)

var (
	errNoTTY          = errors.New("no TTY available for keyring file backend password prompt")
	errInvalidBackend = errors.New("invalid keyring backend")
	errOpenTimeout    = errors.New("keyring connection timed out")

	keyringOpenFunc = keyring.Open
)

// Backend names the keyring implementation and where that choice came from:
// env, config or default.
type Backend struct {
	Name   string
	Source string
}

// ResolveBackend prefers MAILBAG_KEYRING_BACKEND over the configured value.
func ResolveBackend(configured string) Backend {
	if v := normalize(os.Getenv(keyringBackendEnv)); v != "" {
		return Backend{Name: v, Source: "env"}
	}
	if v := normalize(configured); v != "" {
		return Backend{Name: v, Source: "config"}
	}
	return Backend{Name: backendAuto, Source: "default"}
}

func (b Backend) allowed() ([]keyring.BackendType, error) {
	switch b.Name {
	case "", backendAuto:
		return nil, nil
	case backendKeychain:
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case backendSecretService:
		return []keyring.BackendType{keyring.SecretServiceBackend}, nil
	case backendFile:
		return []keyring.BackendType{keyring.FileBackend}, nil
	default:
		return nil, fmt.Errorf("%w: %q from %s (expected %s, %s, %s or %s)",
			errInvalidBackend, b.Name, b.Source, backendAuto, backendKeychain, backendSecretService, backendFile)
	}
}

// backendTypes picks the candidate backends for goos. A Linux host without a
// D-Bus session can only use the file backend.
func (b Backend) backendTypes(goos, dbusAddr string) ([]keyring.BackendType, error) {
	types, err := b.allowed()
	if err != nil {
		return nil, err
	}
	if goos == "linux" && b.Name == backendAuto && dbusAddr == "" {
		return []keyring.BackendType{keyring.FileBackend}, nil
	}
	return types, nil
}

func (b Backend) needsTimeout(goos, dbusAddr string) bool {
	return goos == "linux" && b.Name == backendAuto && dbusAddr != ""
}

func filePrompt(password string, passwordSet bool, isTTY bool) keyring.PromptFunc {
	// An empty passphrase is valid when the variable is set.
	if passwordSet {
		return keyring.FixedStringPrompt(password)
	}
	if isTTY {
		return keyring.TerminalPrompt
	}
	return func(string) (string, error) {
		return "", fmt.Errorf("%w; set %s", errNoTTY, keyringPasswordEnv)
	}
}

func openBackend(b Backend) (keyring.Keyring, error) {
	dir, err := config.EnsureKeyringDir()
	if err != nil {
		return nil, err
	}

	dbusAddr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	types, err := b.backendTypes(runtime.GOOS, dbusAddr)
	if err != nil {
		return nil, err
	}

	password, passwordSet := os.LookupEnv(keyringPasswordEnv)
	cfg := keyring.Config{
		ServiceName:              config.AppName,
		KeychainTrustApplication: false,
		AllowedBackends:          types,
		FileDir:                  dir,
		FilePasswordFunc:         filePrompt(password, passwordSet, term.IsTerminal(int(os.Stdin.Fd()))),
	}

	if b.needsTimeout(runtime.GOOS, dbusAddr) {
		return openWithTimeout(cfg, openTimeout)
	}

	ring, err := keyringOpenFunc(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

func openWithTimeout(cfg keyring.Config, timeout time.Duration) (keyring.Keyring, error) {
	type result struct {
		ring keyring.Keyring
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		ring, err := keyringOpenFunc(cfg)
		ch <- result{ring, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("open keyring: %w", res.err)
		}
		return res.ring, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v; set %s=%s and %s to use encrypted file storage",
			errOpenTimeout, timeout, keyringBackendEnv, backendFile, keyringPasswordEnv)
	}
}

// IsKeychainLockedError reports whether msg is the macOS Security framework
// error for a locked login keychain.
func IsKeychainLockedError(msg string) bool {
	return strings.Contains(msg, "-25308") ||
		strings.Contains(strings.ToLower(msg), "user interaction is not allowed")
}

func explainKeychain(err error) error {
	if err != nil && IsKeychainLockedError(err.Error()) {
		return fmt.Errorf("%w\n\nThe macOS keychain is locked. Unlock it with:\n  security unlock-keychain ~/Library/Keychains/login.keychain-db", err)
	}
	return err
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
