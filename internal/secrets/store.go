// Package secrets keeps IMAP account passwords out of the config file.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/99designs/keyring"

	"mailbag/internal/config"
)

var (
	ErrSecretNotFound = errors.New("secret not found")

	errMissingUsername = errors.New("missing username")
	errMissingPassword = errors.New("missing password")
)

// Store holds account passwords in the OS keyring. The keyring is opened on
// first use.
type Store struct {
	Backend Backend

	open    func(Backend) (keyring.Keyring, error)
	once    sync.Once
	ring    keyring.Keyring
	errOpen error
}

// NewStore uses the keyring backend from cfg unless the environment
// overrides it.
func NewStore(cfg config.Config) *Store {
	return &Store{Backend: ResolveBackend(cfg.KeyringBackend), open: openBackend}
}

func (s *Store) openRing() (keyring.Keyring, error) {
	s.once.Do(func() {
		if s.ring != nil {
			return
		}
		s.ring, s.errOpen = s.open(s.Backend)
	})
	return s.ring, s.errOpen
}

func (s *Store) SetPassword(host, username, password string) error {
	key, err := passwordKey(host, username)
	if err != nil {
		return err
	}
	if password == "" {
		return errMissingPassword
	}

	ring, err := s.openRing()
	if err != nil {
		return err
	}
	item := keyring.Item{Key: key, Data: []byte(password), Label: config.AppName}
	if err := ring.Set(item); err != nil {
		return explainKeychain(fmt.Errorf("store password: %w", err))
	}
	return nil
}

func (s *Store) Password(host, username string) (string, error) {
	key, err := passwordKey(host, username)
	if err != nil {
		return "", err
	}

	ring, err := s.openRing()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", explainKeychain(fmt.Errorf("read password: %w", err))
	}
	return string(item.Data), nil
}

func (s *Store) DeletePassword(host, username string) error {
	key, err := passwordKey(host, username)
	if err != nil {
		return err
	}

	ring, err := s.openRing()
	if err != nil {
		return err
	}
	if _, err := ring.Get(key); errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrSecretNotFound
	}
	if err := ring.Remove(key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) || os.IsNotExist(err) {
			return ErrSecretNotFound
		}
		return explainKeychain(fmt.Errorf("remove password: %w", err))
	}
	return nil
}

// passwordKey scopes the entry to one account on one server.
func passwordKey(host, username string) (string, error) {
	user := normalize(username)
	if user == "" {
		return "", errMissingUsername
	}
	if h := normalize(host); h != "" {
		return "imap:password:" + user + "@" + h, nil
	}
	return "imap:password:" + user, nil
}
