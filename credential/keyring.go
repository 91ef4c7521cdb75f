package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "email-monitor"

// ErrNotFound is returned when no credential is stored for a key.
var ErrNotFound = keyring.ErrKeyNotFound

// Store reads and writes mailbox passwords.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the system keyring.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/email-monitor/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("email-monitor-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an existing keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves the password stored for account.
func (s *Store) Get(account string) (string, error) {
	item, err := s.ring.Get(account)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", account, err)
	}
	return string(item.Data), nil
}

// Set stores password for account.
func (s *Store) Set(account, password string) error {
	err := s.ring.Set(keyring.Item{
		Key:         account,
		Data:        []byte(password),
		Label:       "email-monitor " + account,
		Description: "mailbox password",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", account, err)
	}
	return nil
}

// Delete removes the password stored for account. Deleting a missing entry is not an error.
func (s *Store) Delete(account string) error {
	if err := s.ring.Remove(account); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", account, err)
	}
	return nil
}

// Lookup adapts the store to config.PasswordLookup.
func (s *Store) Lookup(account string) (string, error) {
	return s.Get(account)
}
