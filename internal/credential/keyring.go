// Package credential reads gateway secrets from the OS keyring.
package credential

import (
	"os"
	"strings"

	"aaronromeo.com/inboxsweep/pkg/base"
	"github.com/99designs/keyring"
	"github.com/pkg/errors"
)

const (
	// IMAPPasswordKey is the keyring entry consulted when INBOXSWEEP_IMAP_PASS is unset.
	IMAPPasswordKey = "imap-password"
)

var ErrNotFound = errors.New("credential not found")

type Store struct {
	ring keyring.Keyring
}

func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Open returns a store on the first usable OS backend. dir is used by the file backend.
func Open(dir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: base.ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(base.ServiceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open keyring")
	}
	return NewStore(ring), nil
}

func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", errors.Wrapf(ErrNotFound, "credential %q", key)
	}
	if err != nil {
		return "", errors.Wrapf(err, "get credential %q", key)
	}
	return string(item.Data), nil
}

func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: base.ServiceName + " " + key,
	})
	return errors.Wrapf(err, "set credential %q", key)
}

// Delete removes key. Deleting a missing key succeeds.
func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if err == nil || errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return errors.Wrapf(err, "delete credential %q", key)
}

// Resolve prefers the environment variable and falls back to the keyring entry.
func (s *Store) Resolve(envVar, key string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v, nil
	}
	if s == nil {
		return "", errors.Wrapf(ErrNotFound, "%s is unset and no keyring is configured", envVar)
	}
	return s.Get(key)
}
