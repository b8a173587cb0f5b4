// Package credentials stores server logins in the system keyring.
//
// Each push server gets at most one stored login, keyed by its
// normalized URL. On headless systems the file backend is used as a
// fallback so the daemon can still authenticate.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/pkoenig/pushdeck/internal/models"
)

const serviceName = "pushdeck"

// ErrNotFound is returned when no login is stored for a server.
var ErrNotFound = errors.New("no credentials stored for server")

// Credentials is a basic-auth login for a push server.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// StoreOptions configures the keyring backing the store.
type StoreOptions struct {
	// FileDir is where the file fallback backend keeps its entries
	// (default: ~/.config/pushdeck/keyring).
	FileDir string

	// FilePassword unlocks the file backend. Empty means the backend
	// prompts interactively.
	FilePassword string

	// AllowedBackends restricts which keyring backends may be used.
	// Empty means the platform default order.
	AllowedBackends []keyring.BackendType
}

// Store reads and writes server logins.
type Store struct {
	ring keyring.Keyring
}

// NewStore opens the system keyring.
func NewStore(opts StoreOptions) (*Store, error) {
	cfg := keyring.Config{
		ServiceName:     serviceName,
		AllowedBackends: opts.AllowedBackends,
		FileDir:         opts.FileDir,
	}
	if opts.FilePassword != "" {
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(opts.FilePassword)
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return &Store{ring: ring}, nil
}

// Set stores the login for a server, replacing any previous one.
func (s *Store) Set(serverURL string, creds Credentials) error {
	key := models.NormalizeURL(serverURL)

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	item := keyring.Item{
		Key:         key,
		Data:        data,
		Label:       "Pushdeck login for " + key,
		Description: "push server credentials",
	}
	if err := s.ring.Set(item); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	return nil
}

// Get returns the stored login for a server.
func (s *Store) Get(serverURL string) (*Credentials, error) {
	key := models.NormalizeURL(serverURL)

	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(item.Data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return &creds, nil
}

// Delete removes the stored login for a server. Deleting a server
// that has no login is not an error.
func (s *Store) Delete(serverURL string) error {
	key := models.NormalizeURL(serverURL)

	if err := s.ring.Remove(key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("failed to remove credentials: %w", err)
	}

	return nil
}
