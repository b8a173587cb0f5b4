package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSettingNotFound is returned when a setting key has no value.
var ErrSettingNotFound = errors.New("setting not found")

// Setting keys used by the application.
const (
	SettingNotificationsEnabled = "notifications_enabled"
	SettingFavoritesEnabled     = "favorites_enabled"
)

// SettingsRepository handles key/value settings persistence.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves a setting value.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrSettingNotFound, key)
		}
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores a setting value, replacing any existing one.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// GetBool retrieves a boolean setting, returning fallback when the key
// is missing or holds anything but "true" or "false".
func (r *SettingsRepository) GetBool(ctx context.Context, key string, fallback bool) (bool, error) {
	value, err := r.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return fallback, nil
		}
		return fallback, err
	}

	switch value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return fallback, nil
	}
}

// SetBool stores a boolean setting.
func (r *SettingsRepository) SetBool(ctx context.Context, key string, value bool) error {
	if value {
		return r.Set(ctx, key, "true")
	}
	return r.Set(ctx, key, "false")
}
