package db

import (
	"context"
	"errors"
	"testing"
)

func TestSettingsRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	repo := NewSettingsRepository(database)

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrSettingNotFound) {
		t.Fatalf("expected ErrSettingNotFound, got %v", err)
	}

	if err := repo.Set(ctx, "poll_interval", "60"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := repo.Get(ctx, "poll_interval")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "60" {
		t.Fatalf("expected 60, got %q", got)
	}

	// Upsert overwrites.
	if err := repo.Set(ctx, "poll_interval", "120"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err = repo.Get(ctx, "poll_interval")
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if got != "120" {
		t.Fatalf("expected 120, got %q", got)
	}
}

func TestSettingsRepositoryBool(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	repo := NewSettingsRepository(database)

	enabled, err := repo.GetBool(ctx, SettingNotificationsEnabled, true)
	if err != nil {
		t.Fatalf("GetBool fallback: %v", err)
	}
	if !enabled {
		t.Fatal("expected fallback true for unset key")
	}

	if err := repo.SetBool(ctx, SettingNotificationsEnabled, false); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	enabled, err = repo.GetBool(ctx, SettingNotificationsEnabled, true)
	if err != nil {
		t.Fatalf("GetBool: %v", err)
	}
	if enabled {
		t.Fatal("expected stored false to win over fallback")
	}

	// Unparseable values fall back instead of failing.
	if err := repo.Set(ctx, SettingFavoritesEnabled, "definitely"); err != nil {
		t.Fatalf("Set garbage: %v", err)
	}
	enabled, err = repo.GetBool(ctx, SettingFavoritesEnabled, false)
	if err != nil {
		t.Fatalf("GetBool garbage: %v", err)
	}
	if enabled {
		t.Fatal("expected fallback false for unparseable value")
	}
}
