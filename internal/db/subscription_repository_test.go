package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pkoenig/pushdeck/internal/models"
)

func TestSubscriptionRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	seedServer(t, database, "https://ntfy.example.com")

	repo := NewSubscriptionRepository(database)

	sub := models.Subscription{
		Topic:       "alerts",
		ServerURL:   "https://ntfy.example.com/",
		DisplayName: "Prod alerts",
	}
	if err := repo.Create(ctx, &sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.ID == "" {
		t.Fatal("Create did not set subscription ID")
	}

	got, err := repo.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Topic != "alerts" {
		t.Fatalf("unexpected topic: %q", got.Topic)
	}
	if got.ServerURL != "https://ntfy.example.com" {
		t.Fatalf("expected normalized server url, got %q", got.ServerURL)
	}
	if got.DisplayName != "Prod alerts" {
		t.Fatalf("unexpected display name: %q", got.DisplayName)
	}
	if got.Muted {
		t.Fatal("expected new subscription to be unmuted")
	}
}

func TestSubscriptionRepositoryCreateValidation(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	seedServer(t, database, "https://ntfy.example.com")

	repo := NewSubscriptionRepository(database)

	err := repo.Create(ctx, &models.Subscription{Topic: "bad topic!", ServerURL: "https://ntfy.example.com"})
	if !errors.Is(err, models.ErrInvalidTopic) {
		t.Fatalf("expected ErrInvalidTopic, got %v", err)
	}

	err = repo.Create(ctx, &models.Subscription{Topic: "alerts", ServerURL: "https://unknown.example.com"})
	if !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("expected ErrServerNotFound, got %v", err)
	}
}

func TestSubscriptionRepositoryDuplicate(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	seedServer(t, database, "https://ntfy.example.com")

	repo := NewSubscriptionRepository(database)

	first := models.Subscription{Topic: "alerts", ServerURL: "https://ntfy.example.com"}
	if err := repo.Create(ctx, &first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := models.Subscription{Topic: "alerts", ServerURL: "https://ntfy.example.com"}
	if err := repo.Create(ctx, &dup); !errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected ErrDuplicateSubscription, got %v", err)
	}
}

func TestSubscriptionRepositoryListOrderAndUnread(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	seedServer(t, database, "https://ntfy.example.com")
	quiet := seedSubscription(t, database, "https://ntfy.example.com", "quiet")
	busy := seedSubscription(t, database, "https://ntfy.example.com", "busy")
	empty := seedSubscription(t, database, "https://ntfy.example.com", "empty")

	notifications := NewNotificationRepository(database)
	seed := []models.Notification{
		{TopicID: quiet.ID, Message: "older", Timestamp: 100, Read: true},
		{TopicID: busy.ID, Message: "newer", Timestamp: 300},
		{TopicID: busy.ID, Message: "newest", Timestamp: 400},
	}
	for i := range seed {
		if err := notifications.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create notification: %v", err)
		}
	}

	repo := NewSubscriptionRepository(database)
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 subscriptions, got %d", len(list))
	}

	// Most recently notified first, never-notified topics last.
	if list[0].ID != busy.ID || list[1].ID != quiet.ID || list[2].ID != empty.ID {
		t.Fatalf("unexpected order: %s, %s, %s", list[0].Topic, list[1].Topic, list[2].Topic)
	}
	if list[0].UnreadCount != 2 {
		t.Fatalf("expected 2 unread in busy, got %d", list[0].UnreadCount)
	}
	if list[1].UnreadCount != 0 {
		t.Fatalf("expected 0 unread in quiet, got %d", list[1].UnreadCount)
	}
}

func TestSubscriptionRepositoryToggleMute(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	seedServer(t, database, "https://ntfy.example.com")
	sub := seedSubscription(t, database, "https://ntfy.example.com", "alerts")

	repo := NewSubscriptionRepository(database)

	muted, err := repo.ToggleMute(ctx, sub.ID)
	if err != nil {
		t.Fatalf("ToggleMute: %v", err)
	}
	if !muted {
		t.Fatal("expected first toggle to mute")
	}

	muted, err = repo.ToggleMute(ctx, sub.ID)
	if err != nil {
		t.Fatalf("ToggleMute: %v", err)
	}
	if muted {
		t.Fatal("expected second toggle to unmute")
	}

	if _, err := repo.ToggleMute(ctx, "missing"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestSubscriptionRepositoryUpdateLastSync(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	seedServer(t, database, "https://ntfy.example.com")
	sub := seedSubscription(t, database, "https://ntfy.example.com", "alerts")

	repo := NewSubscriptionRepository(database)

	if err := repo.UpdateLastSync(ctx, sub.ID, 1700000000); err != nil {
		t.Fatalf("UpdateLastSync: %v", err)
	}

	got, err := repo.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastSync != 1700000000 {
		t.Fatalf("expected last sync 1700000000, got %d", got.LastSync)
	}
}

func TestSubscriptionRepositoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	seedServer(t, database, "https://ntfy.example.com")
	sub := seedSubscription(t, database, "https://ntfy.example.com", "alerts")

	notifications := NewNotificationRepository(database)
	n := models.Notification{TopicID: sub.ID, Message: "goes with the topic"}
	if err := notifications.Create(ctx, &n); err != nil {
		t.Fatalf("Create notification: %v", err)
	}

	repo := NewSubscriptionRepository(database)
	if err := repo.Delete(ctx, sub.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := repo.Get(ctx, sub.ID); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
	if _, err := notifications.Get(ctx, n.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected cascade to remove notification, got %v", err)
	}
}
