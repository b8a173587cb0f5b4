// Package backend defines the command boundary between the notification
// cache and the process that owns persistence and relay connectivity.
// The cache only ever talks to a backend through this interface; push
// traffic flows the other way, through the events publisher.
package backend

import (
	"context"

	"github.com/pkoenig/pushdeck/internal/models"
)

// API is the command surface a backend exposes to the cache. Every
// command is idempotent from the caller's perspective, so a retry after
// an ambiguous failure is always safe.
type API interface {
	// Notifications returns the full notification history for a topic,
	// newest first.
	Notifications(ctx context.Context, topicID string) ([]models.Notification, error)

	// MarkRead marks a single notification as read.
	MarkRead(ctx context.Context, id string) error

	// MarkTopicRead marks every notification in a topic as read.
	MarkTopicRead(ctx context.Context, topicID string) error

	// Delete permanently removes a notification.
	Delete(ctx context.Context, id string) error

	// SetFavorite sets the favorite flag on a notification.
	SetFavorite(ctx context.Context, id string, favorite bool) error

	// SetExpanded persists the cosmetic expanded flag on a notification.
	SetExpanded(ctx context.Context, id string, expanded bool) error

	// Subscriptions returns all subscriptions with their server-reported
	// unread counts.
	Subscriptions(ctx context.Context) ([]models.Subscription, error)

	// AddSubscription creates a subscription and returns it.
	AddSubscription(ctx context.Context, params AddSubscriptionParams) (models.Subscription, error)

	// RemoveSubscription deletes a subscription and all of its
	// notifications.
	RemoveSubscription(ctx context.Context, id string) error

	// ToggleMute flips the muted flag on a subscription and returns the
	// new state.
	ToggleMute(ctx context.Context, id string) (bool, error)
}

// AddSubscriptionParams are the inputs for AddSubscription.
type AddSubscriptionParams struct {
	// Topic is the relay topic name.
	Topic string

	// ServerURL is the relay base URL. Empty selects the default server.
	ServerURL string

	// DisplayName is an optional human-friendly name.
	DisplayName string
}
