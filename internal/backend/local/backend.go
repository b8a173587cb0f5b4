// Package local implements the backend against the local SQLite store
// and ntfy relay servers. Commands mutate the store directly; received
// messages are persisted and announced on the events publisher.
package local

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkoenig/pushdeck/internal/backend"
	"github.com/pkoenig/pushdeck/internal/credentials"
	"github.com/pkoenig/pushdeck/internal/db"
	"github.com/pkoenig/pushdeck/internal/events"
	"github.com/pkoenig/pushdeck/internal/logging"
	"github.com/pkoenig/pushdeck/internal/models"
	"github.com/pkoenig/pushdeck/internal/relay"
)

// CredentialSource resolves the stored login for a server. A nil
// result with a nil error means the server is used anonymously.
type CredentialSource interface {
	Lookup(serverURL string) (*credentials.Credentials, error)
}

// StoreSource adapts the keyring store to a CredentialSource.
type StoreSource struct {
	Store *credentials.Store
}

// Lookup returns the stored login, or nil when none exists.
func (s StoreSource) Lookup(serverURL string) (*credentials.Credentials, error) {
	creds, err := s.Store.Get(serverURL)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return creds, nil
}

// Options configures the local backend.
type Options struct {
	// Client talks to the relay servers. Required.
	Client *relay.Client

	// Credentials resolves server logins. Required.
	Credentials CredentialSource

	// PollInterval is how often all topics are polled while running.
	PollInterval time.Duration

	// WebsocketEnabled keeps a live watcher per subscription.
	WebsocketEnabled bool
}

// Backend is the local implementation of the backend API.
type Backend struct {
	notifications *db.NotificationRepository
	subscriptions *db.SubscriptionRepository
	servers       *db.ServerRepository
	client        *relay.Client
	creds         CredentialSource
	publisher     events.Publisher
	logger        zerolog.Logger
	pollInterval  time.Duration
	wsEnabled     bool

	mu       sync.Mutex
	runCtx   context.Context
	watchers map[string]context.CancelFunc
	wg       sync.WaitGroup
}

var _ backend.API = (*Backend)(nil)

// New creates a local backend on top of an open database.
func New(database *db.DB, publisher events.Publisher, opts Options) *Backend {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}

	return &Backend{
		notifications: db.NewNotificationRepository(database),
		subscriptions: db.NewSubscriptionRepository(database),
		servers:       db.NewServerRepository(database),
		client:        opts.Client,
		creds:         opts.Credentials,
		publisher:     publisher,
		logger:        logging.Component("backend"),
		pollInterval:  opts.PollInterval,
		wsEnabled:     opts.WebsocketEnabled,
	}
}

// Notifications returns the stored history for a topic, newest first.
func (b *Backend) Notifications(ctx context.Context, topicID string) ([]models.Notification, error) {
	list, err := b.notifications.ListByTopic(ctx, topicID)
	if err != nil {
		return nil, classify("load notifications", err)
	}
	return list, nil
}

// MarkRead marks one notification as read. Marking a notification that
// no longer exists succeeds.
func (b *Backend) MarkRead(ctx context.Context, id string) error {
	err := b.notifications.MarkRead(ctx, id)
	if errors.Is(err, db.ErrNotificationNotFound) {
		return nil
	}
	return classify("mark notification as read", err)
}

// MarkTopicRead marks every notification in a topic as read.
func (b *Backend) MarkTopicRead(ctx context.Context, topicID string) error {
	return classify("mark topic as read", b.notifications.MarkTopicRead(ctx, topicID))
}

// Delete removes a notification. Deleting twice succeeds.
func (b *Backend) Delete(ctx context.Context, id string) error {
	err := b.notifications.Delete(ctx, id)
	if errors.Is(err, db.ErrNotificationNotFound) {
		return nil
	}
	return classify("delete notification", err)
}

// SetFavorite sets the favorite flag. The target having been deleted
// in the meantime is not an error.
func (b *Backend) SetFavorite(ctx context.Context, id string, favorite bool) error {
	err := b.notifications.SetFavorite(ctx, id, favorite)
	if errors.Is(err, db.ErrNotificationNotFound) {
		return nil
	}
	return classify("update favorite", err)
}

// SetExpanded persists the cosmetic expanded flag.
func (b *Backend) SetExpanded(ctx context.Context, id string, expanded bool) error {
	err := b.notifications.SetExpanded(ctx, id, expanded)
	if errors.Is(err, db.ErrNotificationNotFound) {
		return nil
	}
	return classify("save expanded state", err)
}

// Subscriptions returns all subscriptions with stored unread counts.
func (b *Backend) Subscriptions(ctx context.Context) ([]models.Subscription, error) {
	list, err := b.subscriptions.List(ctx)
	if err != nil {
		return nil, classify("load subscriptions", err)
	}
	return list, nil
}

// AddSubscription creates a subscription. An empty server URL selects
// the default server. While the backend is running, the new topic gets
// an immediate poll and a live watcher.
func (b *Backend) AddSubscription(ctx context.Context, params backend.AddSubscriptionParams) (models.Subscription, error) {
	serverURL := params.ServerURL
	if serverURL == "" {
		def, err := b.servers.GetDefault(ctx)
		if err != nil {
			return models.Subscription{}, classify("add subscription", err)
		}
		serverURL = def.URL
	}

	sub := models.Subscription{
		Topic:       params.Topic,
		ServerURL:   serverURL,
		DisplayName: params.DisplayName,
	}
	if err := b.subscriptions.Create(ctx, &sub); err != nil {
		return models.Subscription{}, classify("add subscription", err)
	}

	b.logger.Info().Str("topic", sub.Topic).Str("server", logging.Redact(sub.ServerURL)).Msg("Subscription added")

	b.mu.Lock()
	runCtx := b.runCtx
	b.mu.Unlock()
	if runCtx != nil {
		b.startWatcher(sub)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := b.syncSubscription(runCtx, sub); err != nil {
				b.logger.Warn().Err(err).Str("topic", sub.Topic).Msg("Initial poll failed")
			}
		}()
	}

	return sub, nil
}

// RemoveSubscription deletes a subscription and its notifications.
// Removing an unknown subscription succeeds.
func (b *Backend) RemoveSubscription(ctx context.Context, id string) error {
	b.stopWatcher(id)

	err := b.subscriptions.Delete(ctx, id)
	if errors.Is(err, db.ErrSubscriptionNotFound) {
		return nil
	}
	return classify("remove subscription", err)
}

// ToggleMute flips the muted flag and returns the new state.
func (b *Backend) ToggleMute(ctx context.Context, id string) (bool, error) {
	muted, err := b.subscriptions.ToggleMute(ctx, id)
	if err != nil {
		return false, classify("toggle mute", err)
	}
	return muted, nil
}

// classify maps store and relay failures onto backend error kinds.
func classify(action string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, db.ErrNotificationNotFound),
		errors.Is(err, db.ErrSubscriptionNotFound),
		errors.Is(err, db.ErrServerNotFound):
		return backend.New(backend.KindNotFound, action, err)
	case errors.Is(err, models.ErrInvalidTopic),
		errors.Is(err, models.ErrInvalidServerURL),
		errors.Is(err, db.ErrDuplicateSubscription),
		errors.Is(err, db.ErrDuplicateServer):
		return backend.New(backend.KindValidation, action, err)
	}

	var statusErr *relay.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return backend.New(backend.KindPermission, action, err)
		case http.StatusNotFound:
			return backend.New(backend.KindNotFound, action, err)
		default:
			return backend.New(backend.KindNetwork, action, err)
		}
	}

	return backend.Wrap(action, err)
}
