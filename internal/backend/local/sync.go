package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/pkoenig/pushdeck/internal/db"
	"github.com/pkoenig/pushdeck/internal/logging"
	"github.com/pkoenig/pushdeck/internal/models"
	"github.com/pkoenig/pushdeck/internal/relay"
)

// Run drives the backend until the context is cancelled: one full sync
// on startup, a live watcher per subscription, and a periodic poll to
// catch anything the websockets missed.
func (b *Backend) Run(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.watchers = make(map[string]context.CancelFunc)
	b.mu.Unlock()

	defer func() {
		b.stopAllWatchers()
		b.wg.Wait()
		b.mu.Lock()
		b.runCtx = nil
		b.mu.Unlock()
	}()

	if err := b.SyncSubscriptions(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("Startup account sync failed")
	}
	if err := b.SyncNotifications(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("Startup poll failed")
	}

	if b.wsEnabled {
		subs, err := b.subscriptions.List(ctx)
		if err != nil {
			return classify("start watchers", err)
		}
		for _, sub := range subs {
			b.startWatcher(sub)
		}
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	b.logger.Info().Dur("poll_interval", b.pollInterval).Bool("websocket", b.wsEnabled).Msg("Backend running")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Backend stopping")
			return nil
		case <-ticker.C:
			if err := b.SyncSubscriptions(ctx); err != nil {
				b.logger.Warn().Err(err).Msg("Account sync failed")
			}
			if err := b.SyncNotifications(ctx); err != nil {
				b.logger.Warn().Err(err).Msg("Poll sweep failed")
			}
		}
	}
}

// SyncSubscriptions pulls account state from every server with a
// stored login and creates subscriptions this device is missing. A
// resync event is published when anything changed.
func (b *Backend) SyncSubscriptions(ctx context.Context) error {
	servers, err := b.servers.List(ctx)
	if err != nil {
		return classify("sync subscriptions", err)
	}

	changed := false
	var errs error
	for _, server := range servers {
		creds, err := b.creds.Lookup(server.URL)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("credentials for %s: %w", server.URL, err))
			continue
		}
		if creds == nil {
			// Anonymous servers have no account to mirror.
			continue
		}

		account, err := b.client.Account(ctx, server.URL, *creds)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("account for %s: %w", server.URL, err))
			continue
		}

		for _, remote := range account.Subscriptions {
			if !models.URLsMatch(remote.BaseURL, server.URL) {
				// Subscription for another server in the same account.
				continue
			}

			sub := models.Subscription{
				Topic:       remote.Topic,
				ServerURL:   server.URL,
				DisplayName: remote.DisplayName,
			}
			err := b.subscriptions.Create(ctx, &sub)
			if errors.Is(err, db.ErrDuplicateSubscription) {
				continue
			}
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("subscribe %s: %w", remote.Topic, err))
				continue
			}

			b.logger.Info().Str("topic", sub.Topic).Str("server", logging.Redact(sub.ServerURL)).Msg("Adopted subscription from account")
			changed = true
			b.startWatcher(sub)
		}
	}

	if changed {
		b.publisher.Publish(models.NewResyncEvent())
	}

	return errs
}

// SyncNotifications polls every subscription for messages published
// since its watermark. Failures are collected so one unreachable
// server does not stall the rest.
func (b *Backend) SyncNotifications(ctx context.Context) error {
	subs, err := b.subscriptions.List(ctx)
	if err != nil {
		return classify("sync notifications", err)
	}

	var errs error
	for _, sub := range subs {
		if err := b.syncSubscription(ctx, sub); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("topic %s: %w", sub.Topic, err))
		}
	}
	return errs
}

// syncSubscription polls one topic and advances its watermark.
func (b *Backend) syncSubscription(ctx context.Context, sub models.Subscription) error {
	creds, err := b.creds.Lookup(sub.ServerURL)
	if err != nil {
		return err
	}

	messages, err := b.client.Poll(ctx, sub.ServerURL, sub.Topic, sub.LastSync, creds)
	if err != nil {
		return err
	}

	var maxTime int64
	for _, msg := range messages {
		if msg.Time > maxTime {
			maxTime = msg.Time
		}
		b.storeMessage(ctx, sub.ID, msg)
	}

	// The next poll starts just past the newest message, or now for
	// quiet topics.
	next := time.Now().Unix()
	if maxTime+1 > next {
		next = maxTime + 1
	}
	if err := b.subscriptions.UpdateLastSync(ctx, sub.ID, next); err != nil {
		if errors.Is(err, db.ErrSubscriptionNotFound) {
			// Unsubscribed mid-poll.
			return nil
		}
		return err
	}

	return nil
}

// handleLive is the watcher callback for messages arriving over a
// websocket.
func (b *Backend) handleLive(topicID string, msg relay.Message) {
	b.mu.Lock()
	ctx := b.runCtx
	b.mu.Unlock()
	if ctx == nil {
		return
	}

	b.storeMessage(ctx, topicID, msg)
}

// storeMessage persists a wire message and announces it. Messages this
// device has already seen, on any topic, are dropped.
func (b *Backend) storeMessage(ctx context.Context, topicID string, msg relay.Message) {
	n := msg.ToNotification(topicID)

	inserted, err := b.notifications.CreateUnique(ctx, &n)
	if err != nil {
		b.logger.Warn().Err(err).Str("remote_id", msg.ID).Msg("Failed to store notification")
		return
	}
	if !inserted {
		return
	}

	event, err := models.NewNotificationEvent(n)
	if err != nil {
		b.logger.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to build notification event")
		return
	}
	b.publisher.Publish(event)
}

// startWatcher opens a live websocket for a subscription. It is a
// no-op while the backend is not running, when websockets are
// disabled, or when the topic is already watched.
func (b *Backend) startWatcher(sub models.Subscription) {
	if !b.wsEnabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.runCtx == nil {
		return
	}
	if _, exists := b.watchers[sub.ID]; exists {
		return
	}

	creds, err := b.creds.Lookup(sub.ServerURL)
	if err != nil {
		b.logger.Warn().Err(err).Str("topic", sub.Topic).Msg("Watcher has no credentials")
		creds = nil
	}

	watcherCtx, cancel := context.WithCancel(b.runCtx)
	b.watchers[sub.ID] = cancel

	topicID := sub.ID
	watcher := relay.NewWatcher(relay.WatcherConfig{
		ServerURL:   sub.ServerURL,
		Topic:       sub.Topic,
		Credentials: creds,
		Handler: func(msg relay.Message) {
			b.handleLive(topicID, msg)
		},
	})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := watcher.Run(watcherCtx); err != nil {
			b.logger.Error().Err(err).Str("topic", sub.Topic).Msg("Watcher stopped")
		}
	}()
}

// stopWatcher tears down the websocket for a subscription.
func (b *Backend) stopWatcher(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cancel, ok := b.watchers[id]; ok {
		cancel()
		delete(b.watchers, id)
	}
}

func (b *Backend) stopAllWatchers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, cancel := range b.watchers {
		cancel()
		delete(b.watchers, id)
	}
}
