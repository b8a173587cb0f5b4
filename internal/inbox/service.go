// Package inbox holds the in-memory notification cache backing the
// inbox views. It loads per-topic collections lazily, applies user
// mutations optimistically with rollback on backend failure, and keeps
// itself consistent with push events arriving from the backend.
package inbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pkoenig/pushdeck/internal/backend"
	"github.com/pkoenig/pushdeck/internal/events"
	"github.com/pkoenig/pushdeck/internal/logging"
	"github.com/pkoenig/pushdeck/internal/models"
)

// Options configures the inbox service.
type Options struct {
	// Backend executes commands. Required.
	Backend backend.API

	// Publisher delivers push events and carries raised alerts.
	// Required.
	Publisher events.Publisher
}

// Service is the session-scoped notification cache. All state is
// guarded by one mutex; methods may be called from any goroutine.
type Service struct {
	backend      backend.API
	publisher    events.Publisher
	logger       zerolog.Logger
	subscriberID string

	mu            sync.Mutex
	collections   map[string][]models.Notification
	loaded        map[string]struct{}
	index         map[string]string // notification id -> topic id
	subscriptions []models.Subscription
	closed        bool
}

// New creates the service, fetches the subscription list, and starts
// listening for push events.
func New(ctx context.Context, opts Options) (*Service, error) {
	s := &Service{
		backend:      opts.Backend,
		publisher:    opts.Publisher,
		logger:       logging.Component("inbox"),
		subscriberID: "inbox-" + uuid.NewString(),
		collections:  make(map[string][]models.Notification),
		loaded:       make(map[string]struct{}),
		index:        make(map[string]string),
	}

	if err := s.RefreshSubscriptions(ctx); err != nil {
		return nil, err
	}

	filter := events.Filter{
		Types: []models.EventType{
			models.EventTypeNotificationNew,
			models.EventTypeSubscriptionsResynced,
		},
	}
	if err := s.publisher.Subscribe(s.subscriberID, filter, s.handleEvent); err != nil {
		return nil, fmt.Errorf("failed to subscribe to push events: %w", err)
	}

	return s, nil
}

// Close detaches the service from the push channel. Results of still
// in-flight loads and confirmations are discarded.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.publisher.Unsubscribe(s.subscriberID); err != nil {
		s.logger.Debug().Err(err).Msg("Unsubscribe on close failed")
	}
}

// RefreshSubscriptions replaces the cached subscription list with the
// backend's. Loaded notification collections are left untouched.
func (s *Service) RefreshSubscriptions(ctx context.Context) error {
	subs, err := s.backend.Subscriptions(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.subscriptions = subs
	return nil
}

// Subscriptions returns the cached subscription list.
func (s *Service) Subscriptions() []models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneSubscriptions(s.subscriptions)
}

// Subscription returns one cached subscription by id.
func (s *Service) Subscription(id string) (models.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.subIndexLocked(id); i >= 0 {
		return s.subscriptions[i].Clone(), true
	}
	return models.Subscription{}, false
}

// AddSubscription subscribes to a topic and loads its (usually empty)
// history so the topic shows up immediately.
func (s *Service) AddSubscription(ctx context.Context, params backend.AddSubscriptionParams) (models.Subscription, error) {
	sub, err := s.backend.AddSubscription(ctx, params)
	if err != nil {
		return models.Subscription{}, err
	}

	s.mu.Lock()
	if !s.closed && s.subIndexLocked(sub.ID) < 0 {
		s.subscriptions = append(s.subscriptions, sub)
	}
	s.mu.Unlock()

	if err := s.LoadTopic(ctx, sub.ID); err != nil {
		s.logger.Warn().Err(err).Str("topic_id", sub.ID).Msg("Initial topic load failed")
	}

	return sub, nil
}

// RemoveSubscription unsubscribes and clears the topic's cached
// notifications in the same step, so no orphaned records or index
// entries survive.
func (s *Service) RemoveSubscription(ctx context.Context, id string) error {
	if err := s.backend.RemoveSubscription(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	s.clearTopicLocked(id)
	if i := s.subIndexLocked(id); i >= 0 {
		s.subscriptions = append(s.subscriptions[:i], s.subscriptions[i+1:]...)
	}
	return nil
}

// ToggleMute flips a subscription's muted flag and returns the new
// state.
func (s *Service) ToggleMute(ctx context.Context, id string) (bool, error) {
	muted, err := s.backend.ToggleMute(ctx, id)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.subIndexLocked(id); i >= 0 {
		s.subscriptions[i].Muted = muted
	}
	return muted, nil
}

// handleEvent is the push-channel callback.
func (s *Service) handleEvent(e *models.Event) {
	switch e.Type {
	case models.EventTypeNotificationNew:
		n, err := e.Notification()
		if err != nil {
			s.logger.Warn().Err(err).Str("event_id", e.ID).Msg("Dropping malformed notification event")
			return
		}
		s.insert(n)

	case models.EventTypeSubscriptionsResynced:
		// Refresh off the publisher's goroutine; the handler must not
		// stall event delivery on a backend call.
		go func() {
			if err := s.RefreshSubscriptions(context.Background()); err != nil {
				s.logger.Warn().Err(err).Msg("Subscription refresh after resync failed")
			}
		}()
	}
}

// insert places a push-delivered notification at the front of its
// topic's collection. The topic is not marked loaded by this; a later
// load still replaces the full history.
func (s *Service) insert(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	n = n.Clone()
	s.collections[n.TopicID] = append([]models.Notification{n}, s.collections[n.TopicID]...)
	s.index[n.ID] = n.TopicID
}

// subIndexLocked returns the position of a subscription in the cached
// list, or -1.
func (s *Service) subIndexLocked(id string) int {
	for i := range s.subscriptions {
		if s.subscriptions[i].ID == id {
			return i
		}
	}
	return -1
}
