package inbox

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"

	"github.com/pkoenig/pushdeck/internal/backend"
	"github.com/pkoenig/pushdeck/internal/models"
)

// Mutations apply to the cache synchronously and confirm against the
// backend in the background. The returned channel resolves once with
// nil when the backend accepted the change, or with the error after
// the cache has been rolled back to its pre-mutation state. Callers
// that do not care may drop the channel.

// MarkRead marks one notification as read.
func (s *Service) MarkRead(id string) <-chan error {
	s.mu.Lock()
	topicID, ok := s.index[id]
	if s.closed || !ok {
		s.mu.Unlock()
		return resolved(nil)
	}
	snap := s.captureLocked(topicID)
	s.markReadLocked(id, topicID)
	s.mu.Unlock()

	return s.confirm("mark notification as read", topicID, snap, func(ctx context.Context) error {
		return s.backend.MarkRead(ctx, id)
	})
}

// MarkTopicRead marks every notification in one topic as read. The
// backend call runs even when nothing is cached locally, since the
// store may hold history the cache has not loaded.
func (s *Service) MarkTopicRead(topicID string) <-chan error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return resolved(nil)
	}
	snap := s.captureLocked(topicID)
	s.markTopicReadLocked(topicID)
	s.mu.Unlock()

	return s.confirm("mark topic as read", topicID, snap, func(ctx context.Context) error {
		return s.backend.MarkTopicRead(ctx, topicID)
	})
}

// MarkAllRead marks every subscribed topic as read. One backend
// command is issued per topic; if any of them fails the whole
// mutation is rolled back, so the cache never shows a half-applied
// global state.
func (s *Service) MarkAllRead() <-chan error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return resolved(nil)
	}
	snap := s.captureAllLocked()
	topicIDs := make([]string, len(s.subscriptions))
	for i := range s.subscriptions {
		topicIDs[i] = s.subscriptions[i].ID
	}
	for _, topicID := range topicIDs {
		s.markTopicReadLocked(topicID)
	}
	s.mu.Unlock()

	return s.confirm("mark all notifications as read", "", snap, func(ctx context.Context) error {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs error
		)
		for _, topicID := range topicIDs {
			wg.Add(1)
			go func(topicID string) {
				defer wg.Done()
				if err := s.backend.MarkTopicRead(ctx, topicID); err != nil {
					mu.Lock()
					errs = multierr.Append(errs, err)
					mu.Unlock()
				}
			}(topicID)
		}
		wg.Wait()
		return errs
	})
}

// Delete removes one notification.
func (s *Service) Delete(id string) <-chan error {
	s.mu.Lock()
	topicID, ok := s.index[id]
	if s.closed || !ok {
		s.mu.Unlock()
		return resolved(nil)
	}
	snap := s.captureLocked(topicID)
	s.removeLocked(id, topicID)
	s.mu.Unlock()

	return s.confirm("delete notification", topicID, snap, func(ctx context.Context) error {
		return s.backend.Delete(ctx, id)
	})
}

// ToggleFavorite flips one notification's favorite flag.
func (s *Service) ToggleFavorite(id string) <-chan error {
	s.mu.Lock()
	topicID, ok := s.index[id]
	if s.closed || !ok {
		s.mu.Unlock()
		return resolved(nil)
	}
	snap := s.captureLocked(topicID)
	favorite := s.toggleFavoriteLocked(id, topicID)
	s.mu.Unlock()

	return s.confirm("update favorite", topicID, snap, func(ctx context.Context) error {
		return s.backend.SetFavorite(ctx, id, favorite)
	})
}

// SetExpanded persists a card's expanded state. The flag is cosmetic,
// so a backend failure is logged but never rolled back or raised to
// the user; the card simply stays the way the user left it.
func (s *Service) SetExpanded(id string, expanded bool) <-chan error {
	s.mu.Lock()
	topicID, ok := s.index[id]
	if s.closed || !ok {
		s.mu.Unlock()
		return resolved(nil)
	}
	s.setExpandedLocked(id, topicID, expanded)
	s.mu.Unlock()

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		err := s.backend.SetExpanded(context.Background(), id, expanded)
		if err != nil {
			s.logger.Warn().Err(err).Str("notification_id", id).Msg("Failed to persist expanded state")
		}
		ch <- err
	}()
	return ch
}

// confirm runs the backend call off the caller's goroutine. On failure
// it restores the snapshot, logs the cause, and raises a user-facing
// alert before resolving the channel.
func (s *Service) confirm(action, topicID string, snap snapshot, call func(context.Context) error) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)

		err := call(context.Background())
		if err == nil {
			ch <- nil
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			ch <- err
			return
		}
		s.restoreLocked(snap)
		s.mu.Unlock()

		s.logger.Error().Err(err).Str("action", action).Msg("Mutation rejected by backend, rolled back")
		s.raiseAlert(topicID, action, err)
		ch <- err
	}()
	return ch
}

// raiseAlert publishes the user-facing failure notice for a rolled
// back mutation.
func (s *Service) raiseAlert(topicID, action string, cause error) {
	event, err := models.NewAlertEvent(topicID, models.AlertPayload{
		Action:  action,
		Message: userMessage(action, cause),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to build alert event")
		return
	}
	s.publisher.Publish(event)
}

// userMessage prefers the backend's classified message and falls back
// to a generic one built from the action name.
func userMessage(action string, err error) string {
	var be *backend.Error
	if errors.As(err, &be) {
		return be.UserMessage()
	}
	return "Failed to " + action
}

// resolved returns an already-settled confirmation channel.
func resolved(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}
