package inbox

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/pkoenig/pushdeck/internal/models"
)

// LoadTopic fetches a topic's notification history and replaces the
// cached collection with it. The topic is marked loaded before the
// fetch starts, so a concurrent LoadTopic for the same topic returns
// immediately instead of issuing a second fetch. On failure the mark
// is cleared again and whatever was cached before stays visible.
func (s *Service) LoadTopic(ctx context.Context, topicID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if _, done := s.loaded[topicID]; done {
		s.mu.Unlock()
		return nil
	}
	s.loaded[topicID] = struct{}{}
	s.mu.Unlock()

	records, err := s.backend.Notifications(ctx, topicID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err != nil {
		delete(s.loaded, topicID)
		s.logger.Warn().Err(err).Str("topic_id", topicID).Msg("Topic load failed")
		return err
	}

	s.setCollectionLocked(topicID, models.CloneNotifications(records))
	return nil
}

// LoadAll loads every subscribed topic concurrently and waits for all
// loads to settle. Failures are collected per topic; one unreachable
// topic does not stop the others.
func (s *Service) LoadAll(ctx context.Context) error {
	subs := s.Subscriptions()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(topicID string) {
			defer wg.Done()
			if err := s.LoadTopic(ctx, topicID); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("topic %s: %w", topicID, err))
				mu.Unlock()
			}
		}(sub.ID)
	}
	wg.Wait()
	return errs
}

// Loaded reports whether a topic's history has been fetched.
func (s *Service) Loaded(topicID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, done := s.loaded[topicID]
	return done
}

// setCollectionLocked installs records as the topic's collection and
// rewrites the id index for that topic. The caller passes ownership of
// the slice.
func (s *Service) setCollectionLocked(topicID string, records []models.Notification) {
	for _, old := range s.collections[topicID] {
		delete(s.index, old.ID)
	}
	s.collections[topicID] = records
	for _, n := range records {
		s.index[n.ID] = topicID
	}
}

// clearTopicLocked drops a topic's collection, its load mark, and its
// index entries.
func (s *Service) clearTopicLocked(topicID string) {
	for _, n := range s.collections[topicID] {
		delete(s.index, n.ID)
	}
	delete(s.collections, topicID)
	delete(s.loaded, topicID)
}

// snapshot is the rollback target captured before a mutation is
// applied. It holds deep copies of the affected topic collections and
// the server-reported unread counts the mutation is about to change.
type snapshot struct {
	collections map[string][]models.Notification
	unread      map[string]int
}

// captureLocked snapshots the given topics.
func (s *Service) captureLocked(topicIDs ...string) snapshot {
	snap := snapshot{
		collections: make(map[string][]models.Notification, len(topicIDs)),
		unread:      make(map[string]int),
	}
	for _, topicID := range topicIDs {
		snap.collections[topicID] = models.CloneNotifications(s.collections[topicID])
		if i := s.subIndexLocked(topicID); i >= 0 {
			snap.unread[topicID] = s.subscriptions[i].UnreadCount
		}
	}
	return snap
}

// captureAllLocked snapshots every cached collection and every
// subscription's unread count.
func (s *Service) captureAllLocked() snapshot {
	snap := snapshot{
		collections: make(map[string][]models.Notification, len(s.collections)),
		unread:      make(map[string]int, len(s.subscriptions)),
	}
	for topicID, records := range s.collections {
		snap.collections[topicID] = models.CloneNotifications(records)
	}
	for i := range s.subscriptions {
		snap.unread[s.subscriptions[i].ID] = s.subscriptions[i].UnreadCount
	}
	return snap
}

// restoreLocked puts the snapshotted state back, index included.
func (s *Service) restoreLocked(snap snapshot) {
	for topicID, records := range snap.collections {
		s.setCollectionLocked(topicID, records)
	}
	for topicID, count := range snap.unread {
		if i := s.subIndexLocked(topicID); i >= 0 {
			s.subscriptions[i].UnreadCount = count
		}
	}
}

// markReadLocked flags one notification read.
func (s *Service) markReadLocked(id, topicID string) {
	col := s.collections[topicID]
	for i := range col {
		if col[i].ID == id {
			col[i].Read = true
			return
		}
	}
}

// markTopicReadLocked flags a whole topic read and zeroes the
// subscription's server-reported count so the fallback agrees.
func (s *Service) markTopicReadLocked(topicID string) {
	col := s.collections[topicID]
	for i := range col {
		col[i].Read = true
	}
	if i := s.subIndexLocked(topicID); i >= 0 {
		s.subscriptions[i].UnreadCount = 0
	}
}

// removeLocked deletes one notification from its collection and the
// index.
func (s *Service) removeLocked(id, topicID string) {
	col := s.collections[topicID]
	for i := range col {
		if col[i].ID == id {
			s.collections[topicID] = append(col[:i:i], col[i+1:]...)
			delete(s.index, id)
			return
		}
	}
}

// toggleFavoriteLocked flips the favorite flag and returns the new
// value.
func (s *Service) toggleFavoriteLocked(id, topicID string) bool {
	col := s.collections[topicID]
	for i := range col {
		if col[i].ID == id {
			col[i].Favorite = !col[i].Favorite
			return col[i].Favorite
		}
	}
	return false
}

// setExpandedLocked records the card's expanded state.
func (s *Service) setExpandedLocked(id, topicID string, expanded bool) {
	col := s.collections[topicID]
	for i := range col {
		if col[i].ID == id {
			col[i].Expanded = expanded
			return
		}
	}
}
