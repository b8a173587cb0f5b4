package inbox

import (
	"sort"

	"github.com/pkoenig/pushdeck/internal/models"
)

// UnreadCount returns the unread count for one topic. While the topic
// is unloaded the subscription's server-reported count is used, so a
// topic with unseen history never shows zero just because nothing is
// cached yet.
func (s *Service) UnreadCount(topicID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadLocked(topicID)
}

// TotalUnread returns the unread count across all topics. Muted
// subscriptions are left out entirely.
func (s *Service) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for i := range s.subscriptions {
		if s.subscriptions[i].Muted {
			continue
		}
		total += s.unreadLocked(s.subscriptions[i].ID)
	}
	return total
}

// All returns every cached notification, newest first.
func (s *Service) All() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Notification, 0, len(s.index))
	for _, topicID := range s.orderedTopicsLocked() {
		for _, n := range s.collections[topicID] {
			out = append(out, n.Clone())
		}
	}
	sortByRecency(out)
	return out
}

// Favorites returns every starred notification, newest first.
func (s *Service) Favorites() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Notification
	for _, topicID := range s.orderedTopicsLocked() {
		for _, n := range s.collections[topicID] {
			if n.Favorite {
				out = append(out, n.Clone())
			}
		}
	}
	sortByRecency(out)
	return out
}

// ForTopic returns one topic's cached notifications, newest first.
func (s *Service) ForTopic(topicID string) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := models.CloneNotifications(s.collections[topicID])
	sortByRecency(out)
	return out
}

func (s *Service) unreadLocked(topicID string) int {
	if _, done := s.loaded[topicID]; !done {
		if i := s.subIndexLocked(topicID); i >= 0 {
			return s.subscriptions[i].UnreadCount
		}
	}
	count := 0
	for _, n := range s.collections[topicID] {
		if !n.Read {
			count++
		}
	}
	return count
}

// orderedTopicsLocked returns collection keys in a stable order:
// subscription list order first, then any remaining topics sorted by
// id. Map iteration order must never leak into view output.
func (s *Service) orderedTopicsLocked() []string {
	topics := make([]string, 0, len(s.collections))
	seen := make(map[string]struct{}, len(s.collections))
	for i := range s.subscriptions {
		id := s.subscriptions[i].ID
		if _, ok := s.collections[id]; ok {
			topics = append(topics, id)
			seen[id] = struct{}{}
		}
	}
	var rest []string
	for id := range s.collections {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(topics, rest...)
}

// sortByRecency orders newest first. The sort is stable so equal
// timestamps keep their collection order and repeated calls agree.
func sortByRecency(list []models.Notification) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp > list[j].Timestamp
	})
}
