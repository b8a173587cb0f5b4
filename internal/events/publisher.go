// Package events provides the in-process push-event channel for Pushdeck.
package events

import (
	"sync"

	"github.com/pkoenig/pushdeck/internal/models"
)

// EventHandler is a callback function invoked when an event matches a
// subscriber's filter. Handlers for one subscriber are invoked in
// publish order; a handler must not block for long.
type EventHandler func(event *models.Event)

// Filter defines criteria for matching events.
type Filter struct {
	// Types filters by event type (nil = all types).
	Types []models.EventType

	// TopicID filters to events about a specific subscription (empty = all).
	TopicID string
}

// Matches returns true if the event matches the filter criteria.
func (f *Filter) Matches(event *models.Event) bool {
	if event == nil {
		return false
	}

	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.TopicID != "" && event.TopicID != f.TopicID {
		return false
	}

	return true
}

// subscriber represents an active event subscriber.
type subscriber struct {
	id      string
	filter  Filter
	handler EventHandler
}

// Publisher defines the interface for event publishing and subscription.
type Publisher interface {
	// Publish sends an event to all matching subscribers.
	Publish(event *models.Event)

	// Subscribe registers a handler to receive events matching the filter.
	Subscribe(subscriberID string, filter Filter, handler EventHandler) error

	// Unsubscribe removes a subscriber by ID.
	Unsubscribe(subscriberID string) error

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// InMemoryPublisher implements Publisher using in-process pub/sub.
type InMemoryPublisher struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
}

// NewInMemoryPublisher creates a new in-memory event publisher.
func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{
		subscribers: make(map[string]*subscriber),
	}
}

// Publish sends an event to all matching subscribers. Handlers are
// invoked synchronously so subscribers observe events in the order
// they were published.
func (p *InMemoryPublisher) Publish(event *models.Event) {
	if event == nil {
		return
	}

	// Collect matching handlers under the read lock
	p.mu.RLock()
	var handlers []EventHandler
	for _, sub := range p.subscribers {
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	p.mu.RUnlock()

	// Invoke handlers outside the lock to avoid deadlocks
	for _, handler := range handlers {
		handler(event)
	}
}

// Subscribe registers a handler to receive events matching the filter.
func (p *InMemoryPublisher) Subscribe(subscriberID string, filter Filter, handler EventHandler) error {
	if subscriberID == "" {
		return ErrInvalidSubscriberID
	}
	if handler == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}

	if _, exists := p.subscribers[subscriberID]; exists {
		return ErrSubscriberExists
	}

	p.subscribers[subscriberID] = &subscriber{
		id:      subscriberID,
		filter:  filter,
		handler: handler,
	}

	return nil
}

// Unsubscribe removes a subscriber by ID.
func (p *InMemoryPublisher) Unsubscribe(subscriberID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscribers[subscriberID]; !exists {
		return ErrSubscriberNotFound
	}

	delete(p.subscribers, subscriberID)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// Close removes all subscribers and rejects further Subscribe calls.
// Events published after Close are dropped.
func (p *InMemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.subscribers = make(map[string]*subscriber)
}

// Errors for publisher operations.
var (
	ErrInvalidSubscriberID = &PublisherError{Message: "subscriber ID is required"}
	ErrNilHandler          = &PublisherError{Message: "handler cannot be nil"}
	ErrSubscriberExists    = &PublisherError{Message: "subscriber with this ID already exists"}
	ErrSubscriberNotFound  = &PublisherError{Message: "subscriber not found"}
	ErrPublisherClosed     = &PublisherError{Message: "publisher is closed"}
)

// PublisherError represents an error from publisher operations.
type PublisherError struct {
	Message string
}

func (e *PublisherError) Error() string {
	return e.Message
}
