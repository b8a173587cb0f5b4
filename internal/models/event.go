package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes events on the push channel.
type EventType string

const (
	// EventTypeNotificationNew announces a newly received notification.
	// The payload is the Notification itself.
	EventTypeNotificationNew EventType = "notification.new"

	// EventTypeSubscriptionsResynced announces that the subscription set
	// changed behind the cache's back, e.g. after an account sync.
	// Consumers should re-fetch the subscription list.
	EventTypeSubscriptionsResynced EventType = "subscriptions.resynced"

	// EventTypeNavigateSubscription asks the UI layer to focus a
	// subscription. TopicID names the target.
	EventTypeNavigateSubscription EventType = "navigate.subscription"

	// EventTypeAlertRaised carries a user-facing failure notice, raised
	// when an optimistic mutation had to be rolled back. The payload is
	// an AlertPayload.
	EventTypeAlertRaised EventType = "alert.raised"
)

// Event is a single message on the push channel.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// TopicID is the ID of the related subscription, when the event
	// concerns exactly one.
	TopicID string `json:"topic_id,omitempty"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// CreatedAt is when the event was published.
	CreatedAt time.Time `json:"created_at"`
}

// AlertPayload is the payload for alert.raised events.
type AlertPayload struct {
	// Action names what failed, e.g. "mark notification as read".
	Action string `json:"action"`

	// Message is the user-facing text, e.g. "Failed to mark
	// notification as read".
	Message string `json:"message"`
}

// NewNotificationEvent wraps a received notification for publishing.
func NewNotificationEvent(n Notification) (*Event, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification payload: %w", err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventTypeNotificationNew,
		TopicID:   n.TopicID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}, nil
}

// NewResyncEvent announces that the subscription set changed.
func NewResyncEvent() *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventTypeSubscriptionsResynced,
		CreatedAt: time.Now(),
	}
}

// NewNavigateEvent asks the UI to focus a subscription.
func NewNavigateEvent(topicID string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventTypeNavigateSubscription,
		TopicID:   topicID,
		CreatedAt: time.Now(),
	}
}

// NewAlertEvent carries a user-facing failure notice.
func NewAlertEvent(topicID string, alert AlertPayload) (*Event, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alert payload: %w", err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventTypeAlertRaised,
		TopicID:   topicID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}, nil
}

// Notification decodes the payload of a notification.new event.
func (e Event) Notification() (Notification, error) {
	if e.Type != EventTypeNotificationNew {
		return Notification{}, fmt.Errorf("event type %q carries no notification", e.Type)
	}
	var n Notification
	if err := json.Unmarshal(e.Payload, &n); err != nil {
		return Notification{}, fmt.Errorf("failed to decode notification payload: %w", err)
	}
	return n, nil
}

// Alert decodes the payload of an alert.raised event.
func (e Event) Alert() (AlertPayload, error) {
	if e.Type != EventTypeAlertRaised {
		return AlertPayload{}, fmt.Errorf("event type %q carries no alert", e.Type)
	}
	var a AlertPayload
	if err := json.Unmarshal(e.Payload, &a); err != nil {
		return AlertPayload{}, fmt.Errorf("failed to decode alert payload: %w", err)
	}
	return a, nil
}
