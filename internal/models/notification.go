// Package models defines the core domain types for Pushdeck.
package models

// Priority is the urgency level of a notification, from 1 (minimal)
// to 5 (urgent). The zero value is not valid; use ParsePriority when
// converting untrusted input.
type Priority int

const (
	PriorityMin     Priority = 1
	PriorityLow     Priority = 2
	PriorityDefault Priority = 3
	PriorityHigh    Priority = 4
	PriorityMax     Priority = 5
)

// ParsePriority converts a raw integer to a Priority. Out-of-range
// values fall back to PriorityDefault rather than failing, matching
// how relays treat missing or bogus priorities.
func ParsePriority(v int) Priority {
	if v < int(PriorityMin) || v > int(PriorityMax) {
		return PriorityDefault
	}
	return Priority(v)
}

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityMin:
		return "min"
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityMax:
		return "max"
	default:
		return "default"
	}
}

// Notification is a single message received on a topic.
type Notification struct {
	// ID is the unique identifier for the notification.
	ID string `json:"id"`

	// TopicID is the ID of the owning subscription. Immutable.
	TopicID string `json:"topic_id"`

	// RemoteID is the relay-assigned message ID, used to deduplicate
	// messages delivered both by poll and by the live stream. Empty for
	// notifications that never came from a relay.
	RemoteID string `json:"remote_id,omitempty"`

	// Title is the display title. May be empty.
	Title string `json:"title"`

	// Message is the display body.
	Message string `json:"message"`

	// Priority is the urgency level (1-5).
	Priority Priority `json:"priority"`

	// Tags are display tags in the order the relay sent them.
	Tags []string `json:"tags,omitempty"`

	// Timestamp is the creation instant in epoch milliseconds. It is
	// the sole sort key for recency ordering.
	Timestamp int64 `json:"timestamp"`

	// Read reports whether the user has seen the notification.
	Read bool `json:"read"`

	// Favorite reports whether the user has starred the notification.
	Favorite bool `json:"favorite"`

	// Expanded is persisted UI state for the notification card. It is
	// cosmetic and never affects unread or favorite semantics.
	Expanded bool `json:"expanded"`

	// Actions are the action buttons attached at creation.
	Actions []Action `json:"actions,omitempty"`

	// Attachments are the files attached at creation.
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Action is an action button attached to a notification.
type Action struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url,omitempty"`
	Method string `json:"method,omitempty"`
	Clear  bool   `json:"clear,omitempty"`
}

// Attachment is a file attached to a notification.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

// Clone returns a deep copy of the notification. Slices are copied so
// the clone shares no mutable state with the original.
func (n Notification) Clone() Notification {
	out := n
	if n.Tags != nil {
		out.Tags = append([]string(nil), n.Tags...)
	}
	if n.Actions != nil {
		out.Actions = append([]Action(nil), n.Actions...)
	}
	if n.Attachments != nil {
		out.Attachments = append([]Attachment(nil), n.Attachments...)
	}
	return out
}

// CloneNotifications deep-copies a slice of notifications. A nil input
// returns nil.
func CloneNotifications(list []Notification) []Notification {
	if list == nil {
		return nil
	}
	out := make([]Notification, len(list))
	for i, n := range list {
		out[i] = n.Clone()
	}
	return out
}
