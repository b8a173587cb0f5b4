// Package relay speaks the ntfy wire protocol: polling topics over
// HTTP, holding live websocket subscriptions, and reading account
// state from the server.
package relay

import (
	"github.com/google/uuid"

	"github.com/pkoenig/pushdeck/internal/models"
)

// Wire event types. Only message events carry notification payloads,
// the rest are connection chatter.
const (
	EventOpen        = "open"
	EventMessage     = "message"
	EventKeepalive   = "keepalive"
	EventPollRequest = "poll_request"
)

// Message is a single event as the server sends it, one JSON object
// per line over poll responses and websocket frames.
type Message struct {
	ID         string             `json:"id"`
	Time       int64              `json:"time"`
	Event      string             `json:"event"`
	Topic      string             `json:"topic"`
	Title      string             `json:"title,omitempty"`
	Message    string             `json:"message,omitempty"`
	Priority   int                `json:"priority,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
	Click      string             `json:"click,omitempty"`
	Actions    []MessageAction    `json:"actions,omitempty"`
	Attachment *MessageAttachment `json:"attachment,omitempty"`
}

// MessageAction is an interactive button attached to a message.
type MessageAction struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url,omitempty"`
	Method string `json:"method,omitempty"`
	Clear  bool   `json:"clear,omitempty"`
}

// MessageAttachment is a file the server holds for a message.
type MessageAttachment struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url"`
}

// ToNotification converts a wire message into a stored notification
// for the given subscription. The server reports time in seconds and
// leaves priority unset for the default level.
func (m Message) ToNotification(topicID string) models.Notification {
	n := models.Notification{
		ID:        uuid.NewString(),
		TopicID:   topicID,
		RemoteID:  m.ID,
		Title:     m.Title,
		Message:   m.Message,
		Priority:  models.ParsePriority(m.Priority),
		Tags:      append([]string(nil), m.Tags...),
		Timestamp: m.Time * 1000,
	}

	for _, a := range m.Actions {
		n.Actions = append(n.Actions, models.Action{
			ID:     a.ID,
			Action: a.Action,
			Label:  a.Label,
			URL:    a.URL,
			Method: a.Method,
			Clear:  a.Clear,
		})
	}

	if m.Attachment != nil {
		attachmentType := m.Attachment.Type
		if attachmentType == "" {
			attachmentType = "application/octet-stream"
		}
		n.Attachments = []models.Attachment{{
			ID:   uuid.NewString(),
			Name: m.Attachment.Name,
			Type: attachmentType,
			URL:  m.Attachment.URL,
			Size: m.Attachment.Size,
		}}
	}

	return n
}

// Account is the server-side account state, including the topics
// subscribed to from other devices.
type Account struct {
	Username      string                `json:"username"`
	Subscriptions []AccountSubscription `json:"subscriptions"`
}

// AccountSubscription is a topic the account follows on some server.
type AccountSubscription struct {
	BaseURL     string `json:"base_url"`
	Topic       string `json:"topic"`
	DisplayName string `json:"display_name,omitempty"`
}
