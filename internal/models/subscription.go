package models

import "strings"

// Subscription binds the client to a topic on a relay server.
type Subscription struct {
	// ID is the unique identifier for the subscription. It is also the
	// partition key for cached notifications (Notification.TopicID).
	ID string `json:"id"`

	// Topic is the relay topic name.
	Topic string `json:"topic"`

	// ServerURL is the base URL of the relay hosting the topic, stored
	// without a trailing slash.
	ServerURL string `json:"server_url"`

	// DisplayName is an optional human-friendly name. Empty means the
	// topic name is displayed.
	DisplayName string `json:"display_name,omitempty"`

	// Muted excludes the subscription from global unread totals.
	Muted bool `json:"muted"`

	// UnreadCount is the server-reported unread count. It is the
	// fallback shown while the topic's notifications are not cached
	// locally; once cached, the locally computed count wins.
	UnreadCount int `json:"unread_count"`

	// LastSync is the poll cursor in epoch seconds. Zero means the
	// topic has never been polled.
	LastSync int64 `json:"last_sync,omitempty"`
}

// Name returns the display name, falling back to the topic.
func (s Subscription) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Topic
}

// ServerMatches reports whether the subscription lives on the given
// server URL, ignoring trailing slashes.
func (s Subscription) ServerMatches(url string) bool {
	return URLsMatch(s.ServerURL, url)
}

// Clone returns a copy of the subscription.
func (s Subscription) Clone() Subscription {
	return s
}

// CloneSubscriptions copies a slice of subscriptions. A nil input
// returns nil.
func CloneSubscriptions(list []Subscription) []Subscription {
	if list == nil {
		return nil
	}
	out := make([]Subscription, len(list))
	copy(out, list)
	return out
}

// Server is a relay server the client knows about. Credentials are
// never stored on this type; they live in the OS keyring keyed by the
// normalized URL.
type Server struct {
	// ID is the unique identifier for the server.
	ID string `json:"id"`

	// URL is the base URL, stored without a trailing slash.
	URL string `json:"url"`

	// IsDefault marks the server new subscriptions default to.
	IsDefault bool `json:"is_default"`
}

// URLMatches reports whether the server has the given base URL,
// ignoring trailing slashes.
func (s Server) URLMatches(url string) bool {
	return URLsMatch(s.URL, url)
}

// NormalizeURL strips surrounding whitespace and trailing slashes so
// "https://ntfy.sh" and "https://ntfy.sh/" compare equal.
func NormalizeURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

// URLsMatch reports whether two URLs are equal after normalization.
func URLsMatch(a, b string) bool {
	return NormalizeURL(a) == NormalizeURL(b)
}
