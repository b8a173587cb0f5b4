package models

import (
	"errors"
	"fmt"
	"net/url"
)

// Validation errors for subscription and server input.
var (
	ErrInvalidTopic     = errors.New("topic must be 1-64 characters of letters, digits, - or _")
	ErrInvalidServerURL = errors.New("server URL must be a valid http or https URL")
)

const maxTopicLength = 64

// ValidateTopic checks that a topic name is acceptable to a relay.
func ValidateTopic(topic string) error {
	if topic == "" || len(topic) > maxTopicLength {
		return ErrInvalidTopic
	}
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return ErrInvalidTopic
		}
	}
	return nil
}

// ValidateServerURL checks that a server URL is usable as a relay base
// URL. The URL is normalized before checking, so a trailing slash is
// fine.
func ValidateServerURL(raw string) error {
	normalized := NormalizeURL(raw)
	if normalized == "" {
		return ErrInvalidServerURL
	}
	parsed, err := url.Parse(normalized)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidServerURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidServerURL
	}
	if parsed.Host == "" {
		return ErrInvalidServerURL
	}
	return nil
}

// ValidateSubscription checks the fields required to create a
// subscription.
func ValidateSubscription(topic, serverURL string) error {
	validation := &ValidationErrors{}
	validation.Add("topic", ValidateTopic(topic))
	validation.Add("server_url", ValidateServerURL(serverURL))
	return validation.Err()
}
