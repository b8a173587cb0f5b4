package models

import "testing"

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   int
		want Priority
	}{
		{1, PriorityMin},
		{2, PriorityLow},
		{3, PriorityDefault},
		{4, PriorityHigh},
		{5, PriorityMax},
		{0, PriorityDefault},
		{-1, PriorityDefault},
		{6, PriorityDefault},
		{99, PriorityDefault},
	}

	for _, tt := range tests {
		if got := ParsePriority(tt.in); got != tt.want {
			t.Fatalf("ParsePriority(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNotificationCloneIsDeep(t *testing.T) {
	original := Notification{
		ID:          "n1",
		TopicID:     "sub-1",
		Title:       "deploy",
		Message:     "done",
		Priority:    PriorityHigh,
		Tags:        []string{"ok", "ship"},
		Timestamp:   1700000000000,
		Actions:     []Action{{ID: "a1", Action: "view", Label: "Open", URL: "https://example.com"}},
		Attachments: []Attachment{{ID: "f1", Name: "log.txt", Type: "text/plain", URL: "https://example.com/log.txt", Size: 42}},
	}

	clone := original.Clone()
	clone.Tags[0] = "changed"
	clone.Actions[0].Label = "changed"
	clone.Attachments[0].Name = "changed"

	if original.Tags[0] != "ok" {
		t.Fatalf("clone shares tags with original")
	}
	if original.Actions[0].Label != "Open" {
		t.Fatalf("clone shares actions with original")
	}
	if original.Attachments[0].Name != "log.txt" {
		t.Fatalf("clone shares attachments with original")
	}
}

func TestCloneNotificationsNil(t *testing.T) {
	if got := CloneNotifications(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://ntfy.sh", "https://ntfy.sh"},
		{"https://ntfy.sh/", "https://ntfy.sh"},
		{"https://ntfy.sh///", "https://ntfy.sh"},
		{"  https://ntfy.sh/ ", "https://ntfy.sh"},
	}

	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if !URLsMatch("https://ntfy.sh/", "https://ntfy.sh") {
		t.Fatal("expected URLs to match")
	}
}

func TestSubscriptionName(t *testing.T) {
	sub := Subscription{Topic: "alerts"}
	if sub.Name() != "alerts" {
		t.Fatalf("expected topic fallback, got %q", sub.Name())
	}
	sub.DisplayName = "Production alerts"
	if sub.Name() != "Production alerts" {
		t.Fatalf("expected display name, got %q", sub.Name())
	}
}
