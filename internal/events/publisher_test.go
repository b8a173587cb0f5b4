package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkoenig/pushdeck/internal/models"
)

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		event  *models.Event
		want   bool
	}{
		{
			name:   "empty filter matches any event",
			filter: Filter{},
			event: &models.Event{
				Type:    models.EventTypeNotificationNew,
				TopicID: "sub-1",
			},
			want: true,
		},
		{
			name:   "nil event returns false",
			filter: Filter{},
			event:  nil,
			want:   false,
		},
		{
			name: "event type filter matches",
			filter: Filter{
				Types: []models.EventType{models.EventTypeNotificationNew},
			},
			event: &models.Event{
				Type:    models.EventTypeNotificationNew,
				TopicID: "sub-1",
			},
			want: true,
		},
		{
			name: "event type filter rejects non-matching",
			filter: Filter{
				Types: []models.EventType{models.EventTypeNotificationNew},
			},
			event: &models.Event{
				Type: models.EventTypeSubscriptionsResynced,
			},
			want: false,
		},
		{
			name: "multiple event types - matches any",
			filter: Filter{
				Types: []models.EventType{
					models.EventTypeNotificationNew,
					models.EventTypeSubscriptionsResynced,
				},
			},
			event: &models.Event{
				Type: models.EventTypeSubscriptionsResynced,
			},
			want: true,
		},
		{
			name: "topic ID filter matches",
			filter: Filter{
				TopicID: "sub-1",
			},
			event: &models.Event{
				Type:    models.EventTypeNotificationNew,
				TopicID: "sub-1",
			},
			want: true,
		},
		{
			name: "topic ID filter rejects non-matching",
			filter: Filter{
				TopicID: "sub-1",
			},
			event: &models.Event{
				Type:    models.EventTypeNotificationNew,
				TopicID: "sub-2",
			},
			want: false,
		},
		{
			name: "combined filters - all must match",
			filter: Filter{
				Types:   []models.EventType{models.EventTypeNavigateSubscription},
				TopicID: "sub-1",
			},
			event: models.NewNavigateEvent("sub-1"),
			want:  true,
		},
		{
			name: "combined filters - topic mismatch",
			filter: Filter{
				Types:   []models.EventType{models.EventTypeNavigateSubscription},
				TopicID: "sub-1",
			},
			event: models.NewNavigateEvent("sub-2"),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Matches(tt.event)
			if got != tt.want {
				t.Errorf("Filter.Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInMemoryPublisher_Subscribe(t *testing.T) {
	pub := NewInMemoryPublisher()

	handler := func(event *models.Event) {}

	err := pub.Subscribe("sub-1", Filter{}, handler)
	if err != nil {
		t.Errorf("Subscribe() error = %v, want nil", err)
	}

	if pub.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", pub.SubscriberCount())
	}

	// Duplicate subscriber should fail
	err = pub.Subscribe("sub-1", Filter{}, handler)
	if err != ErrSubscriberExists {
		t.Errorf("Subscribe() duplicate error = %v, want %v", err, ErrSubscriberExists)
	}

	// Empty ID should fail
	err = pub.Subscribe("", Filter{}, handler)
	if err != ErrInvalidSubscriberID {
		t.Errorf("Subscribe() empty ID error = %v, want %v", err, ErrInvalidSubscriberID)
	}

	// Nil handler should fail
	err = pub.Subscribe("sub-2", Filter{}, nil)
	if err != ErrNilHandler {
		t.Errorf("Subscribe() nil handler error = %v, want %v", err, ErrNilHandler)
	}
}

func TestInMemoryPublisher_Unsubscribe(t *testing.T) {
	pub := NewInMemoryPublisher()

	handler := func(event *models.Event) {}

	_ = pub.Subscribe("sub-1", Filter{}, handler)

	err := pub.Unsubscribe("sub-1")
	if err != nil {
		t.Errorf("Unsubscribe() error = %v, want nil", err)
	}

	if pub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", pub.SubscriberCount())
	}

	// Unsubscribe non-existent should fail
	err = pub.Unsubscribe("sub-1")
	if err != ErrSubscriberNotFound {
		t.Errorf("Unsubscribe() non-existent error = %v, want %v", err, ErrSubscriberNotFound)
	}
}

func TestInMemoryPublisher_Publish(t *testing.T) {
	pub := NewInMemoryPublisher()

	var received []*models.Event
	var mu sync.Mutex

	handler := func(event *models.Event) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	}

	_ = pub.Subscribe("sub-1", Filter{}, handler)

	event := &models.Event{
		ID:      "event-1",
		Type:    models.EventTypeNotificationNew,
		TopicID: "sub-1",
	}

	pub.Publish(event)

	mu.Lock()
	if len(received) != 1 {
		t.Errorf("received %d events, want 1", len(received))
	}
	if len(received) > 0 && received[0].ID != event.ID {
		t.Errorf("received event ID = %s, want %s", received[0].ID, event.ID)
	}
	mu.Unlock()
}

func TestInMemoryPublisher_PublishWithFilter(t *testing.T) {
	pub := NewInMemoryPublisher()

	var newEvents, resyncEvents int
	var mu sync.Mutex

	_ = pub.Subscribe("new-sub", Filter{
		Types: []models.EventType{models.EventTypeNotificationNew},
	}, func(event *models.Event) {
		mu.Lock()
		newEvents++
		mu.Unlock()
	})

	_ = pub.Subscribe("resync-sub", Filter{
		Types: []models.EventType{models.EventTypeSubscriptionsResynced},
	}, func(event *models.Event) {
		mu.Lock()
		resyncEvents++
		mu.Unlock()
	})

	pub.Publish(&models.Event{
		Type:    models.EventTypeNotificationNew,
		TopicID: "sub-1",
	})

	pub.Publish(&models.Event{
		Type: models.EventTypeSubscriptionsResynced,
	})

	mu.Lock()
	if newEvents != 1 {
		t.Errorf("newEvents = %d, want 1", newEvents)
	}
	if resyncEvents != 1 {
		t.Errorf("resyncEvents = %d, want 1", resyncEvents)
	}
	mu.Unlock()
}

func TestInMemoryPublisher_PublishNilEvent(t *testing.T) {
	pub := NewInMemoryPublisher()

	called := false
	_ = pub.Subscribe("sub-1", Filter{}, func(event *models.Event) {
		called = true
	})

	pub.Publish(nil)

	if called {
		t.Error("handler was called for nil event")
	}
}

func TestInMemoryPublisher_PublishOrder(t *testing.T) {
	pub := NewInMemoryPublisher()

	var got []string
	_ = pub.Subscribe("sub-1", Filter{}, func(event *models.Event) {
		got = append(got, event.ID)
	})

	for _, id := range []string{"e1", "e2", "e3"} {
		pub.Publish(&models.Event{ID: id, Type: models.EventTypeNotificationNew})
	}

	want := []string{"e1", "e2", "e3"}
	if len(got) != len(want) {
		t.Fatalf("received %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestInMemoryPublisher_Close(t *testing.T) {
	pub := NewInMemoryPublisher()

	_ = pub.Subscribe("sub-1", Filter{}, func(event *models.Event) {})
	_ = pub.Subscribe("sub-2", Filter{}, func(event *models.Event) {})

	if pub.SubscriberCount() != 2 {
		t.Errorf("SubscriberCount() before Close = %d, want 2", pub.SubscriberCount())
	}

	pub.Close()

	if pub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() after Close = %d, want 0", pub.SubscriberCount())
	}

	err := pub.Subscribe("sub-3", Filter{}, func(event *models.Event) {})
	if err != ErrPublisherClosed {
		t.Errorf("Subscribe() after Close error = %v, want %v", err, ErrPublisherClosed)
	}
}

func TestInMemoryPublisher_ConcurrentAccess(t *testing.T) {
	pub := NewInMemoryPublisher()

	var wg sync.WaitGroup
	var count int64

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			subID := "sub-" + string(rune('a'+id))
			_ = pub.Subscribe(subID, Filter{}, func(event *models.Event) {
				atomic.AddInt64(&count, 1)
			})
		}(i)
	}

	wg.Wait()

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Publish(&models.Event{
				Type:    models.EventTypeNotificationNew,
				TopicID: "sub-1",
			})
		}()
	}

	wg.Wait()

	expected := int64(10 * 100)
	if atomic.LoadInt64(&count) != expected {
		t.Errorf("count = %d, want %d", count, expected)
	}
}
