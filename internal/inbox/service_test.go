package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pkoenig/pushdeck/internal/backend"
	"github.com/pkoenig/pushdeck/internal/events"
	"github.com/pkoenig/pushdeck/internal/models"
)

// fakeBackend is a scriptable backend.API. Tests poke its fields under
// mu to stage histories and failures.
type fakeBackend struct {
	mu sync.Mutex

	history map[string][]models.Notification
	subs    []models.Subscription

	fetches   map[string]int
	fetchGate chan struct{}
	fetchErr  map[string]error

	// callGate, when set, blocks mutation commands until closed so
	// tests can observe optimistic state before the backend answers.
	callGate chan struct{}

	markReadErr  error
	topicReadErr map[string]error
	deleteErr    error
	favoriteErr  error
	expandedErr  error

	calls []string
}

func newFakeBackend(subs ...models.Subscription) *fakeBackend {
	return &fakeBackend{
		history:      make(map[string][]models.Notification),
		subs:         subs,
		fetches:      make(map[string]int),
		fetchErr:     make(map[string]error),
		topicReadErr: make(map[string]error),
	}
}

func (f *fakeBackend) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// callCount counts recorded backend calls whose description starts
// with prefix.
func (f *fakeBackend) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeBackend) fetchCount(topicID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[topicID]
}

func (f *fakeBackend) Notifications(ctx context.Context, topicID string) ([]models.Notification, error) {
	f.mu.Lock()
	f.fetches[topicID]++
	gate := f.fetchGate
	err := f.fetchErr[topicID]
	records := models.CloneNotifications(f.history[topicID])
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (f *fakeBackend) awaitGate(gate chan struct{}) {
	if gate != nil {
		<-gate
	}
}

func (f *fakeBackend) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	f.record("mark-read %s", id)
	gate, err := f.callGate, f.markReadErr
	f.mu.Unlock()
	f.awaitGate(gate)
	return err
}

func (f *fakeBackend) MarkTopicRead(ctx context.Context, topicID string) error {
	f.mu.Lock()
	f.record("topic-read %s", topicID)
	gate, err := f.callGate, f.topicReadErr[topicID]
	f.mu.Unlock()
	f.awaitGate(gate)
	return err
}

func (f *fakeBackend) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	f.record("delete %s", id)
	gate, err := f.callGate, f.deleteErr
	f.mu.Unlock()
	f.awaitGate(gate)
	return err
}

func (f *fakeBackend) SetFavorite(ctx context.Context, id string, favorite bool) error {
	f.mu.Lock()
	f.record("favorite %s %t", id, favorite)
	gate, err := f.callGate, f.favoriteErr
	f.mu.Unlock()
	f.awaitGate(gate)
	return err
}

func (f *fakeBackend) SetExpanded(ctx context.Context, id string, expanded bool) error {
	f.mu.Lock()
	f.record("expanded %s %t", id, expanded)
	gate, err := f.callGate, f.expandedErr
	f.mu.Unlock()
	f.awaitGate(gate)
	return err
}

func (f *fakeBackend) Subscriptions(ctx context.Context) ([]models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.CloneSubscriptions(f.subs), nil
}

func (f *fakeBackend) AddSubscription(ctx context.Context, params backend.AddSubscriptionParams) (models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := models.Subscription{
		ID:        "sub-" + params.Topic,
		Topic:     params.Topic,
		ServerURL: "https://ntfy.example.com",
	}
	f.subs = append(f.subs, sub)
	f.record("add-subscription %s", params.Topic)
	return sub, nil
}

func (f *fakeBackend) RemoveSubscription(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.subs {
		if f.subs[i].ID == id {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			break
		}
	}
	f.record("remove-subscription %s", id)
	return nil
}

func (f *fakeBackend) ToggleMute(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.subs {
		if f.subs[i].ID == id {
			f.subs[i].Muted = !f.subs[i].Muted
			f.record("toggle-mute %s", id)
			return f.subs[i].Muted, nil
		}
	}
	return false, errors.New("subscription not found")
}

func testSub(id, topic string, unread int) models.Subscription {
	return models.Subscription{
		ID:          id,
		Topic:       topic,
		ServerURL:   "https://ntfy.example.com",
		UnreadCount: unread,
	}
}

func testNotification(id, topicID string, ts int64) models.Notification {
	return models.Notification{
		ID:        id,
		TopicID:   topicID,
		Title:     "Title " + id,
		Message:   "Message " + id,
		Priority:  models.PriorityDefault,
		Timestamp: ts,
	}
}

// gateCalls holds mutation commands open until the returned release
// function runs.
func gateCalls(fake *fakeBackend) func() {
	fake.mu.Lock()
	fake.callGate = make(chan struct{})
	fake.mu.Unlock()
	return func() {
		fake.mu.Lock()
		close(fake.callGate)
		fake.callGate = nil
		fake.mu.Unlock()
	}
}

func newTestService(t *testing.T, fake *fakeBackend) (*Service, *events.InMemoryPublisher) {
	t.Helper()

	publisher := events.NewInMemoryPublisher()
	t.Cleanup(publisher.Close)

	svc, err := New(context.Background(), Options{Backend: fake, Publisher: publisher})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return svc, publisher
}

// collectAlerts captures alert.raised payloads published while a test
// runs.
func collectAlerts(t *testing.T, publisher *events.InMemoryPublisher) func() []models.AlertPayload {
	t.Helper()

	var mu sync.Mutex
	var alerts []models.AlertPayload
	filter := events.Filter{Types: []models.EventType{models.EventTypeAlertRaised}}
	err := publisher.Subscribe("test-alerts", filter, func(e *models.Event) {
		payload, err := e.Alert()
		if err != nil {
			return
		}
		mu.Lock()
		alerts = append(alerts, payload)
		mu.Unlock()
	})
	require.NoError(t, err)

	return func() []models.AlertPayload {
		mu.Lock()
		defer mu.Unlock()
		return append([]models.AlertPayload(nil), alerts...)
	}
}

func publishNotification(t *testing.T, publisher *events.InMemoryPublisher, n models.Notification) {
	t.Helper()
	event, err := models.NewNotificationEvent(n)
	require.NoError(t, err)
	publisher.Publish(event)
}

// requireIndexConsistent checks that the id index and the collections
// describe exactly the same records.
func requireIndexConsistent(t *testing.T, svc *Service) {
	t.Helper()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	total := 0
	for topicID, col := range svc.collections {
		for _, n := range col {
			total++
			got, ok := svc.index[n.ID]
			require.True(t, ok, "notification %s has no index entry", n.ID)
			require.Equal(t, topicID, got, "index entry for %s points at the wrong topic", n.ID)
		}
	}
	require.Len(t, svc.index, total, "index holds entries for records that no collection contains")
}

func TestLoadTopicReplacesCollection(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 2))
	fake.history["sub-a"] = []models.Notification{
		testNotification("a-2", "sub-a", 200),
		testNotification("a-1", "sub-a", 100),
	}
	svc, publisher := newTestService(t, fake)

	// A push arrives before the topic is ever loaded.
	publishNotification(t, publisher, testNotification("a-live", "sub-a", 300))
	require.Len(t, svc.ForTopic("sub-a"), 1)
	require.False(t, svc.Loaded("sub-a"))

	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))

	require.True(t, svc.Loaded("sub-a"))
	got := svc.ForTopic("sub-a")
	require.Len(t, got, 2)
	require.Equal(t, "a-2", got[0].ID)
	require.Equal(t, "a-1", got[1].ID)
	requireIndexConsistent(t, svc)

	// The replaced push record must be gone from the index too.
	require.NoError(t, <-svc.MarkRead("a-live"))
	require.Equal(t, 0, fake.callCount("mark-read"))
}

func TestLoadTopicConcurrentFetchesOnce(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 0))
	fake.history["sub-a"] = []models.Notification{testNotification("a-1", "sub-a", 100)}
	svc, _ := newTestService(t, fake)

	fake.mu.Lock()
	fake.fetchGate = make(chan struct{})
	fake.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- svc.LoadTopic(context.Background(), "sub-a")
	}()
	require.Eventually(t, func() bool {
		return fake.fetchCount("sub-a") == 1
	}, time.Second, 5*time.Millisecond)

	// Second load while the first fetch is still in flight returns
	// immediately without another fetch.
	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))

	fake.mu.Lock()
	close(fake.fetchGate)
	fake.fetchGate = nil
	fake.mu.Unlock()

	require.NoError(t, <-done)
	require.Equal(t, 1, fake.fetchCount("sub-a"))

	// A load after completion is a no-op as well.
	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))
	require.Equal(t, 1, fake.fetchCount("sub-a"))
}

func TestLoadTopicFailureClearsMarkForRetry(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 1))
	fake.history["sub-a"] = []models.Notification{testNotification("a-1", "sub-a", 100)}
	fake.mu.Lock()
	fake.fetchErr["sub-a"] = errors.New("store offline")
	fake.mu.Unlock()
	svc, _ := newTestService(t, fake)

	err := svc.LoadTopic(context.Background(), "sub-a")
	require.Error(t, err)
	require.False(t, svc.Loaded("sub-a"))

	// The fallback count stays authoritative while the load has failed.
	require.Equal(t, 1, svc.UnreadCount("sub-a"))

	fake.mu.Lock()
	delete(fake.fetchErr, "sub-a")
	fake.mu.Unlock()

	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))
	require.True(t, svc.Loaded("sub-a"))
	require.Equal(t, 2, fake.fetchCount("sub-a"))
}

func TestLoadAllCollectsPerTopicFailures(t *testing.T) {
	fake := newFakeBackend(
		testSub("sub-a", "alerts", 0),
		testSub("sub-b", "deploys", 0),
	)
	fake.history["sub-a"] = []models.Notification{testNotification("a-1", "sub-a", 100)}
	fake.mu.Lock()
	fake.fetchErr["sub-b"] = errors.New("store offline")
	fake.mu.Unlock()
	svc, _ := newTestService(t, fake)

	err := svc.LoadAll(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sub-b")

	require.True(t, svc.Loaded("sub-a"))
	require.False(t, svc.Loaded("sub-b"))
	require.Len(t, svc.ForTopic("sub-a"), 1)
}

func TestInsertDoesNotMarkLoaded(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 5))
	svc, publisher := newTestService(t, fake)

	publishNotification(t, publisher, testNotification("a-live", "sub-a", 300))

	require.False(t, svc.Loaded("sub-a"))
	require.Len(t, svc.ForTopic("sub-a"), 1)
	// Unloaded topics keep reporting the server's count.
	require.Equal(t, 5, svc.UnreadCount("sub-a"))
	requireIndexConsistent(t, svc)
}

func TestResyncRefreshesSubscriptionsOnly(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 0))
	fake.history["sub-a"] = []models.Notification{testNotification("a-1", "sub-a", 100)}
	svc, publisher := newTestService(t, fake)

	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))

	fake.mu.Lock()
	fake.subs = append(fake.subs, testSub("sub-b", "deploys", 3))
	fake.mu.Unlock()

	publisher.Publish(models.NewResyncEvent())

	require.Eventually(t, func() bool {
		return len(svc.Subscriptions()) == 2
	}, time.Second, 5*time.Millisecond)

	// The refresh must not throw away loaded collections.
	require.True(t, svc.Loaded("sub-a"))
	require.Len(t, svc.ForTopic("sub-a"), 1)
	require.Equal(t, 1, fake.fetchCount("sub-a"))
}

func TestRemoveSubscriptionClearsTopic(t *testing.T) {
	fake := newFakeBackend(
		testSub("sub-a", "alerts", 0),
		testSub("sub-b", "deploys", 0),
	)
	fake.history["sub-a"] = []models.Notification{
		testNotification("a-1", "sub-a", 100),
		testNotification("a-2", "sub-a", 200),
	}
	fake.history["sub-b"] = []models.Notification{testNotification("b-1", "sub-b", 150)}
	svc, _ := newTestService(t, fake)

	require.NoError(t, svc.LoadAll(context.Background()))
	require.Len(t, svc.All(), 3)

	require.NoError(t, svc.RemoveSubscription(context.Background(), "sub-a"))

	require.Empty(t, svc.ForTopic("sub-a"))
	require.False(t, svc.Loaded("sub-a"))
	require.Len(t, svc.All(), 1)
	require.Len(t, svc.Subscriptions(), 1)
	requireIndexConsistent(t, svc)

	// Mutating a cleared record is a local no-op.
	require.NoError(t, <-svc.MarkRead("a-1"))
	require.Equal(t, 0, fake.callCount("mark-read"))
}

func TestAddSubscriptionLoadsTopic(t *testing.T) {
	fake := newFakeBackend()
	svc, _ := newTestService(t, fake)

	sub, err := svc.AddSubscription(context.Background(), backend.AddSubscriptionParams{Topic: "alerts"})
	require.NoError(t, err)
	require.Equal(t, "sub-alerts", sub.ID)

	require.Len(t, svc.Subscriptions(), 1)
	require.True(t, svc.Loaded("sub-alerts"))
	require.Equal(t, 1, fake.fetchCount("sub-alerts"))
}

func TestToggleMuteUpdatesCachedSubscription(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 0))
	svc, _ := newTestService(t, fake)

	muted, err := svc.ToggleMute(context.Background(), "sub-a")
	require.NoError(t, err)
	require.True(t, muted)

	sub, ok := svc.Subscription("sub-a")
	require.True(t, ok)
	require.True(t, sub.Muted)
}

func TestIndexConsistencyAcrossInterleavings(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 0))
	fake.history["sub-a"] = []models.Notification{
		testNotification("a-2", "sub-a", 200),
		testNotification("a-3", "sub-a", 300),
	}
	svc, publisher := newTestService(t, fake)

	publishNotification(t, publisher, testNotification("a-1", "sub-a", 100))
	requireIndexConsistent(t, svc)

	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))
	requireIndexConsistent(t, svc)

	publishNotification(t, publisher, testNotification("a-4", "sub-a", 400))
	requireIndexConsistent(t, svc)

	require.NoError(t, <-svc.Delete("a-2"))
	requireIndexConsistent(t, svc)

	require.NoError(t, <-svc.ToggleFavorite("a-4"))
	requireIndexConsistent(t, svc)

	require.NoError(t, svc.RemoveSubscription(context.Background(), "sub-a"))
	requireIndexConsistent(t, svc)
	require.Empty(t, svc.All())
}

func TestCloseIgnoresInFlightLoad(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 0))
	fake.history["sub-a"] = []models.Notification{testNotification("a-1", "sub-a", 100)}

	publisher := events.NewInMemoryPublisher()
	t.Cleanup(publisher.Close)
	svc, err := New(context.Background(), Options{Backend: fake, Publisher: publisher})
	require.NoError(t, err)

	fake.mu.Lock()
	fake.fetchGate = make(chan struct{})
	fake.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- svc.LoadTopic(context.Background(), "sub-a")
	}()
	require.Eventually(t, func() bool {
		return fake.fetchCount("sub-a") == 1
	}, time.Second, 5*time.Millisecond)

	svc.Close()

	fake.mu.Lock()
	close(fake.fetchGate)
	fake.fetchGate = nil
	fake.mu.Unlock()

	// The late result is dropped, not installed.
	require.NoError(t, <-done)
	require.Empty(t, svc.ForTopic("sub-a"))
}

func TestOperationsAfterCloseAreNoOps(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 0))
	fake.history["sub-a"] = []models.Notification{testNotification("a-1", "sub-a", 100)}

	publisher := events.NewInMemoryPublisher()
	t.Cleanup(publisher.Close)
	svc, err := New(context.Background(), Options{Backend: fake, Publisher: publisher})
	require.NoError(t, err)
	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))

	svc.Close()
	svc.Close() // second close is safe

	require.NoError(t, <-svc.MarkRead("a-1"))
	require.NoError(t, <-svc.MarkAllRead())
	require.NoError(t, <-svc.Delete("a-1"))
	require.Equal(t, 0, fake.callCount("mark-read"))
	require.Equal(t, 0, fake.callCount("topic-read"))
	require.Equal(t, 0, fake.callCount("delete"))
}
