package inbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkoenig/pushdeck/internal/models"
)

func TestAllSortsNewestFirstWithStableTies(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 0))
	fake.history["sub-a"] = []models.Notification{
		testNotification("x", "sub-a", 100),
		testNotification("y", "sub-a", 100),
		testNotification("z", "sub-a", 50),
	}
	svc, _ := newTestService(t, fake)
	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))

	first := svc.All()
	require.Len(t, first, 3)
	assert.Equal(t, "z", first[2].ID, "older record must sort last")
	assert.Equal(t, "x", first[0].ID)
	assert.Equal(t, "y", first[1].ID)

	// Ties keep their relative order across repeated reads.
	for i := 0; i < 5; i++ {
		again := svc.All()
		require.Equal(t, first, again)
	}
}

func TestAllMergesTopics(t *testing.T) {
	fake := newFakeBackend(
		testSub("sub-a", "alerts", 0),
		testSub("sub-b", "deploys", 0),
	)
	fake.history["sub-a"] = []models.Notification{
		testNotification("a-new", "sub-a", 400),
		testNotification("a-old", "sub-a", 100),
	}
	fake.history["sub-b"] = []models.Notification{
		testNotification("b-mid", "sub-b", 250),
	}
	svc, _ := newTestService(t, fake)
	require.NoError(t, svc.LoadAll(context.Background()))

	got := svc.All()
	require.Len(t, got, 3)
	assert.Equal(t, "a-new", got[0].ID)
	assert.Equal(t, "b-mid", got[1].ID)
	assert.Equal(t, "a-old", got[2].ID)
}

func TestTotalUnreadExcludesMuted(t *testing.T) {
	muted := testSub("sub-b", "noisy", 5)
	muted.Muted = true
	fake := newFakeBackend(testSub("sub-a", "alerts", 0), muted)
	fake.history["sub-a"] = []models.Notification{
		testNotification("a-1", "sub-a", 100),
		testNotification("a-2", "sub-a", 200),
	}
	svc, _ := newTestService(t, fake)
	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))

	// The muted topic's five unread must not leak into the total.
	require.Equal(t, 2, svc.TotalUnread())

	_, err := svc.ToggleMute(context.Background(), "sub-b")
	require.NoError(t, err)
	require.Equal(t, 7, svc.TotalUnread())
}

func TestUnreadCountPrefersLocalOnceLoaded(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 5))
	read := testNotification("a-1", "sub-a", 100)
	read.Read = true
	fake.history["sub-a"] = []models.Notification{
		read,
		testNotification("a-2", "sub-a", 200),
	}
	svc, _ := newTestService(t, fake)

	// Before loading, the server's count stands in for the unknown
	// local state.
	require.Equal(t, 5, svc.UnreadCount("sub-a"))

	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))
	require.Equal(t, 1, svc.UnreadCount("sub-a"))

	// Unknown topics count as zero.
	require.Equal(t, 0, svc.UnreadCount("sub-missing"))
}

func TestFavoritesAcrossTopics(t *testing.T) {
	fake := newFakeBackend(
		testSub("sub-a", "alerts", 0),
		testSub("sub-b", "deploys", 0),
	)
	starredOld := testNotification("a-old", "sub-a", 100)
	starredOld.Favorite = true
	starredNew := testNotification("b-new", "sub-b", 300)
	starredNew.Favorite = true
	fake.history["sub-a"] = []models.Notification{
		testNotification("a-plain", "sub-a", 200),
		starredOld,
	}
	fake.history["sub-b"] = []models.Notification{starredNew}
	svc, _ := newTestService(t, fake)
	require.NoError(t, svc.LoadAll(context.Background()))

	got := svc.Favorites()
	require.Len(t, got, 2)
	assert.Equal(t, "b-new", got[0].ID)
	assert.Equal(t, "a-old", got[1].ID)
}

func TestForTopicSortsNewestFirst(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 0))
	fake.history["sub-a"] = []models.Notification{
		testNotification("a-old", "sub-a", 100),
		testNotification("a-new", "sub-a", 300),
	}
	svc, _ := newTestService(t, fake)
	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))

	got := svc.ForTopic("sub-a")
	require.Len(t, got, 2)
	assert.Equal(t, "a-new", got[0].ID)
	assert.Equal(t, "a-old", got[1].ID)

	require.Empty(t, svc.ForTopic("sub-missing"))
}

func TestViewsReturnIndependentCopies(t *testing.T) {
	fake := newFakeBackend(testSub("sub-a", "alerts", 0))
	fake.history["sub-a"] = []models.Notification{richNotification()}
	svc, _ := newTestService(t, fake)
	require.NoError(t, svc.LoadTopic(context.Background(), "sub-a"))

	got := svc.All()
	require.Len(t, got, 1)
	got[0].Read = true
	got[0].Tags[0] = "changed"

	fresh := svc.All()
	assert.False(t, fresh[0].Read)
	assert.Equal(t, "tada", fresh[0].Tags[0])
	require.Equal(t, 1, svc.UnreadCount("sub-a"))
}
