package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuesync/config"
	"queuesync/model"
	"queuesync/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		QueueChannel:          "queue:changes",
		QueueCacheSize:        100,
		QueueCacheTTL:         5 * time.Minute,
		NotifierRetryDelay:    5 * time.Second,
		NotifierMaxRetryDelay: 60 * time.Second,
		NotifierLiveness:      30 * time.Second,
	}
}

type serviceFixture struct {
	store     *memQueueRepository
	prefs     *fakePreferenceRepository
	tracks    *fakeTrackRepository
	cache     *Cache
	publisher *recordingPublisher
	service   *Service
}

func newServiceFixture(store *memQueueRepository, trackIDs ...string) *serviceFixture {
	f := &serviceFixture{
		store:     store,
		prefs:     &fakePreferenceRepository{autoAdvance: true},
		tracks:    newFakeTrackRepository(trackIDs...),
		cache:     NewCache(100, 5*time.Minute),
		publisher: &recordingPublisher{},
	}
	f.service = NewService(f.store, f.prefs, NewHydrator(f.tracks, nil), f.cache, f.publisher)
	return f
}

func stateWithTracks(refs ...string) model.PlaybackState {
	state := model.EmptyPlaybackState()
	state.TrackRefs = append(state.TrackRefs, refs...)
	state.OriginalOrderRefs = append(state.OriginalOrderRefs, refs...)
	if len(refs) > 0 {
		state.CurrentTrackRef = &refs[0]
	}
	return state
}

func revision(n int64) *int64 {
	return &n
}

func TestGetQueueNoRow(t *testing.T) {
	f := newServiceFixture(newMemQueueRepository())

	view, err := f.service.GetQueue(context.Background(), "did:plc:new-user")
	require.NoError(t, err)
	assert.Nil(t, view, "a user who never wrote a queue has no view")
}

func TestUpdateQueueUnconditional(t *testing.T) {
	f := newServiceFixture(newMemQueueRepository(), "t1", "t2")
	ctx := context.Background()

	view, err := f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Revision, "first write creates the row at revision 1")

	view, err = f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1", "t2"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Revision, "each successful write increments by exactly 1")

	assert.Equal(t, []string{"did:plc:alice", "did:plc:alice"}, f.publisher.events())
}

func TestUpdateQueueOptimisticConcurrency(t *testing.T) {
	f := newServiceFixture(newMemQueueRepository(), "t1", "t2")
	ctx := context.Background()

	_, err := f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1"), nil)
	require.NoError(t, err)

	view, err := f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1", "t2"), revision(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Revision)

	// A stale expected revision conflicts and leaves everything untouched.
	_, err = f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1"), revision(1))
	require.ErrorIs(t, err, repository.ErrRevisionConflict)

	stored, err := f.store.Get(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Revision)
	assert.Equal(t, []string{"t1", "t2"}, stored.State.TrackRefs)
}

func TestUpdateQueueConflictHasNoSideEffects(t *testing.T) {
	f := newServiceFixture(newMemQueueRepository(), "t1", "t2")
	ctx := context.Background()

	_, err := f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1"), nil)
	require.NoError(t, err)
	published := len(f.publisher.events())

	_, err = f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1", "t2"), revision(99))
	require.ErrorIs(t, err, repository.ErrRevisionConflict)

	assert.Len(t, f.publisher.events(), published, "conflicts must not publish")

	cached, ok := f.cache.Get("did:plc:alice")
	require.True(t, ok)
	assert.Equal(t, int64(1), cached.Revision, "conflicts must not touch the cache")
}

func TestReadYourWrites(t *testing.T) {
	f := newServiceFixture(newMemQueueRepository(), "t1", "t2")
	ctx := context.Background()

	_, err := f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1", "t2"), nil)
	require.NoError(t, err)

	view, err := f.service.GetQueue(ctx, "did:plc:alice")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, int64(1), view.Revision)
	assert.Equal(t, []string{"t1", "t2"}, view.State.TrackRefs)
	require.Len(t, view.Tracks, 2)
	assert.Equal(t, "t1", view.Tracks[0].FileID)
	assert.Equal(t, "t2", view.Tracks[1].FileID)
}

func TestCrossInstanceInvalidation(t *testing.T) {
	store := newMemQueueRepository()
	instanceA := newServiceFixture(store, "t1", "t2")
	instanceB := newServiceFixture(store, "t1", "t2")
	ctx := context.Background()

	// Both instances hold a cached view of revision 1.
	_, err := instanceA.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1"), nil)
	require.NoError(t, err)
	_, err = instanceB.service.GetQueue(ctx, "did:plc:alice")
	require.NoError(t, err)
	_, ok := instanceB.cache.Get("did:plc:alice")
	require.True(t, ok)

	// Instance A writes revision 2 and publishes.
	_, err = instanceA.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1", "t2"), revision(1))
	require.NoError(t, err)
	events := instanceA.publisher.events()
	require.NotEmpty(t, events)

	// Deliver A's payload to B's notifier handler, as the subscription would.
	notifierB := NewChangeNotifier(nil, testConfig())
	notifierB.OnChange(instanceB.cache.Invalidate)
	notifierB.dispatch(events[len(events)-1])

	_, ok = instanceB.cache.Get("did:plc:alice")
	assert.False(t, ok, "B's cache entry must be evicted")

	view, err := instanceB.service.GetQueue(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Revision, "B's next read must hit the store")
}

func TestAutoAdvanceMergedAtReadTime(t *testing.T) {
	f := newServiceFixture(newMemQueueRepository(), "t1")
	f.prefs.autoAdvance = false
	ctx := context.Background()

	view, err := f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1"), nil)
	require.NoError(t, err)
	assert.False(t, view.State.AutoAdvance)

	// Preference lookup failure degrades to the default, not an error.
	f.prefs.err = errors.New("preferences unavailable")
	f.cache.Clear()
	view, err = f.service.GetQueue(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.True(t, view.State.AutoAdvance)
}

func TestExampleScenario(t *testing.T) {
	f := newServiceFixture(newMemQueueRepository(), "t1", "t2", "t3")
	ctx := context.Background()
	did := "did:plc:u"

	first := stateWithTracks("t1", "t2")
	view, err := f.service.UpdateQueue(ctx, did, first, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Revision)
	assert.Equal(t, []string{"t1", "t2"}, view.State.TrackRefs)

	second := stateWithTracks("t1", "t2", "t3")
	view, err = f.service.UpdateQueue(ctx, did, second, revision(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Revision)

	_, err = f.service.UpdateQueue(ctx, did, first, revision(1))
	require.ErrorIs(t, err, repository.ErrRevisionConflict)

	view, err = f.service.GetQueue(ctx, did)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Revision)
	require.Len(t, view.Tracks, 3)
}

func TestShutdownClearsCache(t *testing.T) {
	f := newServiceFixture(newMemQueueRepository(), "t1")
	ctx := context.Background()

	_, err := f.service.UpdateQueue(ctx, "did:plc:alice", stateWithTracks("t1"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len())

	f.service.Shutdown()
	assert.Equal(t, 0, f.cache.Len())
}
