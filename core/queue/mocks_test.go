package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"queuesync/model"
	"queuesync/repository"
)

// memQueueRepository is an in-memory QueueRepository with the same
// compare-and-swap semantics as the MySQL implementation. Shared between two
// services it stands in for the store both instances write through.
type memQueueRepository struct {
	mu   sync.Mutex
	rows map[string]*model.StoredQueue
}

func newMemQueueRepository() *memQueueRepository {
	return &memQueueRepository{rows: make(map[string]*model.StoredQueue)}
}

func (r *memQueueRepository) Get(ctx context.Context, did string) (*model.StoredQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[did]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (r *memQueueRepository) Update(ctx context.Context, did string, state model.PlaybackState, expectedRevision *int64) (*model.StoredQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[did]
	if !ok {
		row = &model.StoredQueue{State: state, Revision: 1, UpdatedAt: time.Now()}
		r.rows[did] = row
		copied := *row
		return &copied, nil
	}

	if expectedRevision != nil && row.Revision != *expectedRevision {
		return nil, repository.ErrRevisionConflict
	}
	row.State = state
	row.Revision++
	row.UpdatedAt = time.Now()
	copied := *row
	return &copied, nil
}

// fakeTrackRepository serves tracks from a map and counts queries. Results
// come back in reverse-sorted file ID order so tests catch hydration code
// that leaks fetch order.
type fakeTrackRepository struct {
	tracks  map[string]*model.Track
	queries int
}

func newFakeTrackRepository(fileIDs ...string) *fakeTrackRepository {
	tracks := make(map[string]*model.Track, len(fileIDs))
	for i, id := range fileIDs {
		tracks[id] = &model.Track{
			ID:     int64(i + 1),
			FileID: id,
			Title:  "title-" + id,
			Artist: "artist-" + id,
		}
	}
	return &fakeTrackRepository{tracks: tracks}
}

func (r *fakeTrackRepository) GetTracksByFileIDs(ctx context.Context, fileIDs []string) ([]*model.Track, error) {
	r.queries++
	var found []*model.Track
	for _, id := range fileIDs {
		if track, ok := r.tracks[id]; ok {
			found = append(found, track)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].FileID > found[j].FileID })
	return found, nil
}

// fakePreferenceRepository returns a fixed auto-advance value or a canned error.
type fakePreferenceRepository struct {
	autoAdvance bool
	err         error
}

func (r *fakePreferenceRepository) GetAutoAdvance(ctx context.Context, did string) (bool, error) {
	if r.err != nil {
		return true, r.err
	}
	return r.autoAdvance, nil
}

// recordingPublisher captures published change events.
type recordingPublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *recordingPublisher) Publish(ctx context.Context, did string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, did)
}

func (p *recordingPublisher) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}
