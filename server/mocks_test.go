package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"queuesync/config"
	"queuesync/core/queue"
	"queuesync/model"
	"queuesync/repository"
)

// memQueueRepository mirrors the store's compare-and-swap semantics in memory.
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

// fakeTrackRepository returns results in reverse-sorted file ID order so the
// handler tests catch anything that leaks fetch order to clients.
type fakeTrackRepository struct {
	tracks map[string]*model.Track
}

func newFakeTrackRepository(fileIDs ...string) *fakeTrackRepository {
	tracks := make(map[string]*model.Track, len(fileIDs))
	for i, id := range fileIDs {
		tracks[id] = &model.Track{ID: int64(i + 1), FileID: id, Title: "title-" + id}
	}
	return &fakeTrackRepository{tracks: tracks}
}

func (r *fakeTrackRepository) GetTracksByFileIDs(ctx context.Context, fileIDs []string) ([]*model.Track, error) {
	var found []*model.Track
	for _, id := range fileIDs {
		if track, ok := r.tracks[id]; ok {
			found = append(found, track)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].FileID > found[j].FileID })
	return found, nil
}

type fakePreferenceRepository struct {
	autoAdvance bool
}

func (r *fakePreferenceRepository) GetAutoAdvance(ctx context.Context, did string) (bool, error) {
	return r.autoAdvance, nil
}

// newTestHandler assembles an APIHandler over in-memory collaborators.
func newTestHandler(trackIDs ...string) *APIHandler {
	cfg := &config.Config{
		JWTSecret:      "test-secret",
		QueueCacheSize: 100,
		QueueCacheTTL:  5 * time.Minute,
	}
	prefRepo := &fakePreferenceRepository{autoAdvance: true}
	cache := queue.NewCache(cfg.QueueCacheSize, cfg.QueueCacheTTL)
	hydrator := queue.NewHydrator(newFakeTrackRepository(trackIDs...), nil)
	service := queue.NewService(newMemQueueRepository(), prefRepo, hydrator, cache, nil)
	return NewAPIHandler(service, prefRepo, nil, NewQueueHub(), cfg)
}
