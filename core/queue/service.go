package queue

import (
	"context"

	"queuesync/logger"
	"queuesync/model"
	"queuesync/repository"
)

// Publisher is the cross-instance change broadcast the service emits on.
type Publisher interface {
	Publish(ctx context.Context, did string)
}

// Service is the playback-queue façade. It orchestrates the durable store,
// the process-local cache, track hydration and change publication. Concurrent
// writers for the same user are not serialized in-process; correctness relies
// on the store's compare-and-swap.
type Service struct {
	store    repository.QueueRepository
	prefs    repository.PreferenceRepository
	hydrator *Hydrator
	cache    *Cache
	notifier Publisher
}

// NewService assembles the queue service from its collaborators.
func NewService(
	store repository.QueueRepository,
	prefs repository.PreferenceRepository,
	hydrator *Hydrator,
	cache *Cache,
	notifier Publisher,
) *Service {
	return &Service{
		store:    store,
		prefs:    prefs,
		hydrator: hydrator,
		cache:    cache,
		notifier: notifier,
	}
}

// GetQueue returns the user's queue view, or (nil, nil) for users who have
// never written a queue. Cached views are served directly; misses read the
// store, hydrate and populate the cache.
func (s *Service) GetQueue(ctx context.Context, did string) (*model.QueueView, error) {
	if view, ok := s.cache.Get(did); ok {
		logger.Debug("queue cache hit", logger.String("did", did))
		return view, nil
	}

	stored, err := s.store.Get(ctx, did)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	view, err := s.assemble(ctx, did, stored)
	if err != nil {
		return nil, err
	}
	s.cache.Put(did, view)
	return view, nil
}

// UpdateQueue overwrites the user's queue. A nil expectedRevision is an
// unconditional last-writer-wins write. On a stale expectedRevision the store
// returns repository.ErrRevisionConflict and nothing else happens: no cache
// mutation, no publish. On success the fresh view is cached locally before
// publishing, so a read on this instance immediately after the write sees the
// new state.
func (s *Service) UpdateQueue(ctx context.Context, did string, state model.PlaybackState, expectedRevision *int64) (*model.QueueView, error) {
	stored, err := s.store.Update(ctx, did, state, expectedRevision)
	if err != nil {
		return nil, err
	}

	view, err := s.assemble(ctx, did, stored)
	if err != nil {
		// The write is durable at this point; make sure nobody serves the
		// old view even though we can't hand back the new one.
		s.cache.Invalidate(did)
		if s.notifier != nil {
			s.notifier.Publish(ctx, did)
		}
		return nil, err
	}

	s.cache.Put(did, view)
	if s.notifier != nil {
		s.notifier.Publish(ctx, did)
	}
	return view, nil
}

// Shutdown drops all cached views so a restarted instance starts cold.
func (s *Service) Shutdown() {
	s.cache.Clear()
}

// assemble joins the stored state with the unversioned auto-advance
// preference and the hydrated track list. Preference lookup failures fall
// back to the default rather than failing the read.
func (s *Service) assemble(ctx context.Context, did string, stored *model.StoredQueue) (*model.QueueView, error) {
	autoAdvance, err := s.prefs.GetAutoAdvance(ctx, did)
	if err != nil {
		logger.Warn("auto_advance lookup failed, using default",
			logger.String("did", did),
			logger.ErrorField(err))
	}

	tracks, err := s.hydrator.Hydrate(ctx, stored.State.TrackRefs)
	if err != nil {
		return nil, err
	}

	return &model.QueueView{
		State: model.MergedState{
			PlaybackState: stored.State,
			AutoAdvance:   autoAdvance,
		},
		Revision: stored.Revision,
		Tracks:   tracks,
	}, nil
}
