package queue

import (
	"context"
	"fmt"

	"queuesync/model"
	"queuesync/repository"
)

// AudioURLResolver resolves a track's stored audio object into a playable
// URL. Optional; hydration works without one.
type AudioURLResolver interface {
	ResolveAudioURL(ctx context.Context, track *model.Track) (string, error)
}

// Hydrator resolves ordered track references into display metadata.
type Hydrator struct {
	tracks repository.TrackRepository
	media  AudioURLResolver
}

// NewHydrator creates a hydrator over the given track repository. media may
// be nil if no object storage is configured.
func NewHydrator(tracks repository.TrackRepository, media AudioURLResolver) *Hydrator {
	return &Hydrator{tracks: tracks, media: media}
}

// Hydrate turns track references into metadata records, preserving the input
// order. References that no longer resolve are dropped silently. All
// referenced tracks are fetched in one batch query; empty input issues no
// query at all.
func (h *Hydrator) Hydrate(ctx context.Context, refs []string) ([]*model.Track, error) {
	if len(refs) == 0 {
		return []*model.Track{}, nil
	}

	seen := make(map[string]struct{}, len(refs))
	unique := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		unique = append(unique, ref)
	}

	fetched, err := h.tracks.GetTracksByFileIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate tracks: %w", err)
	}

	byRef := make(map[string]*model.Track, len(fetched))
	for _, track := range fetched {
		byRef[track.FileID] = track
	}

	// Iterate the input order, not the fetch order.
	ordered := make([]*model.Track, 0, len(refs))
	for _, ref := range refs {
		track, ok := byRef[ref]
		if !ok {
			continue
		}
		if track.AudioURL == nil && h.media != nil {
			if url, err := h.media.ResolveAudioURL(ctx, track); err == nil && url != "" {
				track.AudioURL = &url
			}
		}
		ordered = append(ordered, track)
	}
	return ordered, nil
}
