package model

import "time"

// RepeatMode selects how playback continues at the end of a track or queue.
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatOne  RepeatMode = "one"
	RepeatAll  RepeatMode = "all"
)

// PlaybackState is the client-owned queue document. Track references are
// opaque strings in playback order; duplicates are allowed. CurrentIndex and
// CurrentTrackRef are persisted as sent — the server does not validate them
// against TrackRefs (the client owns that invariant).
type PlaybackState struct {
	TrackRefs         []string   `json:"track_ids"`
	CurrentIndex      int        `json:"current_index"`
	CurrentTrackRef   *string    `json:"current_track_id"`
	Shuffle           bool       `json:"shuffle"`
	RepeatMode        RepeatMode `json:"repeat_mode"`
	OriginalOrderRefs []string   `json:"original_order_ids"`
}

// EmptyPlaybackState returns the default state rendered for users without a
// queue row. Slices are non-nil so they serialize as [] rather than null.
func EmptyPlaybackState() PlaybackState {
	return PlaybackState{
		TrackRefs:         []string{},
		OriginalOrderRefs: []string{},
		RepeatMode:        RepeatNone,
	}
}

// QueueState is the durable queue row. One row per user, created lazily on
// first write. Revision is the optimistic-concurrency token: 1 on first
// write, +1 per successful write.
type QueueState struct {
	ID        int64     `gorm:"primaryKey"`
	DID       string    `gorm:"column:did;uniqueIndex;size:255"`
	State     string    `gorm:"type:json"`
	Revision  int64     `gorm:"not null;default:1"`
	UpdatedAt time.Time
}

// TableName maps QueueState onto the queue_states table.
func (QueueState) TableName() string {
	return "queue_states"
}

// StoredQueue is a decoded queue_states row.
type StoredQueue struct {
	State     PlaybackState
	Revision  int64
	UpdatedAt time.Time
}

// MergedState is PlaybackState joined with the unversioned auto-advance
// preference. The preference is read fresh on every fetch and never stored
// with the versioned state, so preference changes don't bump the revision.
type MergedState struct {
	PlaybackState
	AutoAdvance bool `json:"auto_advance"`
}

// QueueView is the assembled read model served to clients: merged state,
// revision (doubles as the ETag value) and the hydrated track metadata.
type QueueView struct {
	State    MergedState `json:"state"`
	Revision int64       `json:"revision"`
	Tracks   []*Track    `json:"tracks"`
}
