package model

import "time"

// UserPreferences holds per-user playback preferences. AutoAdvance defaults
// to true for users without a row.
type UserPreferences struct {
	DID         string    `json:"did"`
	AutoAdvance bool      `json:"auto_advance"`
	UpdatedAt   time.Time `json:"updated_at"`
}
