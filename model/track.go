package model

import (
	"encoding/json"
	"time"
)

// Track is the display metadata a queue entry hydrates into.
type Track struct {
	ID              int64           `json:"id"`
	FileID          string          `json:"file_id"`
	Title           string          `json:"title"`
	Artist          string          `json:"artist"`
	ArtistHandle    string          `json:"artist_handle"`
	ArtistAvatarURL *string         `json:"artist_avatar_url"`
	Album           *string         `json:"album"`
	FileType        string          `json:"file_type"`
	AudioURL        *string         `json:"audio_url"`
	Features        json.RawMessage `json:"features"`
	PlayCount       int             `json:"play_count"`
	CreatedAt       time.Time       `json:"created_at"`
}
