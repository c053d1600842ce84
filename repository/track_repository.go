package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"queuesync/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	// GetTracksByFileIDs fetches all tracks matching the given file IDs in a
	// single query. Result order is storage order; callers that care about
	// ordering must reorder themselves.
	GetTracksByFileIDs(ctx context.Context, fileIDs []string) ([]*model.Track, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{DB: db}
}

func (r *mysqlTrackRepository) GetTracksByFileIDs(ctx context.Context, fileIDs []string) ([]*model.Track, error) {
	if len(fileIDs) == 0 {
		return []*model.Track{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fileIDs)), ",")
	query := fmt.Sprintf(`SELECT id, file_id, title, artist, artist_handle, artist_avatar_url,
	           album, file_type, audio_url, features, play_count, created_at
	           FROM tracks WHERE file_id IN (%s)`, placeholders)

	args := make([]interface{}, len(fileIDs))
	for i, id := range fileIDs {
		args[i] = id
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks by file IDs: %w", err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate track rows: %w", err)
	}
	return tracks, nil
}

func scanTrack(rows *sql.Rows) (*model.Track, error) {
	var (
		track     model.Track
		avatarURL sql.NullString
		album     sql.NullString
		audioURL  sql.NullString
		features  []byte
	)
	err := rows.Scan(&track.ID, &track.FileID, &track.Title, &track.Artist,
		&track.ArtistHandle, &avatarURL, &album, &track.FileType, &audioURL,
		&features, &track.PlayCount, &track.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan track row: %w", err)
	}

	if avatarURL.Valid {
		track.ArtistAvatarURL = &avatarURL.String
	}
	if album.Valid {
		track.Album = &album.String
	}
	if audioURL.Valid {
		track.AudioURL = &audioURL.String
	}
	if len(features) > 0 {
		track.Features = json.RawMessage(features)
	} else {
		track.Features = json.RawMessage("[]")
	}
	return &track, nil
}
