package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PreferenceRepository exposes the playback preferences this subsystem reads.
type PreferenceRepository interface {
	// GetAutoAdvance returns the user's auto-advance preference, defaulting
	// to true when the user has no stored preference.
	GetAutoAdvance(ctx context.Context, did string) (bool, error)
}

// mysqlPreferenceRepository implements PreferenceRepository for MySQL.
type mysqlPreferenceRepository struct {
	DB *sql.DB
}

// NewMySQLPreferenceRepository creates a new instance of mysqlPreferenceRepository.
func NewMySQLPreferenceRepository(db *sql.DB) PreferenceRepository {
	return &mysqlPreferenceRepository{DB: db}
}

func (r *mysqlPreferenceRepository) GetAutoAdvance(ctx context.Context, did string) (bool, error) {
	var autoAdvance bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT auto_advance FROM user_preferences WHERE did = ?`, did).
		Scan(&autoAdvance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return true, fmt.Errorf("failed to get auto_advance for %s: %w", did, err)
	}
	return autoAdvance, nil
}
