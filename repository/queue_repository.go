package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"queuesync/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRevisionConflict is returned by Update when the caller's expected
// revision no longer matches the stored row. It is a normal outcome the
// caller branches on, not a failure of the store.
var ErrRevisionConflict = errors.New("queue revision conflict")

// QueueRepository defines durable access to per-user queue state.
type QueueRepository interface {
	// Get returns the stored queue for a user, or (nil, nil) when the user
	// has no queue row yet.
	Get(ctx context.Context, did string) (*model.StoredQueue, error)
	// Update overwrites the queue state. A nil expectedRevision is an
	// unconditional last-writer-wins overwrite; otherwise the write only
	// succeeds when expectedRevision matches the stored revision, and
	// ErrRevisionConflict is returned with no mutation when it doesn't.
	Update(ctx context.Context, did string, state model.PlaybackState, expectedRevision *int64) (*model.StoredQueue, error)
}

// gormQueueRepository implements QueueRepository on MySQL via GORM.
type gormQueueRepository struct {
	db *gorm.DB
}

// NewGormQueueRepository creates a queue repository backed by the given GORM handle.
func NewGormQueueRepository(db *gorm.DB) QueueRepository {
	return &gormQueueRepository{db: db}
}

func (r *gormQueueRepository) Get(ctx context.Context, did string) (*model.StoredQueue, error) {
	var row model.QueueState
	err := r.db.WithContext(ctx).Where("did = ?", did).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get queue state for %s: %w", did, err)
	}
	return decodeQueueRow(&row)
}

func (r *gormQueueRepository) Update(ctx context.Context, did string, state model.PlaybackState, expectedRevision *int64) (*model.StoredQueue, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue state: %w", err)
	}

	var stored *model.StoredQueue
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.QueueState
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("did = ?", did).
			First(&row).Error

		switch {
		case err == nil:
			// Row exists: the compare-and-swap happens under the row lock.
			if expectedRevision != nil && row.Revision != *expectedRevision {
				return ErrRevisionConflict
			}
			row.State = string(payload)
			row.Revision++
			row.UpdatedAt = time.Now()
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("failed to update queue state: %w", err)
			}

		case errors.Is(err, gorm.ErrRecordNotFound):
			// First write for this user. expectedRevision is ignored here:
			// there is nothing to conflict with.
			row = model.QueueState{
				DID:       did,
				State:     string(payload),
				Revision:  1,
				UpdatedAt: time.Now(),
			}
			if err := tx.Create(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					// Another writer created the row between our read and
					// insert. Same treatment as a revision mismatch.
					return ErrRevisionConflict
				}
				return fmt.Errorf("failed to create queue state: %w", err)
			}

		default:
			return fmt.Errorf("failed to read queue state for update: %w", err)
		}

		stored = &model.StoredQueue{
			State:     state,
			Revision:  row.Revision,
			UpdatedAt: row.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func decodeQueueRow(row *model.QueueState) (*model.StoredQueue, error) {
	var state model.PlaybackState
	if err := json.Unmarshal([]byte(row.State), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue state for %s: %w", row.DID, err)
	}
	return &model.StoredQueue{
		State:     state,
		Revision:  row.Revision,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
