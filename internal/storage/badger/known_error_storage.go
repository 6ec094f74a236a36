package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/interfaces"
	"github.com/ternarybob/disperse/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// KnownErrorStorage implements the KnownErrorStorage interface for Badger
type KnownErrorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKnownErrorStorage creates a new KnownErrorStorage instance
func NewKnownErrorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KnownErrorStorage {
	return &KnownErrorStorage{
		db:     db,
		logger: logger,
	}
}

// SaveKnownError upserts by job handle. Repeated classification of the same
// handle keeps the first-seen timestamp and resolution state.
func (s *KnownErrorStorage) SaveKnownError(ctx context.Context, knownError *models.KnownError) error {
	if knownError.JobHandle == "" {
		return &models.StoreError{Op: "save known error", Err: fmt.Errorf("job handle is required")}
	}

	now := time.Now()

	var existing models.KnownError
	err := s.db.Store().Get(knownError.JobHandle, &existing)
	if err == nil {
		knownError.CreatedAt = existing.CreatedAt
		knownError.Resolved = existing.Resolved
		knownError.Resolution = existing.Resolution
		knownError.ResolvedAt = existing.ResolvedAt
	} else if err == badgerhold.ErrNotFound {
		knownError.CreatedAt = now
	} else {
		return &models.StoreError{Op: "save known error", Err: err}
	}
	knownError.UpdatedAt = now

	if err := s.db.Store().Upsert(knownError.JobHandle, knownError); err != nil {
		return &models.StoreError{Op: "save known error", Err: err}
	}
	return nil
}

func (s *KnownErrorStorage) GetKnownError(ctx context.Context, jobHandle string) (*models.KnownError, error) {
	var knownError models.KnownError
	if err := s.db.Store().Get(jobHandle, &knownError); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, &models.StoreError{Op: "get known error", Err: err}
	}
	return &knownError, nil
}

// ListKnownErrors returns known errors, optionally filtered by category,
// most recent first.
func (s *KnownErrorStorage) ListKnownErrors(ctx context.Context, category models.ErrorCategory) ([]*models.KnownError, error) {
	query := badgerhold.Where("JobHandle").Ne("")
	if category != "" {
		query = badgerhold.Where("Category").Eq(category)
	}
	query = query.SortBy("UpdatedAt").Reverse()

	var knownErrors []models.KnownError
	if err := s.db.Store().Find(&knownErrors, query); err != nil {
		return nil, &models.StoreError{Op: "list known errors", Err: err}
	}

	result := make([]*models.KnownError, len(knownErrors))
	for i := range knownErrors {
		result[i] = &knownErrors[i]
	}
	return result, nil
}

func (s *KnownErrorStorage) ResolveKnownError(ctx context.Context, jobHandle, notes string) error {
	var knownError models.KnownError
	if err := s.db.Store().Get(jobHandle, &knownError); err != nil {
		if err == badgerhold.ErrNotFound {
			return &models.StoreError{Op: "resolve known error", Err: fmt.Errorf("known error not found: %s", jobHandle)}
		}
		return &models.StoreError{Op: "resolve known error", Err: err}
	}

	now := time.Now()
	knownError.Resolved = true
	knownError.Resolution = notes
	knownError.ResolvedAt = &now
	knownError.UpdatedAt = now

	if err := s.db.Store().Upsert(jobHandle, &knownError); err != nil {
		return &models.StoreError{Op: "resolve known error", Err: err}
	}
	return nil
}

func (s *KnownErrorStorage) CountKnownErrors(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.KnownError{}, nil)
	if err != nil {
		return 0, &models.StoreError{Op: "count known errors", Err: err}
	}
	return int(count), nil
}
