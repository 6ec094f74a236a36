package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/models"
)

func TestSaveKnownErrorUpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	storage := NewKnownErrorStorage(db, arbor.NewLogger())
	ctx := context.Background()

	first := &models.KnownError{
		JobHandle:  "job-1",
		Category:   models.CategoryNoResultsFound,
		Message:    "no results found",
		ExitSignal: models.ExitSignalFailure,
	}
	require.NoError(t, storage.SaveKnownError(ctx, first))

	saved, err := storage.GetKnownError(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	createdAt := saved.CreatedAt

	// Repeated classification of the same handle keeps the original row
	second := &models.KnownError{
		JobHandle:  "job-1",
		Category:   models.CategoryNoResultsFound,
		Message:    "no results found",
		ExitSignal: models.ExitSignalFailure,
	}
	require.NoError(t, storage.SaveKnownError(ctx, second))

	count, err := storage.CountKnownErrors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	saved, err = storage.GetKnownError(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, createdAt, saved.CreatedAt)
}

func TestSaveKnownErrorPreservesResolution(t *testing.T) {
	db := newTestDB(t)
	storage := NewKnownErrorStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveKnownError(ctx, &models.KnownError{
		JobHandle: "job-1",
		Category:  models.CategoryCreditsExhausted,
		Message:   "no more credits",
	}))
	require.NoError(t, storage.ResolveKnownError(ctx, "job-1", "topped up account"))

	// Re-detection after resolution must not clear the operator's note
	require.NoError(t, storage.SaveKnownError(ctx, &models.KnownError{
		JobHandle: "job-1",
		Category:  models.CategoryCreditsExhausted,
		Message:   "no more credits",
	}))

	saved, err := storage.GetKnownError(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, saved.Resolved)
	assert.Equal(t, "topped up account", saved.Resolution)
	assert.NotNil(t, saved.ResolvedAt)
}

func TestListKnownErrorsByCategory(t *testing.T) {
	db := newTestDB(t)
	storage := NewKnownErrorStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveKnownError(ctx, &models.KnownError{
		JobHandle: "job-1",
		Category:  models.CategoryNoResultsFound,
	}))
	require.NoError(t, storage.SaveKnownError(ctx, &models.KnownError{
		JobHandle: "job-2",
		Category:  models.CategoryRateLimit,
	}))
	require.NoError(t, storage.SaveKnownError(ctx, &models.KnownError{
		JobHandle: "job-3",
		Category:  models.CategoryNoResultsFound,
	}))

	noResults, err := storage.ListKnownErrors(ctx, models.CategoryNoResultsFound)
	require.NoError(t, err)
	assert.Len(t, noResults, 2)

	all, err := storage.ListKnownErrors(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestResolveMissingKnownErrorFails(t *testing.T) {
	db := newTestDB(t)
	storage := NewKnownErrorStorage(db, arbor.NewLogger())

	err := storage.ResolveKnownError(context.Background(), "job-missing", "note")
	require.Error(t, err)
}
