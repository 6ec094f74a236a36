package classifier

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/interfaces"
	"github.com/ternarybob/disperse/internal/models"
)

// Service classifies terminal runner outcomes and persists them for
// operator visibility. Failures inside classification degrade to
// unknown_error rather than propagating; recording diagnostics must never
// block the primary recovery flow.
type Service struct {
	storage   interfaces.KnownErrorStorage
	collector interfaces.Collector
	logger    arbor.ILogger
}

// NewService creates a new classifier service
func NewService(storage interfaces.KnownErrorStorage, collector interfaces.Collector, logger arbor.ILogger) *Service {
	return &Service{
		storage:   storage,
		collector: collector,
		logger:    logger,
	}
}

// Record classifies a job's terminal status and upserts the known-error row
// for its handle. Safe to call repeatedly for the same handle.
func (s *Service) Record(ctx context.Context, handle string, status *models.JobStatus) *models.KnownError {
	classification := Classify(statusTexts(status)...)

	knownError := &models.KnownError{
		JobHandle: handle,
		Category:  classification.Category,
		Message:   classification.Message,
		Details:   classification.Details,
	}
	if status != nil {
		knownError.ExitSignal = status.ExitSignal
		knownError.EndType = status.EndType
		knownError.Duration = status.Duration
	}

	if err := s.storage.SaveKnownError(ctx, knownError); err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_handle", handle).
			Str("category", string(knownError.Category)).
			Msg("Failed to persist known error")
		return knownError
	}

	s.collector.Incr("known_errors." + string(knownError.Category))

	s.logger.Info().
		Str("job_handle", handle).
		Str("category", string(knownError.Category)).
		Str("message", knownError.Message).
		Msg("Known error recorded")

	return knownError
}

// RecordWithCategory persists a known-error row with a pre-determined
// category, bypassing phrase matching. Used when the caller already knows
// the outcome (stale-running sweep, explicit terminal phrases).
func (s *Service) RecordWithCategory(ctx context.Context, handle string, category models.ErrorCategory, message string, status *models.JobStatus) *models.KnownError {
	knownError := &models.KnownError{
		JobHandle: handle,
		Category:  category,
		Message:   message,
	}
	if status != nil {
		knownError.ExitSignal = status.ExitSignal
		knownError.EndType = status.EndType
		knownError.Duration = status.Duration
	}

	if err := s.storage.SaveKnownError(ctx, knownError); err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_handle", handle).
			Str("category", string(category)).
			Msg("Failed to persist known error")
		return knownError
	}

	s.collector.Incr("known_errors." + string(category))
	return knownError
}

// Resolve records an operator-supplied resolution note for a known error
func (s *Service) Resolve(ctx context.Context, handle, notes string) error {
	return s.storage.ResolveKnownError(ctx, handle, notes)
}

func statusTexts(status *models.JobStatus) []string {
	if status == nil {
		return nil
	}
	return []string{status.Output, status.EndType, status.State}
}
