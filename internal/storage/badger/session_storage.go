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

// SessionStorage implements the SessionStorage interface for Badger. It is
// the single source of truth for resuming a session after restart: every
// mutation is durable before the caller's next step proceeds.
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SessionStorage) CreateSession(ctx context.Context, session *models.DistributionSession) error {
	if session.SessionID == "" {
		return &models.StoreError{Op: "create session", Err: fmt.Errorf("session ID is required")}
	}

	// A campaign keeps at most one active session; a second create while
	// one is active must resume that one instead
	existing, err := s.GetActiveSessionByCampaign(ctx, session.CampaignID)
	if err != nil {
		return err
	}
	if existing != nil && existing.SessionID != session.SessionID {
		return &models.StoreError{
			Op:  "create session",
			Err: fmt.Errorf("campaign %s already has active session %s", session.CampaignID, existing.SessionID),
		}
	}

	if err := s.db.Store().Upsert(session.SessionID, session); err != nil {
		return &models.StoreError{Op: "create session", Err: err}
	}
	return nil
}

func (s *SessionStorage) GetActiveSessionByCampaign(ctx context.Context, campaignID string) (*models.DistributionSession, error) {
	var sessions []models.DistributionSession
	query := badgerhold.Where("CampaignID").Eq(campaignID).And("Status").Eq(models.SessionStatusActive)
	if err := s.db.Store().Find(&sessions, query); err != nil {
		return nil, &models.StoreError{Op: "get active session", Err: err}
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

func (s *SessionStorage) GetSession(ctx context.Context, sessionID string) (*models.DistributionSession, error) {
	var session models.DistributionSession
	if err := s.db.Store().Get(sessionID, &session); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, &models.StoreError{Op: "get session", Err: err}
	}
	return &session, nil
}

func (s *SessionStorage) UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	session, err := s.mustGetSession(sessionID)
	if err != nil {
		return err
	}

	session.Status = status
	session.UpdatedAt = time.Now()
	if status == models.SessionStatusCompleted {
		now := time.Now()
		session.CompletedAt = &now
	}

	if err := s.db.Store().Upsert(sessionID, session); err != nil {
		return &models.StoreError{Op: "update session status", Err: err}
	}
	return nil
}

func (s *SessionStorage) UpdateSessionProgress(ctx context.Context, sessionID string, offset, distributed, remaining, sequence int) error {
	session, err := s.mustGetSession(sessionID)
	if err != nil {
		return err
	}

	session.CurrentOffset = offset
	session.TotalDistributed = distributed
	session.RemainingLeads = remaining
	session.CurrentSequence = sequence
	session.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(sessionID, session); err != nil {
		return &models.StoreError{Op: "update session progress", Err: err}
	}
	return nil
}

func (s *SessionStorage) AppendExecutionHistory(ctx context.Context, sessionID string, entry models.ExecutionHistoryEntry) error {
	session, err := s.mustGetSession(sessionID)
	if err != nil {
		return err
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	session.History = append(session.History, entry)
	session.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(sessionID, session); err != nil {
		return &models.StoreError{Op: "append execution history", Err: err}
	}
	return nil
}

// DeleteSession removes the session and cascades to its source states
func (s *SessionStorage) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.db.Store().DeleteMatching(&models.SourceState{}, badgerhold.Where("SessionID").Eq(sessionID)); err != nil {
		return &models.StoreError{Op: "delete source states", Err: err}
	}
	if err := s.db.Store().Delete(sessionID, &models.DistributionSession{}); err != nil && err != badgerhold.ErrNotFound {
		return &models.StoreError{Op: "delete session", Err: err}
	}
	return nil
}

func (s *SessionStorage) CreateSourceStates(ctx context.Context, sessionID string, states []*models.SourceState) error {
	for _, state := range states {
		state.SessionID = sessionID
		state.Key = models.StateKey(sessionID, state.SourceID)
		if state.UpdatedAt.IsZero() {
			state.UpdatedAt = time.Now()
		}
		if err := s.db.Store().Upsert(state.Key, state); err != nil {
			return &models.StoreError{Op: "create source states", Err: err}
		}
	}

	s.logger.Debug().
		Str("session_id", sessionID).
		Int("count", len(states)).
		Msg("Source states persisted")

	return nil
}

func (s *SessionStorage) ListSourceStates(ctx context.Context, sessionID string) ([]*models.SourceState, error) {
	var states []models.SourceState
	query := badgerhold.Where("SessionID").Eq(sessionID).SortBy("SequenceOrder")
	if err := s.db.Store().Find(&states, query); err != nil {
		return nil, &models.StoreError{Op: "list source states", Err: err}
	}

	result := make([]*models.SourceState, len(states))
	for i := range states {
		result[i] = &states[i]
	}
	return result, nil
}

func (s *SessionStorage) GetSourceState(ctx context.Context, sessionID, sourceID string) (*models.SourceState, error) {
	var state models.SourceState
	if err := s.db.Store().Get(models.StateKey(sessionID, sourceID), &state); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, &models.StoreError{Op: "get source state", Err: err}
	}
	return &state, nil
}

func (s *SessionStorage) GetSourceStateByHandle(ctx context.Context, jobHandle string) (*models.SourceState, error) {
	var states []models.SourceState
	if err := s.db.Store().Find(&states, badgerhold.Where("JobHandle").Eq(jobHandle)); err != nil {
		return nil, &models.StoreError{Op: "get source state by handle", Err: err}
	}
	if len(states) == 0 {
		return nil, nil
	}
	return &states[0], nil
}

func (s *SessionStorage) ListSourceStatesByStatus(ctx context.Context, status models.SourceStatus) ([]*models.SourceState, error) {
	var states []models.SourceState
	if err := s.db.Store().Find(&states, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, &models.StoreError{Op: "list source states by status", Err: err}
	}

	result := make([]*models.SourceState, len(states))
	for i := range states {
		result[i] = &states[i]
	}
	return result, nil
}

func (s *SessionStorage) UpdateSourceStatus(ctx context.Context, sessionID, sourceID string, status models.SourceStatus) error {
	state, err := s.mustGetSourceState(sessionID, sourceID)
	if err != nil {
		return err
	}

	state.Status = status
	state.UpdatedAt = time.Now()
	if status == models.SourceStatusRunning {
		now := time.Now()
		state.ExecutedAt = &now
	}

	if err := s.db.Store().Upsert(state.Key, state); err != nil {
		return &models.StoreError{Op: "update source status", Err: err}
	}
	return nil
}

func (s *SessionStorage) UpdateSourceJobHandle(ctx context.Context, sessionID, sourceID, handle string) error {
	state, err := s.mustGetSourceState(sessionID, sourceID)
	if err != nil {
		return err
	}

	state.JobHandle = handle
	state.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(state.Key, state); err != nil {
		return &models.StoreError{Op: "update source job handle", Err: err}
	}
	return nil
}

func (s *SessionStorage) UpdateSourceResults(ctx context.Context, sessionID, sourceID string, count int, status models.SourceStatus) error {
	state, err := s.mustGetSourceState(sessionID, sourceID)
	if err != nil {
		return err
	}

	state.ResultCount = count
	state.Status = status
	state.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(state.Key, state); err != nil {
		return &models.StoreError{Op: "update source results", Err: err}
	}
	return nil
}

func (s *SessionStorage) mustGetSession(sessionID string) (*models.DistributionSession, error) {
	var session models.DistributionSession
	if err := s.db.Store().Get(sessionID, &session); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, &models.StoreError{Op: "get session", Err: fmt.Errorf("session not found: %s", sessionID)}
		}
		return nil, &models.StoreError{Op: "get session", Err: err}
	}
	return &session, nil
}

func (s *SessionStorage) mustGetSourceState(sessionID, sourceID string) (*models.SourceState, error) {
	var state models.SourceState
	if err := s.db.Store().Get(models.StateKey(sessionID, sourceID), &state); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, &models.StoreError{Op: "get source state", Err: fmt.Errorf("source state not found: %s/%s", sessionID, sourceID)}
		}
		return nil, &models.StoreError{Op: "get source state", Err: err}
	}
	return &state, nil
}
