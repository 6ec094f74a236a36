// Package sequencer drives the one-at-a-time execution of a distribution
// session: resume-or-start for a campaign, launching the next pending
// source, and sweeping sources stuck in running. All state transitions are
// persisted before they are reported, which is what makes the sequence
// resumable across restarts.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/classifier"
	"github.com/ternarybob/disperse/internal/common"
	"github.com/ternarybob/disperse/internal/interfaces"
	"github.com/ternarybob/disperse/internal/models"
	"github.com/ternarybob/disperse/internal/planner"
)

// ErrSessionNotFound is returned when an operation names a session that
// does not exist.
var ErrSessionNotFound = errors.New("session not found")

// AdvanceResult reports the outcome of one advance step
type AdvanceResult struct {
	Session   *models.DistributionSession `json:"session"`
	Source    *models.SourceState         `json:"source,omitempty"`
	JobHandle string                      `json:"job_handle,omitempty"`
	// Launched is true when this call started a new job. False when the
	// call was a no-op: a job was already in flight or the sequence is
	// done.
	Launched bool `json:"launched"`
	// Done is true when every source has reached a terminal status and the
	// session is completed.
	Done bool `json:"done"`
}

// StatusView is the full read-only view of a session and its sources
type StatusView struct {
	Session *models.DistributionSession `json:"session"`
	Sources []*models.SourceState       `json:"sources"`
}

// Service sequences source execution for distribution sessions
type Service struct {
	storage    interfaces.SessionStorage
	runner     interfaces.RunnerClient
	classifier *classifier.Service
	collector  interfaces.Collector
	logger     arbor.ILogger
	backoff    BackoffPolicy

	// locks serializes work per campaign (initialization) and per session
	// (advancement); keys never collide because session ids are prefixed
	locks sync.Map
}

// NewService creates a sequencer service
func NewService(storage interfaces.SessionStorage, runner interfaces.RunnerClient, classifierSvc *classifier.Service, collector interfaces.Collector, logger arbor.ILogger, backoff BackoffPolicy) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner client is required")
	}
	if classifierSvc == nil {
		return nil, fmt.Errorf("classifier service is required")
	}

	return &Service{
		storage:    storage,
		runner:     runner,
		classifier: classifierSvc,
		collector:  collector,
		logger:     logger,
		backoff:    backoff,
	}, nil
}

// lock acquires the named mutex and returns its release func
func (s *Service) lock(key string) func() {
	value, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ResumeOrStart returns the campaign's active session, creating one when
// none exists. Calling it again with any request while a session is active
// resumes that session untouched; the stored plan wins over the incoming
// source list.
func (s *Service) ResumeOrStart(ctx context.Context, req *models.InitializeSequenceRequest) (*models.DistributionSession, error) {
	if err := req.Validate(); err != nil {
		return nil, &models.ConfigurationError{Reason: err.Error()}
	}

	unlock := s.lock("campaign|" + req.CampaignID)
	defer unlock()

	existing, err := s.storage.GetActiveSessionByCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Info().
			Str("session_id", existing.SessionID).
			Str("campaign_id", req.CampaignID).
			Int("current_sequence", existing.CurrentSequence).
			Msg("Resuming active session")
		s.collector.Incr("sequencer.resumed")
		return existing, nil
	}

	// Callers may omit source ids; sequencing and recovery need one per
	// source, so blanks get generated ids before the plan is stored
	for i := range req.Sources {
		if req.Sources[i].SourceID == "" {
			req.Sources[i].SourceID = common.NewSourceID()
		}
	}

	allocations, err := planner.Plan(req.Sources, req.Quota)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.DistributionSession{
		SessionID:       common.NewSessionID(),
		CampaignID:      req.CampaignID,
		TotalQuota:      req.Quota,
		RemainingLeads:  req.Quota,
		TotalSources:    len(allocations),
		SourcePlan:      allocations,
		Status:          models.SessionStatusActive,
		History:         []models.ExecutionHistoryEntry{{Event: "initialized", Allocated: req.Quota, Timestamp: now}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	states := make([]*models.SourceState, 0, len(allocations))
	for _, alloc := range allocations {
		states = append(states, &models.SourceState{
			Key:           models.StateKey(session.SessionID, alloc.SourceID),
			SessionID:     session.SessionID,
			SourceID:      alloc.SourceID,
			Template:      alloc.Template,
			Priority:      alloc.Priority,
			SequenceOrder: alloc.SequenceOrder,
			Allocated:     alloc.Allocated,
			StartPage:     alloc.StartPage,
			PageCount:     alloc.PageCount,
			Status:        models.SourceStatusPending,
			UpdatedAt:     now,
		})
	}

	if err := s.storage.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.storage.CreateSourceStates(ctx, session.SessionID, states); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("session_id", session.SessionID).
		Str("campaign_id", req.CampaignID).
		Int("quota", req.Quota).
		Int("sources", len(states)).
		Msg("Session initialized")
	s.collector.Incr("sequencer.sessions_created")

	return session, nil
}

// Advance launches the next pending source of a session. Exactly one job is
// in flight per session: if a source is already running the call reports it
// and launches nothing. When no pending source remains the session is
// finalized as completed.
func (s *Service) Advance(ctx context.Context, req *models.AdvanceSequenceRequest) (*AdvanceResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &models.ConfigurationError{Reason: err.Error()}
	}

	unlock := s.lock("session|" + req.SessionID)
	defer unlock()

	session, err := s.storage.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, req.SessionID)
	}

	if session.Status == models.SessionStatusCompleted {
		return &AdvanceResult{Session: session, Done: true}, nil
	}

	states, err := s.storage.ListSourceStates(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	// Single-flight: an in-flight job blocks any new launch
	for _, st := range states {
		if st.Status == models.SourceStatusRunning {
			s.logger.Debug().
				Str("session_id", session.SessionID).
				Str("source_id", st.SourceID).
				Str("job_handle", st.JobHandle).
				Msg("Advance skipped, job already in flight")
			return &AdvanceResult{Session: session, Source: st, JobHandle: st.JobHandle}, nil
		}
	}

	next := models.NextPending(states)
	if next == nil {
		return s.finalize(ctx, session)
	}

	params := models.LaunchParams{
		Template:    next.Template,
		ResultCount: next.Allocated,
		StartPage:   next.StartPage,
		PageCount:   next.PageCount,
	}
	params = req.Overrides.Apply(params)

	// The running marker is durable before the runner is invoked: a crash
	// mid-launch leaves the source running, where the stale sweep bounds the
	// damage, never pending with an orphaned job a later advance would
	// relaunch.
	if err := s.storage.UpdateSourceStatus(ctx, session.SessionID, next.SourceID, models.SourceStatusRunning); err != nil {
		return nil, err
	}

	handle, err := s.launchWithRetry(ctx, session.SessionID, next.SourceID, params)
	if err != nil {
		// Source goes running to failed, session stays active; the next
		// advance moves on to the following source
		if markErr := s.storage.UpdateSourceStatus(ctx, session.SessionID, next.SourceID, models.SourceStatusFailed); markErr != nil {
			return nil, markErr
		}
		s.appendHistory(ctx, session.SessionID, models.ExecutionHistoryEntry{
			Event:    "launch_failed",
			SourceID: next.SourceID,
			Message:  err.Error(),
		})
		s.collector.Incr("sequencer.launch_failed")
		return nil, &models.LaunchError{SessionID: session.SessionID, SourceID: next.SourceID, Err: err}
	}

	if err := s.storage.UpdateSourceJobHandle(ctx, session.SessionID, next.SourceID, handle); err != nil {
		return nil, err
	}

	// Progress counters move at launch: the allocation is handed to the
	// runner and the remaining budget shrinks accordingly.
	newOffset := session.CurrentOffset + next.Allocated
	newDistributed := session.TotalDistributed + next.Allocated
	newRemaining := session.TotalQuota - newDistributed
	if err := s.storage.UpdateSessionProgress(ctx, session.SessionID, newOffset, newDistributed, newRemaining, next.SequenceOrder); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, session.SessionID, models.ExecutionHistoryEntry{
		Event:     "launched",
		SourceID:  next.SourceID,
		JobHandle: handle,
		Allocated: next.Allocated,
	})

	session.CurrentOffset = newOffset
	session.TotalDistributed = newDistributed
	session.RemainingLeads = newRemaining
	session.CurrentSequence = next.SequenceOrder
	next.JobHandle = handle
	next.Status = models.SourceStatusRunning

	s.logger.Info().
		Str("session_id", session.SessionID).
		Str("source_id", next.SourceID).
		Str("job_handle", handle).
		Int("allocated", next.Allocated).
		Int("sequence", next.SequenceOrder).
		Msg("Source launched")
	s.collector.Incr("sequencer.launched")

	return &AdvanceResult{Session: session, Source: next, JobHandle: handle, Launched: true}, nil
}

// Status returns the session and its ordered source states
func (s *Service) Status(ctx context.Context, sessionID string) (*StatusView, error) {
	session, err := s.storage.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	states, err := s.storage.ListSourceStates(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &StatusView{Session: session, Sources: states}, nil
}

// MarkStaleRunning sweeps sources stuck in running longer than the job
// lifetime bound. The runner's jobs cannot legitimately outlive it; a stale
// running source means the finish signal was lost. Each swept source is
// failed and its handle recorded as a connectivity error so manual recovery
// can still be attempted.
func (s *Service) MarkStaleRunning(ctx context.Context, olderThan time.Duration) (int, error) {
	running, err := s.storage.ListSourceStatesByStatus(ctx, models.SourceStatusRunning)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	swept := 0

	for _, st := range running {
		if st.ExecutedAt == nil || st.ExecutedAt.After(cutoff) {
			continue
		}

		if err := s.storage.UpdateSourceStatus(ctx, st.SessionID, st.SourceID, models.SourceStatusFailed); err != nil {
			s.logger.Warn().Err(err).
				Str("session_id", st.SessionID).
				Str("source_id", st.SourceID).
				Msg("Failed to sweep stale running source")
			continue
		}

		if st.JobHandle != "" {
			s.classifier.RecordWithCategory(ctx, st.JobHandle, models.CategoryConnectivity,
				fmt.Sprintf("job exceeded maximum lifetime %s without a finish signal", olderThan), nil)
		}
		s.appendHistory(ctx, st.SessionID, models.ExecutionHistoryEntry{
			Event:     "stale_failed",
			SourceID:  st.SourceID,
			JobHandle: st.JobHandle,
		})

		s.logger.Warn().
			Str("session_id", st.SessionID).
			Str("source_id", st.SourceID).
			Str("job_handle", st.JobHandle).
			Msg("Stale running source swept to failed")
		swept++
	}

	if swept > 0 {
		s.collector.Add("sequencer.stale_swept", int64(swept))
	}
	return swept, nil
}

// launchWithRetry attempts the launch under the bounded backoff policy
func (s *Service) launchWithRetry(ctx context.Context, sessionID, sourceID string, params models.LaunchParams) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= s.backoff.MaxAttempts; attempt++ {
		if err := s.backoff.Wait(ctx, attempt); err != nil {
			return "", err
		}

		handle, err := s.runner.Launch(ctx, params)
		if err == nil {
			return handle, nil
		}
		lastErr = err

		s.logger.Warn().Err(err).
			Str("session_id", sessionID).
			Str("source_id", sourceID).
			Int("attempt", attempt).
			Int("max_attempts", s.backoff.MaxAttempts).
			Msg("Launch attempt failed")
	}

	return "", fmt.Errorf("launch failed after %d attempts: %w", s.backoff.MaxAttempts, lastErr)
}

// finalize marks a session completed once no pending source remains
func (s *Service) finalize(ctx context.Context, session *models.DistributionSession) (*AdvanceResult, error) {
	if err := s.storage.UpdateSessionStatus(ctx, session.SessionID, models.SessionStatusCompleted); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, session.SessionID, models.ExecutionHistoryEntry{
		Event:   "session_completed",
		Message: fmt.Sprintf("distributed %d of %d", session.TotalDistributed, session.TotalQuota),
	})

	session.Status = models.SessionStatusCompleted

	s.logger.Info().
		Str("session_id", session.SessionID).
		Str("campaign_id", session.CampaignID).
		Int("distributed", session.TotalDistributed).
		Msg("Session completed")
	s.collector.Incr("sequencer.sessions_completed")

	return &AdvanceResult{Session: session, Done: true}, nil
}

// appendHistory records an audit entry; history is advisory and its write
// failures never abort the operation that produced them
func (s *Service) appendHistory(ctx context.Context, sessionID string, entry models.ExecutionHistoryEntry) {
	if err := s.storage.AppendExecutionHistory(ctx, sessionID, entry); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to append execution history")
	}
}
