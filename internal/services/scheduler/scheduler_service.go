// Package scheduler runs the periodic maintenance work: sweeping sources
// stuck in running past the job lifetime bound.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/common"
	"github.com/ternarybob/disperse/internal/sequencer"
)

// DefaultSweepSchedule runs the stale sweep every ten minutes
const DefaultSweepSchedule = "*/10 * * * *"

// Service owns the cron runner for the stale-running sweep
type Service struct {
	sequencer      *sequencer.Service
	cron           *cron.Cron
	logger         arbor.ILogger
	maxJobLifetime time.Duration
	schedule       string

	mu      sync.Mutex
	running bool
	lastRun *time.Time
}

// NewService creates the maintenance scheduler
func NewService(sequencerSvc *sequencer.Service, cfg common.SchedulerConfig, maxJobLifetime time.Duration, logger arbor.ILogger) (*Service, error) {
	if sequencerSvc == nil {
		return nil, fmt.Errorf("sequencer service is required")
	}

	schedule := cfg.SweepSchedule
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	return &Service{
		sequencer:      sequencerSvc,
		cron:           cron.New(),
		logger:         logger,
		maxJobLifetime: maxJobLifetime,
		schedule:       schedule,
	}, nil
}

// Start registers the sweep and starts the cron runner
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.schedule).
		Str("max_job_lifetime", s.maxJobLifetime.String()).
		Msg("Stale-running sweep scheduled")
	return nil
}

// Stop halts the cron runner and waits for an in-flight sweep to finish
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// RunSweepNow triggers the sweep outside its schedule
func (s *Service) RunSweepNow(ctx context.Context) (int, error) {
	return s.sequencer.MarkStaleRunning(ctx, s.maxJobLifetime)
}

// LastRun returns the completion time of the most recent sweep, nil before
// the first one.
func (s *Service) LastRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Service) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	swept, err := s.sequencer.MarkStaleRunning(ctx, s.maxJobLifetime)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stale-running sweep failed")
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.lastRun = &now
	s.mu.Unlock()

	if swept > 0 {
		s.logger.Info().Int("swept", swept).Msg("Stale-running sweep completed")
	}
}
