package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/classifier"
	"github.com/ternarybob/disperse/internal/common"
	"github.com/ternarybob/disperse/internal/handlers"
	"github.com/ternarybob/disperse/internal/interfaces"
	"github.com/ternarybob/disperse/internal/metrics"
	"github.com/ternarybob/disperse/internal/recovery"
	"github.com/ternarybob/disperse/internal/runner"
	"github.com/ternarybob/disperse/internal/sequencer"
	"github.com/ternarybob/disperse/internal/services/scheduler"
	"github.com/ternarybob/disperse/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager
	RunnerClient   interfaces.RunnerClient
	Collector      interfaces.Collector

	// Core services
	ClassifierService *classifier.Service
	SequencerService  *sequencer.Service
	RecoveryChain     *recovery.Chain
	SchedulerService  *scheduler.Service

	// HTTP handlers
	SequenceHandler    *handlers.SequenceHandler
	RecoveryHandler    *handlers.RecoveryHandler
	KnownErrorHandler  *handlers.KnownErrorHandler
	StatusHandler      *handlers.StatusHandler
	MaintenanceHandler *handlers.MaintenanceHandler
}

// New wires the full application: storage, runner client, services,
// scheduler, and HTTP handlers.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    config,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
		Collector: metrics.NewCollector(),
	}

	if err := a.initStorage(); err != nil {
		cancel()
		return nil, err
	}
	if err := a.initRunnerClient(); err != nil {
		cancel()
		a.StorageManager.Close()
		return nil, err
	}
	if err := a.initServices(); err != nil {
		cancel()
		a.StorageManager.Close()
		return nil, err
	}
	a.initHandlers()

	if config.Scheduler.Enabled {
		if err := a.SchedulerService.Start(); err != nil {
			cancel()
			a.StorageManager.Close()
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	logger.Info().
		Str("environment", config.Environment).
		Bool("scheduler_enabled", config.Scheduler.Enabled).
		Msg("Application initialized")

	return a, nil
}

func (a *App) initStorage() error {
	manager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = manager
	return nil
}

func (a *App) initRunnerClient() error {
	cfg := a.Config.Runner

	opts := []runner.ClientOption{
		runner.WithLogger(a.Logger),
		runner.WithTimeout(common.ParseDuration(cfg.Timeout, runner.DefaultTimeout)),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, runner.WithRateLimit(cfg.RateLimit))
	}
	if cfg.StorageBaseURL != "" {
		opts = append(opts, runner.WithStorageBaseURL(cfg.StorageBaseURL))
	}

	client, err := runner.NewClient(cfg.BaseURL, cfg.APIKey, opts...)
	if err != nil {
		return fmt.Errorf("failed to create runner client: %w", err)
	}
	a.RunnerClient = client
	return nil
}

func (a *App) initServices() error {
	sessions := a.StorageManager.SessionStorage()
	knownErrors := a.StorageManager.KnownErrorStorage()

	a.ClassifierService = classifier.NewService(knownErrors, a.Collector, a.Logger)

	sequencerSvc, err := sequencer.NewService(
		sessions,
		a.RunnerClient,
		a.ClassifierService,
		a.Collector,
		a.Logger,
		sequencer.PolicyFromConfig(a.Config.Sequencer),
	)
	if err != nil {
		return fmt.Errorf("failed to create sequencer: %w", err)
	}
	a.SequencerService = sequencerSvc

	tierTimeout := common.ParseDuration(a.Config.Recovery.TierTimeout, recovery.DefaultTierTimeout)
	a.RecoveryChain = recovery.NewChain(
		a.RunnerClient,
		sessions,
		a.ClassifierService,
		a.Collector,
		a.Logger,
		recovery.WithTierTimeout(tierTimeout),
		recovery.WithHTTPClient(&http.Client{Timeout: tierTimeout}),
	)

	maxJobLifetime := common.ParseDuration(a.Config.Sequencer.MaxJobLifetime, 2*time.Hour)
	schedulerSvc, err := scheduler.NewService(a.SequencerService, a.Config.Scheduler, maxJobLifetime, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	a.SchedulerService = schedulerSvc

	return nil
}

func (a *App) initHandlers() {
	sessions := a.StorageManager.SessionStorage()
	knownErrors := a.StorageManager.KnownErrorStorage()

	a.SequenceHandler = handlers.NewSequenceHandler(a.SequencerService, a.Logger)
	a.RecoveryHandler = handlers.NewRecoveryHandler(a.RecoveryChain, sessions, a.Logger)
	a.KnownErrorHandler = handlers.NewKnownErrorHandler(knownErrors, a.ClassifierService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Collector, knownErrors, a.Logger)
	a.MaintenanceHandler = handlers.NewMaintenanceHandler(a.SchedulerService, a.Logger)
}

// Close shuts down the application components in reverse dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}
	a.cancelCtx()

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
