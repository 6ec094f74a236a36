// Package recovery obtains the output records of a finished runner job
// despite the runner's unreliable completion signaling. Four fallback tiers
// are attempted strictly in order; every terminal outcome resolves to a
// persisted source status, never an ambiguous state.
package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/classifier"
	"github.com/ternarybob/disperse/internal/interfaces"
	"github.com/ternarybob/disperse/internal/models"
)

// Recovery result statuses
const (
	StatusRecovered        = "recovered"
	StatusAlreadyRetrieved = "already_retrieved"
	StatusNoResults        = "no_results"
	StatusFailed           = "failed"
)

// Terminal phrases the runner buries in free-text output. Tier 4 inspects
// these when no tier produced record data.
const (
	phraseAlreadyRetrieved = "already retrieved"
	phraseNoResults        = "no results found"
	phraseManuallyStopped  = "manually stopped"
	phraseInvalidArgument  = "invalid argument"
	phraseInvalidParameter = "invalid parameter"
)

// archiveNames are the deterministic object names tried against the
// runner's durable storage for a handle, in order.
var archiveNames = []string{"result.json", "database.json"}

// DefaultTierTimeout bounds each recovery tier so a hanging runner call
// cannot block other sessions' progress.
const DefaultTierTimeout = 45 * time.Second

// Result is the outcome of one recovery attempt
type Result struct {
	JobHandle string               `json:"job_handle"`
	Status    string               `json:"status"`
	Records   []*models.Lead       `json:"records"`
	Tier      int                  `json:"tier,omitempty"`
	Category  models.ErrorCategory `json:"category,omitempty"`
}

// Chain walks the ordered fallback tiers for a job handle
type Chain struct {
	runner      interfaces.RunnerClient
	sessions    interfaces.SessionStorage
	classifier  *classifier.Service
	collector   interfaces.Collector
	logger      arbor.ILogger
	httpClient  *http.Client
	tierTimeout time.Duration
}

// ChainOption configures the Chain
type ChainOption func(*Chain)

// WithTierTimeout sets the per-tier timeout
func WithTierTimeout(timeout time.Duration) ChainOption {
	return func(c *Chain) {
		c.tierTimeout = timeout
	}
}

// WithHTTPClient sets the client used to follow download URLs
func WithHTTPClient(httpClient *http.Client) ChainOption {
	return func(c *Chain) {
		c.httpClient = httpClient
	}
}

// NewChain creates a recovery chain
func NewChain(runner interfaces.RunnerClient, sessions interfaces.SessionStorage, classifierSvc *classifier.Service, collector interfaces.Collector, logger arbor.ILogger, opts ...ChainOption) *Chain {
	c := &Chain{
		runner:      runner,
		sessions:    sessions,
		classifier:  classifierSvc,
		collector:   collector,
		logger:      logger,
		httpClient:  &http.Client{Timeout: DefaultTierTimeout},
		tierTimeout: DefaultTierTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Recover obtains a finished job's records through the tiered fallback
// chain. sessionID and sourceID are optional; when present the owning
// source state is advanced to its terminal status as part of recovery.
// When every tier fails without classification the source stays failed and
// a RecoveryExhausted error is returned.
func (c *Chain) Recover(ctx context.Context, jobHandle, sessionID, sourceID string) (*Result, error) {
	if jobHandle == "" {
		return nil, fmt.Errorf("job handle is required")
	}

	c.logger.Info().
		Str("job_handle", jobHandle).
		Str("session_id", sessionID).
		Str("source_id", sourceID).
		Msg("Starting result recovery")

	var jobStatus *models.JobStatus

	// Tier 1: canonical structured result
	if records, ok := c.tierStructuredFetch(ctx, jobHandle); ok {
		result, escalate, err := c.settleRecords(ctx, jobHandle, sessionID, sourceID, records, 1)
		if !escalate {
			return result, err
		}
	}

	// Tier 2: re-check status, extract records from raw output
	jobStatus = c.fetchStatus(ctx, jobHandle)
	if jobStatus != nil && jobStatus.Finished() {
		if records, ok := c.tierOutputExtract(jobStatus); ok {
			result, escalate, err := c.settleRecords(ctx, jobHandle, sessionID, sourceID, records, 2)
			if !escalate {
				return result, err
			}
		}
	}

	// Tier 3: archival object storage, best-effort
	if records, ok := c.tierArchival(ctx, jobHandle); ok {
		result, escalate, err := c.settleRecords(ctx, jobHandle, sessionID, sourceID, records, 3)
		if !escalate {
			return result, err
		}
	}

	// Tier 4: classify the free-text output
	if jobStatus == nil {
		jobStatus = c.fetchStatus(ctx, jobHandle)
	}
	if result, err := c.tierTextHeuristics(ctx, jobHandle, sessionID, sourceID, jobStatus); result != nil || err != nil {
		return result, err
	}

	// Nothing worked and nothing classified: terminal, not retryable
	c.collector.Incr("recovery.exhausted")
	if err := c.failSource(ctx, sessionID, sourceID); err != nil {
		return nil, err
	}

	c.logger.Warn().
		Str("job_handle", jobHandle).
		Msg("All recovery tiers exhausted")

	return nil, &models.RecoveryExhausted{JobHandle: jobHandle, SessionID: sessionID, SourceID: sourceID}
}

// tierStructuredFetch asks the runner for its canonical result object and
// follows a download URL when the payload is a serialized container.
func (c *Chain) tierStructuredFetch(ctx context.Context, jobHandle string) ([]*models.Lead, bool) {
	tctx, cancel := context.WithTimeout(ctx, c.tierTimeout)
	defer cancel()

	raw, err := c.runner.FetchResult(tctx, jobHandle)
	if err != nil {
		c.logger.Debug().Err(err).Str("job_handle", jobHandle).Msg("Structured fetch failed")
		return nil, false
	}

	return c.materialize(tctx, ParseResultPayload(raw))
}

// tierOutputExtract pulls the record list out of the job's raw output
func (c *Chain) tierOutputExtract(jobStatus *models.JobStatus) ([]*models.Lead, bool) {
	payload, ok := ExtractEmbeddedPayload(jobStatus.Output)
	if !ok {
		return nil, false
	}

	shape := ParseResultPayload(payload)
	if shape.Kind != ShapeRecords || len(shape.Records) == 0 {
		return nil, false
	}
	return shape.Records, true
}

// tierArchival tries the runner's durable object storage under the
// deterministic names derived from the handle. Failures are silent; this
// tier is explicitly best-effort.
func (c *Chain) tierArchival(ctx context.Context, jobHandle string) ([]*models.Lead, bool) {
	tctx, cancel := context.WithTimeout(ctx, c.tierTimeout)
	defer cancel()

	for _, name := range archiveNames {
		data, err := c.runner.FetchArchive(tctx, jobHandle, name)
		if err != nil || len(data) == 0 {
			continue
		}

		shape := ParseResultPayload(data)
		if shape.Kind == ShapeRecords && len(shape.Records) > 0 {
			return shape.Records, true
		}
	}
	return nil, false
}

// tierTextHeuristics classifies the outcome from terminal phrases when no
// record data could be obtained. Every recognized phrase resolves to a
// terminal source status; nil/nil means the text was not classifiable.
func (c *Chain) tierTextHeuristics(ctx context.Context, jobHandle, sessionID, sourceID string, jobStatus *models.JobStatus) (*Result, error) {
	if jobStatus == nil {
		return nil, nil
	}

	output := strings.ToLower(jobStatus.Output)

	switch {
	case strings.Contains(output, phraseAlreadyRetrieved):
		// Results were fetched on an earlier call; success with zero new
		// records, no known-error row
		c.collector.Incr("recovery.already_retrieved")
		if err := c.completeSource(ctx, jobHandle, sessionID, sourceID, 0); err != nil {
			return nil, err
		}
		return &Result{JobHandle: jobHandle, Status: StatusAlreadyRetrieved, Records: []*models.Lead{}, Tier: 4}, nil

	case strings.Contains(output, phraseNoResults) && jobStatus.ExitSignal == models.ExitSignalFailure:
		// Terminal non-error completion: the search genuinely matched
		// nothing. Recorded for analytics, source still completes.
		c.collector.Incr("recovery.no_results")
		c.classifier.RecordWithCategory(ctx, jobHandle, models.CategoryNoResultsFound, jobStatus.Output, jobStatus)
		if err := c.completeSource(ctx, jobHandle, sessionID, sourceID, 0); err != nil {
			return nil, err
		}
		return &Result{JobHandle: jobHandle, Status: StatusNoResults, Records: []*models.Lead{}, Tier: 4, Category: models.CategoryNoResultsFound}, nil

	case strings.Contains(output, phraseManuallyStopped) || jobStatus.State == models.JobStateStopped:
		c.collector.Incr("recovery.manually_stopped")
		c.classifier.RecordWithCategory(ctx, jobHandle, models.CategoryManuallyStopped, jobStatus.Output, jobStatus)
		if err := c.failSource(ctx, sessionID, sourceID); err != nil {
			return nil, err
		}
		return &Result{JobHandle: jobHandle, Status: StatusFailed, Records: []*models.Lead{}, Tier: 4, Category: models.CategoryManuallyStopped}, nil

	case strings.Contains(output, phraseInvalidArgument) || strings.Contains(output, phraseInvalidParameter):
		c.collector.Incr("recovery.invalid_arguments")
		c.classifier.RecordWithCategory(ctx, jobHandle, models.CategoryArgumentValidation, jobStatus.Output, jobStatus)
		if err := c.failSource(ctx, sessionID, sourceID); err != nil {
			return nil, err
		}
		return &Result{JobHandle: jobHandle, Status: StatusFailed, Records: []*models.Lead{}, Tier: 4, Category: models.CategoryArgumentValidation}, nil
	}

	return nil, nil
}

// settleRecords post-processes a tier's records and persists the outcome.
// escalate=true means the batch was entirely incomplete and the caller must
// fall through to the output-text tier even though this tier nominally
// succeeded.
func (c *Chain) settleRecords(ctx context.Context, jobHandle, sessionID, sourceID string, records []*models.Lead, tier int) (*Result, bool, error) {
	if len(records) == 0 {
		return nil, true, nil
	}

	processed, allIncomplete := Postprocess(records)
	if allIncomplete {
		c.logger.Warn().
			Str("job_handle", jobHandle).
			Int("tier", tier).
			Int("count", len(processed)).
			Msg("Batch entirely incomplete, escalating to output-text heuristics")
		return nil, true, nil
	}

	c.collector.Incr(fmt.Sprintf("recovery.tier%d.recovered", tier))
	c.collector.Add("recovery.records", int64(len(processed)))

	if err := c.completeSource(ctx, jobHandle, sessionID, sourceID, len(processed)); err != nil {
		return nil, false, err
	}

	c.logger.Info().
		Str("job_handle", jobHandle).
		Int("tier", tier).
		Int("records", len(processed)).
		Msg("Results recovered")

	return &Result{JobHandle: jobHandle, Status: StatusRecovered, Records: processed, Tier: tier}, false, nil
}

func (c *Chain) fetchStatus(ctx context.Context, jobHandle string) *models.JobStatus {
	tctx, cancel := context.WithTimeout(ctx, c.tierTimeout)
	defer cancel()

	jobStatus, err := c.runner.Status(tctx, jobHandle)
	if err != nil {
		c.logger.Debug().Err(err).Str("job_handle", jobHandle).Msg("Status fetch failed")
		return nil
	}
	return jobStatus
}

// materialize resolves a parsed shape into records, following a download
// URL when the payload pointed elsewhere.
func (c *Chain) materialize(ctx context.Context, shape ResultShape) ([]*models.Lead, bool) {
	switch shape.Kind {
	case ShapeRecords:
		return shape.Records, len(shape.Records) > 0

	case ShapeDownloadURL:
		records, err := c.fetchDownloadURL(ctx, shape.DownloadURL)
		if err != nil {
			c.logger.Debug().Err(err).Str("url", shape.DownloadURL).Msg("Download URL fetch failed")
			return nil, false
		}
		return records, len(records) > 0
	}
	return nil, false
}

func (c *Chain) fetchDownloadURL(ctx context.Context, url string) ([]*models.Lead, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch download URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download URL returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}

	shape := ParseResultPayload(json.RawMessage(body))
	if shape.Kind != ShapeRecords {
		return nil, fmt.Errorf("download body is not a record list")
	}
	return shape.Records, nil
}

// completeSource persists the terminal success status for the owning
// source state. Store failures are fatal; recovery must not report success
// it could not make durable.
func (c *Chain) completeSource(ctx context.Context, jobHandle, sessionID, sourceID string, count int) error {
	if sessionID == "" || sourceID == "" {
		return nil
	}

	if err := c.sessions.UpdateSourceResults(ctx, sessionID, sourceID, count, models.SourceStatusCompleted); err != nil {
		return err
	}
	return c.sessions.AppendExecutionHistory(ctx, sessionID, models.ExecutionHistoryEntry{
		Event:     "recovered",
		SourceID:  sourceID,
		JobHandle: jobHandle,
		Results:   count,
	})
}

func (c *Chain) failSource(ctx context.Context, sessionID, sourceID string) error {
	if sessionID == "" || sourceID == "" {
		return nil
	}
	return c.sessions.UpdateSourceStatus(ctx, sessionID, sourceID, models.SourceStatusFailed)
}
