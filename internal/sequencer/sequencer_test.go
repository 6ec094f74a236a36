package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/classifier"
	"github.com/ternarybob/disperse/internal/common"
	"github.com/ternarybob/disperse/internal/interfaces"
	"github.com/ternarybob/disperse/internal/metrics"
	"github.com/ternarybob/disperse/internal/models"
	badgerstore "github.com/ternarybob/disperse/internal/storage/badger"
)

// fakeRunner scripts the launch behavior per test
type fakeRunner struct {
	launches   atomic.Int64
	failFirst  int64 // number of leading launch calls to fail
	lastParams models.LaunchParams
	onLaunch   func() // invoked before each launch returns
}

func (r *fakeRunner) Launch(ctx context.Context, params models.LaunchParams) (string, error) {
	n := r.launches.Add(1)
	r.lastParams = params
	if r.onLaunch != nil {
		r.onLaunch()
	}
	if n <= r.failFirst {
		return "", fmt.Errorf("runner unavailable")
	}
	return fmt.Sprintf("job-%d", n), nil
}

func (r *fakeRunner) Status(ctx context.Context, handle string) (*models.JobStatus, error) {
	return nil, fmt.Errorf("not scripted")
}

func (r *fakeRunner) FetchResult(ctx context.Context, handle string) (json.RawMessage, error) {
	return nil, fmt.Errorf("not scripted")
}

func (r *fakeRunner) FetchArchive(ctx context.Context, handle, name string) ([]byte, error) {
	return nil, fmt.Errorf("not scripted")
}

func (r *fakeRunner) Stop(ctx context.Context, handle string) error {
	return nil
}

func newTestService(t *testing.T, runner interfaces.RunnerClient) (*Service, interfaces.SessionStorage, interfaces.KnownErrorStorage) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage := badgerstore.NewSessionStorage(db, logger)
	knownErrors := badgerstore.NewKnownErrorStorage(db, logger)
	collector := metrics.NewCollector()
	classifierSvc := classifier.NewService(knownErrors, collector, logger)

	policy := NewDefaultBackoffPolicy()
	policy.MaxAttempts = 2
	policy.Initial = time.Millisecond

	svc, err := NewService(storage, runner, classifierSvc, collector, logger, policy)
	require.NoError(t, err)
	return svc, storage, knownErrors
}

func twoSourceRequest(campaignID string) *models.InitializeSequenceRequest {
	return &models.InitializeSequenceRequest{
		CampaignID: campaignID,
		Quota:      300,
		Sources: []models.SourceInput{
			{SourceID: "src-b", Template: "tpl-b", Priority: 2},
			{SourceID: "src-a", Template: "tpl-a", Priority: 1},
		},
	}
}

func TestResumeOrStartCreatesSession(t *testing.T) {
	svc, storage, _ := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, 300, session.TotalQuota)
	assert.Equal(t, 300, session.RemainingLeads)
	assert.Equal(t, 0, session.TotalDistributed)
	assert.Equal(t, 2, session.TotalSources)

	// Plan ordered by priority: src-a (p1) gets 200, src-b (p2) gets 100
	require.Len(t, session.SourcePlan, 2)
	assert.Equal(t, "src-a", session.SourcePlan[0].SourceID)
	assert.Equal(t, 200, session.SourcePlan[0].Allocated)
	assert.Equal(t, "src-b", session.SourcePlan[1].SourceID)
	assert.Equal(t, 100, session.SourcePlan[1].Allocated)

	states, err := storage.ListSourceStates(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, st := range states {
		assert.Equal(t, models.SourceStatusPending, st.Status)
	}
}

func TestResumeOrStartAssignsSourceIDs(t *testing.T) {
	svc, storage, _ := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, &models.InitializeSequenceRequest{
		CampaignID: "campaign-1",
		Quota:      100,
		Sources: []models.SourceInput{
			{Template: "tpl-a", Priority: 1},
			{SourceID: "src-named", Template: "tpl-b", Priority: 2},
		},
	})
	require.NoError(t, err)

	// The blank id is filled before the plan is stored, so the plan and the
	// source states agree on it
	require.Len(t, session.SourcePlan, 2)
	generated := session.SourcePlan[0].SourceID
	assert.True(t, strings.HasPrefix(generated, "src_"))
	assert.Equal(t, "src-named", session.SourcePlan[1].SourceID)

	states, err := storage.ListSourceStates(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, generated, states[0].SourceID)
}

func TestResumeOrStartResumesActiveSession(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	first, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	// A second call resumes; its source list is ignored in favor of the
	// stored plan
	again, err := svc.ResumeOrStart(ctx, &models.InitializeSequenceRequest{
		CampaignID: "campaign-1",
		Quota:      9999,
		Sources:    []models.SourceInput{{SourceID: "other", Template: "tpl-x", Priority: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, again.SessionID)
	assert.Equal(t, 300, again.TotalQuota)
	assert.Len(t, again.SourcePlan, 2)
}

func TestResumeOrStartRejectsInvalidRequest(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeRunner{})

	_, err := svc.ResumeOrStart(context.Background(), &models.InitializeSequenceRequest{
		CampaignID: "campaign-1",
		Quota:      0,
		Sources:    []models.SourceInput{{SourceID: "s", Template: "t", Priority: 1}},
	})

	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestAdvanceLaunchesInPriorityOrder(t *testing.T) {
	runner := &fakeRunner{}
	svc, _, _ := newTestService(t, runner)
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	result, err := svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
	require.NoError(t, err)

	assert.True(t, result.Launched)
	assert.Equal(t, "src-a", result.Source.SourceID)
	assert.Equal(t, models.SourceStatusRunning, result.Source.Status)
	assert.NotEmpty(t, result.JobHandle)

	// Counters move at launch time
	assert.Equal(t, 200, result.Session.TotalDistributed)
	assert.Equal(t, 100, result.Session.RemainingLeads)
	assert.Equal(t, 200, result.Session.CurrentOffset)
	assert.Equal(t, 1, result.Session.CurrentSequence)

	// Launch parameters come from the stored allocation
	assert.Equal(t, "tpl-a", runner.lastParams.Template)
	assert.Equal(t, 200, runner.lastParams.ResultCount)
}

func TestAdvanceSingleFlight(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	first, err := svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
	require.NoError(t, err)
	require.True(t, first.Launched)

	// With a job in flight, advancing again must not launch a second one
	second, err := svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
	require.NoError(t, err)

	assert.False(t, second.Launched)
	assert.Equal(t, first.JobHandle, second.JobHandle)
	assert.Equal(t, "src-a", second.Source.SourceID)

	// Counters did not move on the no-op call
	assert.Equal(t, 200, second.Session.TotalDistributed)
}

func TestAdvanceThroughToCompletion(t *testing.T) {
	svc, storage, _ := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	for _, expected := range []struct {
		sourceID    string
		distributed int
	}{
		{"src-a", 200},
		{"src-b", 300},
	} {
		result, err := svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
		require.NoError(t, err)
		require.True(t, result.Launched)
		assert.Equal(t, expected.sourceID, result.Source.SourceID)
		assert.Equal(t, expected.distributed, result.Session.TotalDistributed)

		// Invariant holds after every step
		assert.Equal(t, result.Session.TotalQuota, result.Session.TotalDistributed+result.Session.RemainingLeads)

		// Simulate the job finishing and its results being recovered
		require.NoError(t, storage.UpdateSourceResults(ctx, session.SessionID, expected.sourceID, 10, models.SourceStatusCompleted))
	}

	// No pending source left: the next advance finalizes the session
	final, err := svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
	require.NoError(t, err)
	assert.True(t, final.Done)
	assert.False(t, final.Launched)
	assert.Equal(t, models.SessionStatusCompleted, final.Session.Status)

	// Advancing a completed session stays a no-op
	again, err := svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
	require.NoError(t, err)
	assert.True(t, again.Done)
}

func TestAdvanceMarksRunningBeforeLaunch(t *testing.T) {
	runner := &fakeRunner{}
	svc, storage, _ := newTestService(t, runner)
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	// The persisted status at the moment the runner is invoked must already
	// be running; a crash mid-launch must never leave a pending source with
	// a live job behind it
	var observed []models.SourceStatus
	runner.onLaunch = func() {
		st, err := storage.GetSourceState(ctx, session.SessionID, "src-a")
		require.NoError(t, err)
		observed = append(observed, st.Status)
		assert.NotNil(t, st.ExecutedAt)
	}

	result, err := svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
	require.NoError(t, err)
	require.True(t, result.Launched)

	require.Len(t, observed, 1)
	assert.Equal(t, models.SourceStatusRunning, observed[0])
}

func TestAdvanceLaunchFailurePassesThroughRunning(t *testing.T) {
	runner := &fakeRunner{failFirst: 99}
	svc, storage, _ := newTestService(t, runner)
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	var observed []models.SourceStatus
	runner.onLaunch = func() {
		st, err := storage.GetSourceState(ctx, session.SessionID, "src-a")
		require.NoError(t, err)
		observed = append(observed, st.Status)
	}

	_, err = svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
	var launchErr *models.LaunchError
	require.ErrorAs(t, err, &launchErr)

	// Every attempt saw the durable running marker, and the failure lands
	// on running to failed, never pending to failed
	require.Len(t, observed, 2)
	for _, status := range observed {
		assert.Equal(t, models.SourceStatusRunning, status)
	}

	st, err := storage.GetSourceState(ctx, session.SessionID, "src-a")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusFailed, st.Status)
}

func TestAdvanceLaunchFailureMarksSourceFailed(t *testing.T) {
	runner := &fakeRunner{failFirst: 99}
	svc, storage, _ := newTestService(t, runner)
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	_, err = svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})

	var launchErr *models.LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "src-a", launchErr.SourceID)

	// Bounded retries: two attempts, then give up
	assert.Equal(t, int64(2), runner.launches.Load())

	st, err := storage.GetSourceState(ctx, session.SessionID, "src-a")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusFailed, st.Status)

	// Session stays active; the next advance moves on to src-b
	runner.failFirst = 0
	result, err := svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
	require.NoError(t, err)
	assert.True(t, result.Launched)
	assert.Equal(t, "src-b", result.Source.SourceID)
}

func TestAdvanceAppliesOverrides(t *testing.T) {
	runner := &fakeRunner{}
	svc, _, _ := newTestService(t, runner)
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	_, err = svc.Advance(ctx, &models.AdvanceSequenceRequest{
		SessionID: session.SessionID,
		Overrides: &models.LaunchOverrides{ResultCount: 50, Template: "tpl-custom"},
	})
	require.NoError(t, err)

	assert.Equal(t, "tpl-custom", runner.lastParams.Template)
	assert.Equal(t, 50, runner.lastParams.ResultCount)
}

func TestAdvanceUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeRunner{})

	_, err := svc.Advance(context.Background(), &models.AdvanceSequenceRequest{SessionID: "ses_missing"})
	require.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestStatusView(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	view, err := svc.Status(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, view.Session.SessionID)
	require.Len(t, view.Sources, 2)
	assert.Equal(t, "src-a", view.Sources[0].SourceID)
	assert.Equal(t, "src-b", view.Sources[1].SourceID)

	_, err = svc.Status(ctx, "ses_missing")
	require.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestMarkStaleRunning(t *testing.T) {
	svc, storage, knownErrors := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	// A source stuck in running since long before the lifetime bound
	stale := time.Now().Add(-3 * time.Hour)
	require.NoError(t, storage.CreateSourceStates(ctx, session.SessionID, []*models.SourceState{{
		Key:           models.StateKey(session.SessionID, "src-stale"),
		SessionID:     session.SessionID,
		SourceID:      "src-stale",
		Template:      "tpl-a",
		SequenceOrder: 9,
		JobHandle:     "job-stale",
		Status:        models.SourceStatusRunning,
		ExecutedAt:    &stale,
	}}))

	swept, err := svc.MarkStaleRunning(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	st, err := storage.GetSourceState(ctx, session.SessionID, "src-stale")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusFailed, st.Status)

	known, err := knownErrors.GetKnownError(ctx, "job-stale")
	require.NoError(t, err)
	require.NotNil(t, known)
	assert.Equal(t, models.CategoryConnectivity, known.Category)
}

func TestMarkStaleRunningLeavesFreshJobs(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	session, err := svc.ResumeOrStart(ctx, twoSourceRequest("campaign-1"))
	require.NoError(t, err)

	_, err = svc.Advance(ctx, &models.AdvanceSequenceRequest{SessionID: session.SessionID})
	require.NoError(t, err)

	swept, err := svc.MarkStaleRunning(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, swept)
}
