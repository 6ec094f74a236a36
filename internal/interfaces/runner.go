package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/disperse/internal/models"
)

// RunnerClient is the consumed surface of the external job-execution
// platform. The platform accepts one long-running job per launch and
// returns an opaque handle; results become available only after the job
// finishes and may vanish soon after completion. None of these calls are
// retried by the client layer.
type RunnerClient interface {
	// Launch starts a job for the given parameters and returns its handle
	Launch(ctx context.Context, params models.LaunchParams) (string, error)

	// Status returns the runner's view of a launched job, including its
	// free-text output
	Status(ctx context.Context, handle string) (*models.JobStatus, error)

	// FetchResult returns the runner's canonical structured result for a
	// finished job. The payload shape varies: a bare record array, an
	// object with a named array field, or a container holding a download
	// URL instead of inline data.
	FetchResult(ctx context.Context, handle string) (json.RawMessage, error)

	// FetchArchive retrieves a named object from the runner's durable
	// object storage for a handle. Best-effort; callers treat failures as
	// a signal to try the next recovery tier.
	FetchArchive(ctx context.Context, handle, name string) ([]byte, error)

	// Stop asks the runner to terminate an in-flight job
	Stop(ctx context.Context, handle string) error
}
