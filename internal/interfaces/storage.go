// -----------------------------------------------------------------------
// Narrow repository interfaces for the distribution engine. The badger
// implementations live in internal/storage/badger; everything above this
// package depends on these interfaces only.
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/disperse/internal/models"
)

// SessionStorage - interface for session and source-state persistence.
// All writes are upserts keyed by natural identifiers (session id;
// session id + source id) so repeated calls with the same payload are
// idempotent.
type SessionStorage interface {
	// Session operations
	CreateSession(ctx context.Context, session *models.DistributionSession) error
	GetActiveSessionByCampaign(ctx context.Context, campaignID string) (*models.DistributionSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.DistributionSession, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus) error
	UpdateSessionProgress(ctx context.Context, sessionID string, offset, distributed, remaining, sequence int) error
	AppendExecutionHistory(ctx context.Context, sessionID string, entry models.ExecutionHistoryEntry) error
	DeleteSession(ctx context.Context, sessionID string) error

	// Source state operations
	CreateSourceStates(ctx context.Context, sessionID string, states []*models.SourceState) error
	ListSourceStates(ctx context.Context, sessionID string) ([]*models.SourceState, error)
	GetSourceState(ctx context.Context, sessionID, sourceID string) (*models.SourceState, error)
	GetSourceStateByHandle(ctx context.Context, jobHandle string) (*models.SourceState, error)
	ListSourceStatesByStatus(ctx context.Context, status models.SourceStatus) ([]*models.SourceState, error)
	UpdateSourceStatus(ctx context.Context, sessionID, sourceID string, status models.SourceStatus) error
	UpdateSourceJobHandle(ctx context.Context, sessionID, sourceID, handle string) error
	UpdateSourceResults(ctx context.Context, sessionID, sourceID string, count int, status models.SourceStatus) error
}

// KnownErrorStorage - interface for the known-error taxonomy rows
type KnownErrorStorage interface {
	SaveKnownError(ctx context.Context, knownError *models.KnownError) error
	GetKnownError(ctx context.Context, jobHandle string) (*models.KnownError, error)
	ListKnownErrors(ctx context.Context, category models.ErrorCategory) ([]*models.KnownError, error)
	ResolveKnownError(ctx context.Context, jobHandle, notes string) error
	CountKnownErrors(ctx context.Context) (int, error)
}

// StorageManager provides access to all storage interfaces and owns the
// underlying database connection.
type StorageManager interface {
	SessionStorage() SessionStorage
	KnownErrorStorage() KnownErrorStorage
	Close() error
}
