package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/common"
	"github.com/ternarybob/disperse/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	session    interfaces.SessionStorage
	knownError interfaces.KnownErrorStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		session:    NewSessionStorage(db, logger),
		knownError: NewKnownErrorStorage(db, logger),
		logger:     logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// SessionStorage returns the session storage interface
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.session
}

// KnownErrorStorage returns the known error storage interface
func (m *Manager) KnownErrorStorage() interfaces.KnownErrorStorage {
	return m.knownError
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
