package storage

import (
	"fmt"
	"io"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/jobs"
	"github.com/ternarybob/harvester/internal/storage/badger"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewJobStore creates the job store selected by config.
// The returned closer releases the backing database, if any.
func NewJobStore(logger arbor.ILogger, config *common.Config) (interfaces.JobStore, io.Closer, error) {
	switch config.Storage.Type {
	case "", "memory":
		logger.Debug().Msg("Using in-memory job store")
		return jobs.NewMemoryStore(logger), nopCloser{}, nil
	case "badger":
		db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug().Str("path", config.Storage.Badger.Path).Msg("Using Badger job store")
		return badger.NewJobStore(db, logger), db, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s (expected 'memory' or 'badger')", config.Storage.Type)
	}
}
