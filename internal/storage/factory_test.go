package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/jobs"
	"github.com/ternarybob/harvester/internal/storage/badger"
)

func TestNewJobStore(t *testing.T) {
	logger := arbor.NewLogger()

	t.Run("memory", func(t *testing.T) {
		config := common.NewDefaultConfig()
		store, closer, err := NewJobStore(logger, config)
		require.NoError(t, err)
		defer closer.Close()
		assert.IsType(t, &jobs.MemoryStore{}, store)
	})

	t.Run("badger", func(t *testing.T) {
		config := common.NewDefaultConfig()
		config.Storage.Type = "badger"
		config.Storage.Badger.Path = filepath.Join(t.TempDir(), "jobs")

		store, closer, err := NewJobStore(logger, config)
		require.NoError(t, err)
		defer closer.Close()
		assert.IsType(t, &badger.JobStore{}, store)

		id := store.Create("")
		_, ok := store.Get(id)
		assert.True(t, ok)
	})

	t.Run("unsupported", func(t *testing.T) {
		config := common.NewDefaultConfig()
		config.Storage.Type = "sqlite"
		_, _, err := NewJobStore(logger, config)
		assert.Error(t, err)
	})
}
