package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/harvester/internal/models"
)

func newTestJobStore(t *testing.T) *JobStore {
	t.Helper()

	tmpDir := t.TempDir()
	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	return NewJobStore(db, arbor.NewLogger())
}

func TestJobStore_CreateAndGet(t *testing.T) {
	store := newTestJobStore(t)

	id := store.Create("job-1")
	assert.Equal(t, "job-1", id)

	record, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusRunning, record.Status)
	assert.Equal(t, models.StageInit, record.Stage)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestJobStore_PatchesPersist(t *testing.T) {
	store := newTestJobStore(t)
	id := store.Create("")

	store.Update(id, models.JobPatch{
		Stage:         models.String(models.StageScanningItems),
		SectionsTotal: models.Int(4),
		Meta:          map[string]interface{}{"url": "https://www.example.com/store/x"},
	})
	store.Update(id, models.JobPatch{SectionsProcessed: models.Int(2)})

	record, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.StageScanningItems, record.Stage)
	assert.Equal(t, 4, record.SectionsTotal)
	assert.Equal(t, 2, record.SectionsProcessed)
	assert.Equal(t, "https://www.example.com/store/x", record.Meta["url"])
}

func TestJobStore_TerminalStatusIsSticky(t *testing.T) {
	store := newTestJobStore(t)
	id := store.Create("")

	store.MarkCancelled(id, models.JobPatch{Message: models.String("cancelled_during_scan")})
	store.MarkCompleted(id, models.JobPatch{})

	record, _ := store.Get(id)
	assert.Equal(t, models.JobStatusCancelled, record.Status)
	assert.Equal(t, "cancelled_during_scan", record.Message)
}

func TestJobStore_RequestCancelAndCleanup(t *testing.T) {
	store := newTestJobStore(t)
	id := store.Create("")

	assert.True(t, store.RequestCancel(id, "cancel_requested"))
	assert.False(t, store.RequestCancel("missing", "cancel_requested"))

	record, _ := store.Get(id)
	assert.True(t, record.CancelRequested)

	store.Cleanup(id)
	_, ok := store.Get(id)
	assert.False(t, ok)
}

func TestJobStore_Sweep(t *testing.T) {
	store := newTestJobStore(t)
	past := time.Now().Add(-2 * time.Hour)
	store.now = func() time.Time { return past }

	old := store.Create("old")
	store.MarkError(old, models.JobPatch{})
	running := store.Create("running")

	store.now = time.Now
	recent := store.Create("recent")
	store.MarkCompleted(recent, models.JobPatch{})

	assert.Equal(t, 1, store.Sweep(time.Hour))

	_, ok := store.Get(old)
	assert.False(t, ok)
	_, ok = store.Get(running)
	assert.True(t, ok)
	_, ok = store.Get(recent)
	assert.True(t, ok)
}
