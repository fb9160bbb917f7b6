package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/models"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(arbor.NewLogger())
}

func TestMemoryStore_CreateDefaults(t *testing.T) {
	store := newTestStore()

	id := store.Create("")
	require.NotEmpty(t, id)

	record, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusRunning, record.Status)
	assert.Equal(t, models.StageInit, record.Stage)
	assert.False(t, record.CancelRequested)
	assert.False(t, record.StartedAt.IsZero())
}

func TestMemoryStore_CreateResetsExistingID(t *testing.T) {
	store := newTestStore()
	store.Create("job-1")
	store.Update("job-1", models.JobPatch{Processed: models.Int(4)})
	store.MarkError("job-1", models.JobPatch{Message: models.String("boom")})

	store.Create("job-1")

	record, ok := store.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, models.JobStatusRunning, record.Status)
	assert.Equal(t, 0, record.Processed)
	assert.Empty(t, record.Message)
}

func TestMemoryStore_UpdateMergesOnlySetFields(t *testing.T) {
	store := newTestStore()
	id := store.Create("job-merge")

	store.Update(id, models.JobPatch{Total: models.Int(8), Processed: models.Int(2), Success: models.Int(2)})
	store.Update(id, models.JobPatch{Stage: models.String(models.StageFetchingDetails)})

	record, _ := store.Get(id)
	assert.Equal(t, 8, record.Total)
	assert.Equal(t, 2, record.Processed)
	assert.Equal(t, 2, record.Success)
	assert.Equal(t, models.StageFetchingDetails, record.Stage)
}

func TestMemoryStore_UpdateUnknownIsNoop(t *testing.T) {
	store := newTestStore()
	store.Update("missing", models.JobPatch{Processed: models.Int(1)})

	_, ok := store.Get("missing")
	assert.False(t, ok)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := newTestStore()
	id := store.Create("job-copy")
	store.Update(id, models.JobPatch{FailedItems: []models.FailedItem{{ID: "a"}}})

	record, _ := store.Get(id)
	record.Processed = 99
	record.FailedItems[0].ID = "mutated"

	again, _ := store.Get(id)
	assert.Equal(t, 0, again.Processed)
	assert.Equal(t, "a", again.FailedItems[0].ID)
}

func TestMemoryStore_StatusIsForwardOnly(t *testing.T) {
	terminal := []struct {
		name string
		mark func(store *MemoryStore, id string)
		want models.JobStatus
	}{
		{"completed", func(s *MemoryStore, id string) { s.MarkCompleted(id, models.JobPatch{}) }, models.JobStatusCompleted},
		{"error", func(s *MemoryStore, id string) { s.MarkError(id, models.JobPatch{}) }, models.JobStatusError},
		{"cancelled", func(s *MemoryStore, id string) { s.MarkCancelled(id, models.JobPatch{}) }, models.JobStatusCancelled},
	}

	for _, tt := range terminal {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			id := store.Create("")
			tt.mark(store, id)

			store.Update(id, models.JobPatch{Status: models.Status(models.JobStatusRunning), Processed: models.Int(3)})
			store.MarkCompleted(id, models.JobPatch{})
			store.MarkError(id, models.JobPatch{})

			record, _ := store.Get(id)
			assert.Equal(t, tt.want, record.Status)
			assert.Equal(t, 3, record.Processed, "non-status fields still merge")
		})
	}
}

func TestMemoryStore_RequestCancel(t *testing.T) {
	store := newTestStore()
	id := store.Create("job-cancel")

	assert.True(t, store.RequestCancel(id, "cancel_requested"))
	assert.True(t, store.RequestCancel(id, "cancel_requested"), "idempotent")
	assert.False(t, store.RequestCancel("missing", "cancel_requested"))

	record, _ := store.Get(id)
	assert.True(t, record.CancelRequested)
	assert.Equal(t, "cancel_requested", record.Message)
	assert.Equal(t, models.JobStatusRunning, record.Status, "status changes only when the engine observes the flag")
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := newTestStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	running := store.Create("running")
	finished := store.Create("finished")
	store.MarkCompleted(finished, models.JobPatch{})

	store.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh := store.Create("fresh")
	store.MarkCancelled(fresh, models.JobPatch{})

	removed := store.Sweep(time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := store.Get(finished)
	assert.False(t, ok)
	_, ok = store.Get(running)
	assert.True(t, ok, "running records are never swept")
	_, ok = store.Get(fresh)
	assert.True(t, ok)
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	store := newTestStore()
	id := store.Create("job-concurrent")

	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			success++
			n := success
			mu.Unlock()
			store.Update(id, models.JobPatch{Success: models.Int(n)})
			_, _ = store.Get(id)
		}()
	}
	wg.Wait()

	record, _ := store.Get(id)
	assert.True(t, record.Success >= 1 && record.Success <= 50)
}

func TestToken_ObservesCancelRequest(t *testing.T) {
	store := newTestStore()
	id := store.Create("")
	token := NewToken(context.Background(), store, id)

	assert.False(t, token.Cancelled())
	store.RequestCancel(id, "")
	assert.True(t, token.Cancelled())
	assert.Equal(t, id, token.JobID())
}

func TestToken_ObservesContext(t *testing.T) {
	store := newTestStore()
	id := store.Create("")
	ctx, cancel := context.WithCancel(context.Background())
	token := NewToken(ctx, store, id)

	assert.False(t, token.Cancelled())
	cancel()
	assert.True(t, token.Cancelled())
}

func TestSweeper_SweepNow(t *testing.T) {
	store := newTestStore()
	base := time.Now()
	store.now = func() time.Time { return base.Add(-3 * time.Hour) }
	id := store.Create("")
	store.MarkCompleted(id, models.JobPatch{})
	store.now = time.Now

	sweeper := NewSweeper(store, time.Hour, arbor.NewLogger())
	assert.Equal(t, 1, sweeper.SweepNow())
	assert.Equal(t, 0, sweeper.SweepNow())
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	sweeper := NewSweeper(newTestStore(), time.Hour, arbor.NewLogger())
	assert.Error(t, sweeper.Start("not a schedule"))
}
