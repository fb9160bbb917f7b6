package jobs

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

// MemoryStore keeps job records in process memory.
// Records are lost on restart; callers must tolerate "not found".
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*models.JobRecord
	now    func() time.Time
	logger arbor.ILogger
}

var _ interfaces.JobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory job store
func NewMemoryStore(logger arbor.ILogger) *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*models.JobRecord),
		now:    time.Now,
		logger: logger,
	}
}

func (s *MemoryStore) Create(id string) string {
	if id == "" {
		id = common.NewJobID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		s.logger.Debug().Str("job_id", id).Msg("Resetting existing job record")
	}
	s.jobs[id] = models.NewJobRecord(id, s.now())
	return id
}

func (s *MemoryStore) Update(id string, patch models.JobPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[id]
	if !ok {
		return
	}
	patch.Apply(record, s.now())
}

func (s *MemoryStore) Get(id string) (*models.JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

func (s *MemoryStore) MarkCompleted(id string, patch models.JobPatch) {
	patch.Status = models.Status(models.JobStatusCompleted)
	s.Update(id, patch)
}

func (s *MemoryStore) MarkError(id string, patch models.JobPatch) {
	patch.Status = models.Status(models.JobStatusError)
	s.Update(id, patch)
}

func (s *MemoryStore) MarkCancelled(id string, patch models.JobPatch) {
	patch.Status = models.Status(models.JobStatusCancelled)
	s.Update(id, patch)
}

func (s *MemoryStore) RequestCancel(id string, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[id]
	if !ok {
		return false
	}
	models.CancelPatch(message).Apply(record, s.now())
	return true
}

func (s *MemoryStore) Cleanup(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

func (s *MemoryStore) Sweep(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.jobs {
		if record.Expired(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
