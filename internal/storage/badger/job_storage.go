package badger

import (
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStore persists scrape job records in Badger so progress survives a
// restart of the HTTP process. Semantics match the in-memory store.
type JobStore struct {
	db     *BadgerDB
	mu     sync.Mutex // serializes read-modify-write cycles
	now    func() time.Time
	logger arbor.ILogger
}

var _ interfaces.JobStore = (*JobStore)(nil)

// NewJobStore creates a Badger-backed job store
func NewJobStore(db *BadgerDB, logger arbor.ILogger) *JobStore {
	return &JobStore{
		db:     db,
		now:    time.Now,
		logger: logger,
	}
}

func (s *JobStore) Create(id string) string {
	if id == "" {
		id = common.NewJobID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().Upsert(id, models.NewJobRecord(id, s.now())); err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("Failed to save job record")
	}
	return id
}

func (s *JobStore) Update(id string, patch models.JobPatch) {
	s.mutate(id, func(record *models.JobRecord) {
		patch.Apply(record, s.now())
	})
}

func (s *JobStore) Get(id string) (*models.JobRecord, bool) {
	var record models.JobRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if !errors.Is(err, badgerhold.ErrNotFound) {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to load job record")
		}
		return nil, false
	}
	return &record, true
}

func (s *JobStore) MarkCompleted(id string, patch models.JobPatch) {
	patch.Status = models.Status(models.JobStatusCompleted)
	s.Update(id, patch)
}

func (s *JobStore) MarkError(id string, patch models.JobPatch) {
	patch.Status = models.Status(models.JobStatusError)
	s.Update(id, patch)
}

func (s *JobStore) MarkCancelled(id string, patch models.JobPatch) {
	patch.Status = models.Status(models.JobStatusCancelled)
	s.Update(id, patch)
}

func (s *JobStore) RequestCancel(id string, message string) bool {
	return s.mutate(id, func(record *models.JobRecord) {
		models.CancelPatch(message).Apply(record, s.now())
	})
}

func (s *JobStore) Cleanup(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().Delete(id, &models.JobRecord{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to delete job record")
	}
}

func (s *JobStore) Sweep(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	var records []models.JobRecord
	query := badgerhold.Where("Status").In(
		models.JobStatusCompleted,
		models.JobStatusError,
		models.JobStatusCancelled,
	)
	if err := s.db.Store().Find(&records, query); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list terminal job records")
		return 0
	}

	removed := 0
	for i := range records {
		if !records[i].Expired(cutoff) {
			continue
		}
		if err := s.db.Store().Delete(records[i].ID, &models.JobRecord{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", records[i].ID).Msg("Failed to sweep job record")
			continue
		}
		removed++
	}
	return removed
}

// mutate loads, changes and saves a record under the store lock.
// Returns false when the record does not exist.
func (s *JobStore) mutate(id string, fn func(record *models.JobRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record models.JobRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if !errors.Is(err, badgerhold.ErrNotFound) {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to load job record")
		}
		return false
	}

	fn(&record)

	if err := s.db.Store().Upsert(id, &record); err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("Failed to save job record")
		return false
	}
	return true
}
