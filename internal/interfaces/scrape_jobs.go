package interfaces

import (
	"time"

	"github.com/ternarybob/harvester/internal/models"
)

// JobStore holds scrape job progress records.
// Get returns a copy; callers never share state with the store.
type JobStore interface {
	// Create starts a running record. An empty id generates one; an existing id is reset.
	Create(id string) string
	// Update merges a patch into the record. Unknown ids are ignored.
	Update(id string, patch models.JobPatch)
	Get(id string) (*models.JobRecord, bool)
	MarkCompleted(id string, patch models.JobPatch)
	MarkError(id string, patch models.JobPatch)
	MarkCancelled(id string, patch models.JobPatch)
	// RequestCancel flags the record for cancellation without changing its status.
	RequestCancel(id string, message string) bool
	Cleanup(id string)
	// Sweep removes terminal records last updated before now-olderThan.
	Sweep(olderThan time.Duration) int
}

// CancelToken is polled by every stage at safe points.
type CancelToken interface {
	Cancelled() bool
}
