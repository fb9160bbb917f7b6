// -----------------------------------------------------------------------
// Scrape Job - progress record shared between the engine and pollers
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus is the lifecycle state of a scrape job.
// Transitions are forward-only: running -> completed | error | cancelled.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError || s == JobStatusCancelled
}

// Job stages reported while a scrape is running
const (
	StageInit               = "init"
	StageNavigating         = "navigating"
	StageScanningCategories = "scanning_categories"
	StageScanningItems      = "scanning_items"
	StageItemsCollected     = "items_collected"
	StageFetchingDetails    = "fetching_details"
	StageRetryingDetails    = "retrying_details"
	StageCompleted          = "completed"
	StageCancelled          = "cancelled"
	StageError              = "error"
)

// FailedItem identifies an item whose detail payload could not be fetched.
type FailedItem struct {
	ID    string `json:"id"`
	Href  string `json:"href"`
	Title string `json:"title"`
}

// JobRecord is the progress record polled by remote callers.
type JobRecord struct {
	ID                string                 `json:"id" badgerhold:"key"`
	Status            JobStatus              `json:"status" badgerhold:"index"`
	Stage             string                 `json:"stage,omitempty"`
	Message           string                 `json:"message,omitempty"`
	Processed         int                    `json:"processed"`
	Success           int                    `json:"success"`
	Fail              int                    `json:"fail"`
	Total             int                    `json:"total"`
	SectionsProcessed int                    `json:"sectionsProcessed"`
	SectionsTotal     int                    `json:"sectionsTotal"`
	ItemsDiscovered   int                    `json:"itemsDiscovered"`
	RetryRound        int                    `json:"retryRound"`
	RetryPending      int                    `json:"retryPending"`
	FailedItems       []FailedItem           `json:"failedItems,omitempty"`
	CancelRequested   bool                   `json:"cancelRequested"`
	Meta              map[string]interface{} `json:"meta,omitempty"`
	StartedAt         time.Time              `json:"startedAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// NewJobRecord returns a fresh running record in the init stage.
func NewJobRecord(id string, now time.Time) *JobRecord {
	return &JobRecord{
		ID:        id,
		Status:    JobStatusRunning,
		Stage:     StageInit,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	c := *j
	if j.FailedItems != nil {
		c.FailedItems = append([]FailedItem(nil), j.FailedItems...)
	}
	if j.Meta != nil {
		c.Meta = make(map[string]interface{}, len(j.Meta))
		for k, v := range j.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

// JobPatch carries a partial update. Nil fields leave the record unchanged.
type JobPatch struct {
	Status            *JobStatus
	Stage             *string
	Message           *string
	Processed         *int
	Success           *int
	Fail              *int
	Total             *int
	SectionsProcessed *int
	SectionsTotal     *int
	ItemsDiscovered   *int
	RetryRound        *int
	RetryPending      *int
	FailedItems       []FailedItem
	CancelRequested   *bool
	Meta              map[string]interface{}
}

// Apply merges the patch into the record and stamps UpdatedAt.
// A status change on a terminal record is ignored.
func (p JobPatch) Apply(j *JobRecord, now time.Time) {
	if p.Status != nil && !j.Status.IsTerminal() {
		j.Status = *p.Status
	}
	setString(&j.Stage, p.Stage)
	setString(&j.Message, p.Message)
	setInt(&j.Processed, p.Processed)
	setInt(&j.Success, p.Success)
	setInt(&j.Fail, p.Fail)
	setInt(&j.Total, p.Total)
	setInt(&j.SectionsProcessed, p.SectionsProcessed)
	setInt(&j.SectionsTotal, p.SectionsTotal)
	setInt(&j.ItemsDiscovered, p.ItemsDiscovered)
	setInt(&j.RetryRound, p.RetryRound)
	setInt(&j.RetryPending, p.RetryPending)
	if p.FailedItems != nil {
		j.FailedItems = append([]FailedItem(nil), p.FailedItems...)
	}
	if p.CancelRequested != nil {
		j.CancelRequested = *p.CancelRequested
	}
	if p.Meta != nil {
		if j.Meta == nil {
			j.Meta = make(map[string]interface{}, len(p.Meta))
		}
		for k, v := range p.Meta {
			j.Meta[k] = v
		}
	}
	j.UpdatedAt = now
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Helpers for building patches inline
func Status(s JobStatus) *JobStatus { return &s }
func String(s string) *string      { return &s }
func Int(i int) *int               { return &i }
func Bool(b bool) *bool            { return &b }

// CancelPatch flags a record for cancellation. Status is left to the engine.
func CancelPatch(message string) JobPatch {
	patch := JobPatch{CancelRequested: Bool(true)}
	if message != "" {
		patch.Message = String(message)
	}
	return patch
}

// Expired reports whether a terminal record was last updated before cutoff.
func (j *JobRecord) Expired(cutoff time.Time) bool {
	return j.Status.IsTerminal() && j.UpdatedAt.Before(cutoff)
}
