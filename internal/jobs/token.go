package jobs

import (
	"context"

	"github.com/ternarybob/harvester/internal/interfaces"
)

// Token is the cancellation handle threaded through every stage of a job.
// It reports cancelled once the job's record carries a cancel request or
// the owning context has ended.
type Token struct {
	ctx   context.Context
	store interfaces.JobStore
	jobID string
}

var _ interfaces.CancelToken = (*Token)(nil)

// NewToken binds a token to a job record
func NewToken(ctx context.Context, store interfaces.JobStore, jobID string) *Token {
	return &Token{ctx: ctx, store: store, jobID: jobID}
}

func (t *Token) Cancelled() bool {
	if t.ctx != nil && t.ctx.Err() != nil {
		return true
	}
	record, ok := t.store.Get(t.jobID)
	return ok && record.CancelRequested
}

// JobID returns the job the token observes
func (t *Token) JobID() string {
	return t.jobID
}
