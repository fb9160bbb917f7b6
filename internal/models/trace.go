package models

import (
	"sync"
	"time"
)

// Trace records the debug steps of one scrape job. Safe for concurrent use;
// a nil *Trace discards everything.
type Trace struct {
	mu    sync.Mutex
	debug *Debug
	now   func() time.Time
}

// NewTrace starts an empty trace for jobID
func NewTrace(jobID string) *Trace {
	return &Trace{
		debug: &Debug{JobID: jobID, Steps: make([]*DebugStep, 0, 64)},
		now:   time.Now,
	}
}

// Step appends a named step with optional details
func (t *Trace) Step(name string, details map[string]interface{}) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debug.Steps = append(t.debug.Steps, &DebugStep{At: t.now(), Step: name, Details: details})
}

// Has reports whether a step with the given name was recorded
func (t *Trace) Has(name string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.debug.Steps {
		if s.Step == name {
			return true
		}
	}
	return false
}

// Debug returns a snapshot of the recorded steps
func (t *Trace) Debug() *Debug {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	steps := make([]*DebugStep, len(t.debug.Steps))
	copy(steps, t.debug.Steps)
	return &Debug{JobID: t.debug.JobID, Steps: steps}
}
