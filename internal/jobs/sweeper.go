package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/harvester/internal/interfaces"
)

// Sweeper periodically removes finished job records older than the TTL
type Sweeper struct {
	store  interfaces.JobStore
	ttl    time.Duration
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewSweeper creates a sweeper; schedules use the 6-field cron format (seconds first)
func NewSweeper(store interfaces.JobStore, ttl time.Duration, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		store:  store,
		ttl:    ttl,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start registers the sweep on the given schedule and starts the cron runner
func (s *Sweeper) Start(schedule string) error {
	if s.ttl <= 0 {
		s.logger.Info().Msg("Job TTL disabled - sweeper not started")
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.SweepNow() }); err != nil {
		return fmt.Errorf("failed to schedule job sweep: %w", err)
	}
	s.cron.Start()

	s.logger.Info().
		Str("schedule", schedule).
		Dur("ttl", s.ttl).
		Msg("Job sweeper started")
	return nil
}

// SweepNow removes expired records immediately and returns how many were removed
func (s *Sweeper) SweepNow() int {
	removed := s.store.Sweep(s.ttl)
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("Swept expired job records")
	}
	return removed
}

// Stop halts the cron runner and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
