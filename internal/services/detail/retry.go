package detail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

// DefaultMaxRounds bounds the retry loop when configuration leaves it unset
const DefaultMaxRounds = 10

// Fetcher runs one detail pass
type Fetcher interface {
	FetchAll(ctx context.Context, items []*models.RawItem, workers int, token interfaces.CancelToken, progress func(Progress)) *Result
}

// RetryOutcome is the state after the retry loop ends
type RetryOutcome struct {
	Rounds    int
	Failed    []*models.RawItem
	Cancelled bool
}

// RetryEngine re-runs failed detail fetches in rounds with a shrinking pool
type RetryEngine struct {
	fetcher   Fetcher
	store     interfaces.JobStore
	jobID     string
	maxRounds int
	trace     *models.Trace
	logger    arbor.ILogger
}

// NewRetryEngine creates a retry engine reporting into store under jobID
func NewRetryEngine(fetcher Fetcher, store interfaces.JobStore, jobID string, maxRounds int, trace *models.Trace, logger arbor.ILogger) *RetryEngine {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &RetryEngine{
		fetcher:   fetcher,
		store:     store,
		jobID:     jobID,
		maxRounds: maxRounds,
		trace:     trace,
		logger:    logger,
	}
}

// RoundWorkers halves the base worker count once per round, never below one
func RoundWorkers(base, round int) int {
	workers := max(1, base)
	for r := 0; r < round; r++ {
		workers = max(1, workers/2)
	}
	return workers
}

// Run retries failed until every item succeeds, rounds run out or the job is
// cancelled. New payloads are added to details; existing entries are kept.
func (e *RetryEngine) Run(ctx context.Context, failed []*models.RawItem, baseWorkers int, details map[string]json.RawMessage, token interfaces.CancelToken) *RetryOutcome {
	outcome := &RetryOutcome{Failed: failed}

	for round := 1; round <= e.maxRounds && len(outcome.Failed) > 0; round++ {
		if token.Cancelled() || ctx.Err() != nil {
			outcome.Cancelled = true
			break
		}

		pending := outcome.Failed
		workers := RoundWorkers(baseWorkers, round)
		message := fmt.Sprintf("retry_round_%d", round)
		outcome.Rounds = round

		e.trace.Step("details_retry_round", map[string]interface{}{"round": round, "pending": len(pending), "workers": workers})
		e.store.Update(e.jobID, models.JobPatch{
			Stage:        models.String(models.StageRetryingDetails),
			Message:      models.String(message),
			RetryRound:   models.Int(round),
			RetryPending: models.Int(len(pending)),
			Processed:    models.Int(0),
			Success:      models.Int(0),
			Fail:         models.Int(0),
			Total:        models.Int(len(pending)),
		})

		result := e.fetcher.FetchAll(ctx, pending, workers, token, func(p Progress) {
			e.store.Update(e.jobID, models.JobPatch{
				Stage:     models.String(models.StageRetryingDetails),
				Message:   models.String(message),
				Processed: models.Int(p.Processed),
				Success:   models.Int(p.Success),
				Fail:      models.Int(p.Fail),
				Total:     models.Int(len(pending)),
			})
		})

		for id, raw := range result.Details {
			if _, exists := details[id]; !exists {
				details[id] = raw
			}
		}
		outcome.Failed = result.Failed

		e.logger.Debug().
			Int("round", round).
			Int("recovered", result.Success).
			Int("still_failed", len(result.Failed)).
			Msg("Retry round finished")

		if result.Cancelled {
			// unclaimed items stay pending
			outcome.Failed = append(outcome.Failed, unclaimed(pending, result)...)
			outcome.Cancelled = true
			break
		}
	}

	return outcome
}

// unclaimed returns items of pending that neither succeeded nor failed
func unclaimed(pending []*models.RawItem, result *Result) []*models.RawItem {
	done := make(map[*models.RawItem]struct{}, len(result.Failed))
	for _, it := range result.Failed {
		done[it] = struct{}{}
	}
	var rest []*models.RawItem
	for _, it := range pending {
		if _, ok := done[it]; ok {
			continue
		}
		if _, ok := result.Details[it.ItemUUID]; ok {
			continue
		}
		rest = append(rest, it)
	}
	return rest
}
