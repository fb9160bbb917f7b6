// Package scraper runs scrape jobs end to end: browser launch, page
// preparation, section and item discovery, detail fetching with retries and
// assembly of the result.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/jobs"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/browser"
	"github.com/ternarybob/harvester/internal/services/detail"
	"github.com/ternarybob/harvester/internal/services/discovery"
	"github.com/ternarybob/harvester/internal/services/materializer"
)

// RunError is returned when a job ends in the error state
type RunError struct {
	JobID string
	Err   error
}

func (e *RunError) Error() string { return e.Err.Error() }
func (e *RunError) Unwrap() error { return e.Err }

// Engine executes scrape jobs. Each run owns its own browser.
type Engine struct {
	config   *common.Config
	launcher interfaces.BrowserLauncher
	store    interfaces.JobStore
	logger   arbor.ILogger

	// Delay settings handed to the per-job components
	Navigation   *browser.NavigationPolicy
	Timing       materializer.Timing
	ScanPacing   discovery.Pacing
	ClickPause   time.Duration
	ClickSpread  time.Duration
	DetailPacing detail.Pacing
}

// NewEngine creates an engine reporting progress into store
func NewEngine(config *common.Config, launcher interfaces.BrowserLauncher, store interfaces.JobStore, logger arbor.ILogger) *Engine {
	return &Engine{
		config:       config,
		launcher:     launcher,
		store:        store,
		logger:       logger,
		Navigation:   browser.NewNavigationPolicy(&config.Browser),
		Timing:       materializer.DefaultTiming(&config.Scrape),
		ScanPacing:   discovery.DefaultPacing(&config.Scrape),
		ClickPause:   discovery.DefaultClickPause,
		ClickSpread:  discovery.DefaultClickSpread,
		DetailPacing: detail.DefaultPacing(&config.Scrape),
	}
}

// Store returns the job store the engine reports into
func (e *Engine) Store() interfaces.JobStore {
	return e.store
}

// run holds the state of one job
type run struct {
	jobID  string
	req    *models.ScrapeRequest
	trace  *models.Trace
	token  *jobs.Token
	logger arbor.ILogger
}

// Run executes one scrape job. ctx only ends the run on shutdown or client
// disconnect; callers cancel a job through the store. On error the returned
// *RunError carries the job id.
func (e *Engine) Run(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResponse, error) {
	jobID := e.store.Create(req.JobID)
	r := &run{
		jobID:  jobID,
		req:    req,
		trace:  models.NewTrace(jobID),
		token:  jobs.NewToken(ctx, e.store, jobID),
		logger: e.logger.WithCorrelationId(jobID),
	}

	r.logger.Info().Str("job_id", jobID).Str("url", req.URL).Msg("Scrape job started")
	startTime := time.Now()

	resp, err := e.execute(ctx, r)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return e.cancelled(r, "cancelled", nil, "", "", nil), nil
		}

		message := err.Error()
		if errors.Is(err, common.ErrInvalidURL) {
			message = "invalid_request"
		}
		r.trace.Step("error", map[string]interface{}{"error": err.Error()})
		e.store.MarkError(jobID, models.JobPatch{
			Stage:   models.String(models.StageError),
			Message: models.String(message),
		})
		r.logger.Error().Err(err).Str("job_id", jobID).Dur("elapsed", time.Since(startTime)).Msg("Scrape job failed")
		return nil, &RunError{JobID: jobID, Err: err}
	}

	r.logger.Info().
		Str("job_id", jobID).
		Int("total_items", resp.Raw.TotalItems).
		Int("failed_items", len(resp.Raw.FailedItems)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Scrape job finished")
	return resp, nil
}

func (e *Engine) execute(ctx context.Context, r *run) (*models.ScrapeResponse, error) {
	if err := common.ValidateTargetURL(r.req.URL); err != nil {
		return nil, err
	}

	probeTimeout := e.probeTimeout(r.req.TimeoutMs)
	geo := common.ParseGeolocation(r.req.URL)
	r.trace.Step("parsed_url", map[string]interface{}{
		"geolocation": geo != nil,
		"maxItems":    r.req.MaxItems,
		"timeoutMs":   probeTimeout.Milliseconds(),
	})
	e.store.Update(r.jobID, models.JobPatch{
		Stage:   models.String(models.StageNavigating),
		Message: models.String("launching"),
		Meta: map[string]interface{}{
			"url":       r.req.URL,
			"maxItems":  r.req.MaxItems,
			"timeoutMs": probeTimeout.Milliseconds(),
		},
	})

	b, err := e.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer b.Close()

	page, err := b.NewSession(ctx, models.SessionOptions{
		Geolocation: geo,
		PacingMin:   common.ParseDurationOr(e.config.Browser.PacingMin, 100*time.Millisecond),
		PacingMax:   common.ParseDurationOr(e.config.Browser.PacingMax, 300*time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open page session: %w", err)
	}
	defer page.Close()
	r.trace.Step("context_ready", nil)

	target := common.SanitizeURL(r.req.URL)
	err = e.Navigation.Navigate(ctx, page, target, r.logger, func(n browser.RetryNotice) {
		r.trace.Step("navigation_retry", map[string]interface{}{
			"retryCount": n.Attempt,
			"delay":      n.Delay.Milliseconds(),
			"error":      n.Err.Error(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}
	r.trace.Step("navigated", map[string]interface{}{"url": target})

	e.store.Update(r.jobID, models.JobPatch{
		Stage:   models.String(models.StageScanningCategories),
		Message: models.String(models.StageScanningCategories),
	})

	m := materializer.NewMaterializer(&e.config.Scrape, r.logger)
	m.Timing = e.Timing
	prep, err := m.Prepare(ctx, page, probeTimeout, r.trace)
	if err != nil {
		return nil, err
	}

	sections, err := e.discoverSections(ctx, page, r.trace)
	if err != nil {
		return nil, err
	}
	r.trace.Step("sections_found", map[string]interface{}{"nSections": len(sections.List), "selectedSelector": sections.Selector})
	e.store.Update(r.jobID, models.JobPatch{
		Stage:             models.String(models.StageScanningItems),
		Message:           models.String(models.StageScanningItems),
		SectionsTotal:     models.Int(len(sections.List)),
		SectionsProcessed: models.Int(0),
		ItemsDiscovered:   models.Int(0),
	})

	resolver := discovery.NewResolver(&e.config.Scrape, r.logger)
	resolver.ClickPause = e.ClickPause
	resolver.ClickSpread = e.ClickSpread
	collector := discovery.NewCollector(&e.config.Scrape, m, resolver, r.logger)
	collector.Pacing = e.ScanPacing

	scan, err := collector.Collect(ctx, page, sections, r.req.MaxItems, r.token, r.trace, func(p discovery.ScanProgress) {
		e.store.Update(r.jobID, models.JobPatch{
			Stage:             models.String(models.StageScanningItems),
			SectionsProcessed: models.Int(p.SectionsProcessed),
			ItemsDiscovered:   models.Int(p.ItemsDiscovered),
		})
	})
	if err != nil {
		return nil, err
	}
	if scan.Cancelled || r.token.Cancelled() {
		return e.cancelled(r, "cancelled_during_scan", scan.Categories, prep.StoreName, scan.StoreUUID, nil), nil
	}

	items := scan.Resolvable
	r.trace.Step("items_collected", map[string]interface{}{"totalItems": countItems(scan.Categories), "resolvable": len(items)})
	e.store.Update(r.jobID, models.JobPatch{
		Stage:   models.String(models.StageItemsCollected),
		Message: models.String(models.StageItemsCollected),
		Total:   models.Int(len(items)),
	})

	storeUUID := inferStoreUUID(items, scan.StoreUUID)
	r.trace.Step("store_uuid_detected", map[string]interface{}{"storeUuidFound": storeUUID != "", "storeUuid": storeUUID})

	workers := max(1, e.config.Scrape.Workers)
	pool := detail.NewPool(b, target, models.SessionOptions{
		Geolocation: geo,
		PacingMin:   common.ParseDurationOr(e.config.Browser.WorkerPacingMin, 150*time.Millisecond),
		PacingMax:   common.ParseDurationOr(e.config.Browser.WorkerPacingMax, 250*time.Millisecond),
	}, m, &e.config.Scrape, r.logger)
	pool.Pacing = e.DetailPacing

	r.trace.Step("starting_details_fetch", map[string]interface{}{"items": len(items), "workers": workers})
	e.store.Update(r.jobID, models.JobPatch{
		Stage:     models.String(models.StageFetchingDetails),
		Message:   models.String(models.StageFetchingDetails),
		Processed: models.Int(0),
		Success:   models.Int(0),
		Fail:      models.Int(0),
	})

	result := pool.FetchAll(ctx, items, workers, r.token, func(p detail.Progress) {
		r.trace.Step("details_progress", map[string]interface{}{
			"processed": p.Processed,
			"success":   p.Success,
			"fail":      p.Fail,
			"remaining": p.Remaining(),
			"worker":    p.Worker,
		})
		e.store.Update(r.jobID, models.JobPatch{
			Stage:     models.String(models.StageFetchingDetails),
			Message:   models.String(models.StageFetchingDetails),
			Processed: models.Int(p.Processed),
			Success:   models.Int(p.Success),
			Fail:      models.Int(p.Fail),
			Total:     models.Int(len(items)),
		})
	})
	details := result.Details
	r.trace.Step("details_fetched", map[string]interface{}{"success": result.Success, "failed": len(result.Failed)})

	if result.Cancelled || r.token.Cancelled() {
		attachDetails(scan.Categories, details)
		return e.cancelled(r, "cancelled_during_details", scan.Categories, prep.StoreName, storeUUID, result.Failed), nil
	}

	retry := detail.NewRetryEngine(pool, e.store, r.jobID, e.config.Scrape.MaxRetryRounds, r.trace, r.logger)
	outcome := retry.Run(ctx, result.Failed, workers, details, r.token)
	failed := outcome.Failed

	attachDetails(scan.Categories, details)
	if storeUUID == "" {
		storeUUID = storeUUIDFromDetails(scan.Categories)
	}

	if outcome.Cancelled {
		return e.cancelled(r, "cancelled_during_retry", scan.Categories, prep.StoreName, storeUUID, failed), nil
	}

	resp := e.respond(r, scan.Categories, prep.StoreName, storeUUID, failed)
	e.store.MarkCompleted(r.jobID, models.JobPatch{
		Stage:       models.String(models.StageCompleted),
		Message:     models.String(models.StageCompleted),
		Processed:   models.Int(len(items)),
		Success:     models.Int(len(items) - len(failed)),
		Fail:        models.Int(len(failed)),
		Total:       models.Int(len(items)),
		FailedItems: resp.Raw.FailedItems,
	})
	r.trace.Step("completed", map[string]interface{}{"totalItems": resp.Raw.TotalItems, "failed": len(failed)})
	return resp, nil
}

func (e *Engine) discoverSections(ctx context.Context, page interfaces.Page, trace *models.Trace) (*discovery.Sections, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}
	return discovery.DiscoverSections(doc, trace)
}

// probeTimeout bounds the content probe: timeoutMs when given, never below MinTimeout
func (e *Engine) probeTimeout(timeoutMs int) time.Duration {
	floor := common.ParseDurationOr(e.config.Scrape.MinTimeout, 10*time.Second)
	if timeoutMs <= 0 {
		return max(floor, common.ParseDurationOr(e.config.Scrape.DefaultTimeout, 60*time.Second))
	}
	return max(floor, time.Duration(timeoutMs)*time.Millisecond)
}
