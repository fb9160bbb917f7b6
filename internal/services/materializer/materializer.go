package materializer

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
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/browser"
)

var (
	// ErrContentNotFound means none of the probe selectors appeared in time
	ErrContentNotFound = errors.New("store content not found")
	// ErrErrorPage means the site answered with a minimal error document
	ErrErrorPage = errors.New("website returned an error page")
)

const (
	maxSeeMoreClicks   = 10
	maxSectionAttempts = 15
	errorPageMaxLength = 1000
	snippetLength      = 5000
)

// Preparation is what Prepare learned about the page
type Preparation struct {
	Title         string
	StoreName     string
	ProbeSelector string
	Passes        int
}

// Timing holds the waits the materializer makes between page actions
type Timing struct {
	PollInterval  time.Duration // WaitForAny poll gap
	CookiePause   time.Duration
	ExpandPause   time.Duration
	NudgePause    time.Duration // after the empty-page scroll nudge
	SectionPause  time.Duration // after a named section scroll strategy
	StepPause     time.Duration // after a window step scroll
	ConfirmPause  time.Duration // before re-counting a loaded section
	SettleDelay   time.Duration
	StabilizeWait time.Duration
}

// DefaultTiming derives waits from scrape configuration
func DefaultTiming(config *common.ScrapeConfig) Timing {
	return Timing{
		PollInterval:  500 * time.Millisecond,
		CookiePause:   300 * time.Millisecond,
		ExpandPause:   500 * time.Millisecond,
		NudgePause:    2 * time.Second,
		SectionPause:  800 * time.Millisecond,
		StepPause:     500 * time.Millisecond,
		ConfirmPause:  time.Second,
		SettleDelay:   common.ParseDurationOr(config.SettleDelay, 3*time.Second),
		StabilizeWait: common.ParseDurationOr(config.StabilizePause, 250*time.Millisecond),
	}
}

// Materializer drives lazy-loading pages until their content is in the DOM
type Materializer struct {
	config *common.ScrapeConfig
	logger arbor.ILogger
	Timing Timing
}

// NewMaterializer creates a materializer using scrape configuration delays
func NewMaterializer(config *common.ScrapeConfig, logger arbor.ILogger) *Materializer {
	return &Materializer{
		config: config,
		logger: logger,
		Timing: DefaultTiming(config),
	}
}

// Stabilize scrolls to the bottom until the item count stops growing.
// It returns the number of passes made.
func (m *Materializer) Stabilize(ctx context.Context, page interfaces.Page, pause time.Duration, maxPasses int) (int, error) {
	last := -1
	passes := 0
	for passes < maxPasses {
		passes++
		if err := page.ScrollToBottom(ctx); err != nil {
			return passes, fmt.Errorf("scroll pass %d: %w", passes, err)
		}
		if err := common.Sleep(ctx, pause); err != nil {
			return passes, err
		}

		count := itemCount(ctx, page)
		m.logger.Trace().Int("pass", passes).Int("count", count).Msg("Stabilize pass")
		if count == last {
			break
		}
		last = count
	}
	return passes, nil
}

// itemCount is the larger of the precise and loose item counts
func itemCount(ctx context.Context, page interfaces.Page) int {
	primary, _ := page.Count(ctx, PrimaryItemSelector)
	fallback, _ := page.Count(ctx, FallbackItemSelector)
	return max(primary, fallback)
}

// AcceptCookies clicks the first consent button found
func (m *Materializer) AcceptCookies(ctx context.Context, page interfaces.Page) bool {
	clicked, err := page.ClickText(ctx, "button", cookieButtonTexts)
	if err != nil || !clicked {
		return false
	}
	_ = common.Sleep(ctx, m.Timing.CookiePause)
	return true
}

// WaitForAny polls the selectors until one matches or timeout elapses
func (m *Materializer) WaitForAny(ctx context.Context, page interfaces.Page, selectors []string, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range selectors {
			if n, err := page.Count(ctx, sel); err == nil && n > 0 {
				return sel, true
			}
		}
		if !time.Now().Before(deadline) {
			return "", false
		}
		if err := common.Sleep(ctx, m.Timing.PollInterval); err != nil {
			return "", false
		}
	}
}

// ExpandSeeMore clicks every expander button while doing so keeps removing them.
// Returns the number of clicks made.
func (m *Materializer) ExpandSeeMore(ctx context.Context, page interfaces.Page) int {
	clicks := 0
	for _, text := range seeMoreTexts {
		texts := []string{text}
		count, err := page.CountText(ctx, "button", texts)
		if err != nil {
			continue
		}
		for attempt := 0; count > 0 && attempt < maxSeeMoreClicks; attempt++ {
			clicked, err := page.ClickText(ctx, "button", texts)
			if err != nil || !clicked {
				break
			}
			clicks++
			if err := common.Sleep(ctx, m.Timing.ExpandPause); err != nil {
				return clicks
			}
			next, err := page.CountText(ctx, "button", texts)
			if err != nil || next >= count {
				break
			}
			count = next
		}
	}
	return clicks
}

// Prepare runs the page analysis sequence after navigation: content probe,
// cookie consent, store name, expansion and stabilization.
func (m *Materializer) Prepare(ctx context.Context, page interfaces.Page, probeTimeout time.Duration, trace *models.Trace) (*Preparation, error) {
	prep := &Preparation{}

	title, err := page.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page title: %w", err)
	}
	prep.Title = title
	trace.Step("page_title", map[string]interface{}{"title": title})

	found := false
	for _, sel := range contentSelectors {
		if n, err := page.Count(ctx, sel); err == nil && n > 0 {
			trace.Step("content_found", map[string]interface{}{"selector": sel, "count": n})
			found = true
			break
		}
	}
	if !found {
		trace.Step("no_content_selectors_found", nil)
	}

	// Consent banners carry headings of their own, so accept before reading the name
	m.AcceptCookies(ctx, page)
	trace.Step("cookies_checked", nil)

	if html, err := page.HTML(ctx); err == nil {
		if name, sel := StoreName(html); name != "" {
			prep.StoreName = name
			trace.Step("store_name_found", map[string]interface{}{"name": name, "selector": sel})
		}
	}

	sel, ok := m.WaitForAny(ctx, page, probeSelectors, probeTimeout)
	trace.Step("content_probe", map[string]interface{}{"foundSelector": sel})
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, m.classifyMissingContent(ctx, page, trace)
	}
	prep.ProbeSelector = sel

	if err := common.Sleep(ctx, m.Timing.SettleDelay); err != nil {
		return nil, err
	}

	sections, _ := page.Count(ctx, SectionSelector)
	primary, _ := page.Count(ctx, PrimaryItemSelector)
	fallback, _ := page.Count(ctx, FallbackItemSelector)
	trace.Step("content_counts", map[string]interface{}{
		"sectionsCount":      sections,
		"primaryItemsCount":  primary,
		"fallbackItemsCount": fallback,
		"totalItemsCount":    max(primary, fallback),
	})

	if sections == 0 && max(primary, fallback) == 0 {
		_ = page.ScrollToBottom(ctx)
		_ = page.ScrollBy(ctx, -1<<20)
		if err := common.Sleep(ctx, m.Timing.NudgePause); err != nil {
			return nil, err
		}
	}

	clicks := m.ExpandSeeMore(ctx, page)
	trace.Step("expanded_all_see_more", map[string]interface{}{"clicks": clicks})

	passes, err := m.Stabilize(ctx, page, m.Timing.StabilizeWait, m.maxPasses())
	if err != nil {
		return nil, err
	}
	prep.Passes = passes
	trace.Step("autoscrolled", map[string]interface{}{"passes": passes})

	m.logger.Debug().
		Str("store_name", prep.StoreName).
		Str("probe_selector", prep.ProbeSelector).
		Int("passes", passes).
		Msg("Page prepared")

	return prep, nil
}

func (m *Materializer) maxPasses() int {
	if m.config.StabilizePasses > 0 {
		return m.config.StabilizePasses
	}
	return 50
}

// classifyMissingContent inspects the page after a failed probe
func (m *Materializer) classifyMissingContent(ctx context.Context, page interfaces.Page, trace *models.Trace) error {
	html, err := page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContentNotFound, err)
	}
	snippet := html
	if len(snippet) > snippetLength {
		snippet = snippet[:snippetLength]
	}
	trace.Step("content_missing", map[string]interface{}{"snippet": snippet})

	lower := strings.ToLower(html)
	for _, sig := range blockedSignatures {
		if strings.Contains(lower, sig) {
			return fmt.Errorf("%w: %w: website is rate limiting or blocking requests", ErrContentNotFound, browser.ErrRateLimited)
		}
	}
	if len(html) < errorPageMaxLength && strings.Contains(html, "<pre>") {
		return fmt.Errorf("%w: %w", ErrContentNotFound, ErrErrorPage)
	}
	return fmt.Errorf("%w after waiting for %d selectors", ErrContentNotFound, len(probeSelectors))
}

// StoreName returns the first non-empty store heading in html and the selector that found it
func StoreName(html string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	for _, sel := range storeNameSelectors {
		if name := strings.TrimSpace(doc.Find(sel).First().Text()); name != "" {
			return name, sel
		}
	}
	return "", ""
}

// MaterializeSection scrolls a section with escalating strategies until the
// precise item selector appears inside it. Returns the item count found.
func (m *Materializer) MaterializeSection(ctx context.Context, page interfaces.Page, section models.Locator) (int, error) {
	strategies := []models.ScrollStrategy{
		models.ScrollIntoView,
		models.ScrollSectionEnd,
		models.ScrollInnerScroll,
	}

	for attempt := 1; attempt <= maxSectionAttempts; attempt++ {
		strategy := models.ScrollWindowStep
		pause := m.Timing.StepPause
		if attempt <= len(strategies) {
			strategy = strategies[attempt-1]
			pause = m.Timing.SectionPause
		}

		if err := page.ScrollSection(ctx, section, strategy); err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			m.logger.Debug().Err(err).Str("strategy", string(strategy)).Msg("Section scroll failed")
		}
		if err := common.Sleep(ctx, pause); err != nil {
			return 0, err
		}

		count, _ := page.CountWithin(ctx, section, PrimaryItemSelector)
		if count == 0 {
			continue
		}

		// Give the rest of the section a moment to render
		if err := common.Sleep(ctx, m.Timing.ConfirmPause); err != nil {
			return count, err
		}
		if final, err := page.CountWithin(ctx, section, PrimaryItemSelector); err == nil && final > count {
			count = final
		}
		return count, nil
	}

	return 0, nil
}
