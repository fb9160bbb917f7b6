package materializer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/browser"
	"github.com/ternarybob/harvester/internal/services/browser/browsertest"
)

func newTestMaterializer() *Materializer {
	config := common.NewDefaultConfig().Scrape
	config.SettleDelay = "0s"
	config.StabilizePause = "0s"
	config.StabilizePasses = 10

	m := NewMaterializer(&config, arbor.NewLogger())
	m.Timing = Timing{PollInterval: time.Millisecond}
	return m
}

func TestStabilize_StopsWhenCountRepeats(t *testing.T) {
	m := newTestMaterializer()
	counts := []int{5, 10, 15, 15, 20}

	page := &browsertest.Page{}
	page.CountFn = func(selector string) int {
		idx := page.Scrolls - 1
		if idx >= len(counts) {
			idx = len(counts) - 1
		}
		if selector == PrimaryItemSelector {
			return counts[idx]
		}
		return counts[idx] - 1
	}

	passes, err := m.Stabilize(context.Background(), page, 0, 10)

	require.NoError(t, err)
	assert.Equal(t, 4, passes)
	assert.Equal(t, 4, page.Scrolls)
}

func TestStabilize_CapsAtMaxPasses(t *testing.T) {
	m := newTestMaterializer()
	page := &browsertest.Page{}
	page.CountFn = func(selector string) int { return page.Scrolls * 10 }

	passes, err := m.Stabilize(context.Background(), page, 0, 3)

	require.NoError(t, err)
	assert.Equal(t, 3, passes)
}

func TestStabilize_UsesLargerOfBothCounts(t *testing.T) {
	m := newTestMaterializer()
	page := &browsertest.Page{}
	page.CountFn = func(selector string) int {
		if selector == FallbackItemSelector {
			return 7
		}
		return page.Scrolls
	}

	// fallback dominates at 7 until the primary count passes it
	passes, err := m.Stabilize(context.Background(), page, 0, 20)

	require.NoError(t, err)
	assert.Equal(t, 2, passes)
}

func TestAcceptCookies(t *testing.T) {
	m := newTestMaterializer()

	page := &browsertest.Page{
		ClickTextFn: func(selector string, texts []string) bool { return selector == "button" },
	}
	assert.True(t, m.AcceptCookies(context.Background(), page))
	assert.Contains(t, page.ClickedTexts, "Accept all")

	assert.False(t, m.AcceptCookies(context.Background(), &browsertest.Page{}))
}

func TestWaitForAny(t *testing.T) {
	m := newTestMaterializer()

	calls := 0
	page := &browsertest.Page{
		CountFn: func(selector string) int {
			calls++
			if selector == "main section" && calls > 8 {
				return 1
			}
			return 0
		},
	}

	sel, ok := m.WaitForAny(context.Background(), page, probeSelectors, time.Second)
	assert.True(t, ok)
	assert.Equal(t, "main section", sel)

	sel, ok = m.WaitForAny(context.Background(), &browsertest.Page{}, probeSelectors, 5*time.Millisecond)
	assert.False(t, ok)
	assert.Empty(t, sel)
}

func TestExpandSeeMore_StopsWhenCountDoesNotDrop(t *testing.T) {
	m := newTestMaterializer()

	remaining := map[string]int{"See more": 3, "More": 1}
	page := &browsertest.Page{
		CountTextFn: func(selector string, texts []string) int { return remaining[texts[0]] },
		ClickTextFn: func(selector string, texts []string) bool {
			if texts[0] == "See more" {
				remaining["See more"]--
			}
			// "More" never disappears
			return remaining[texts[0]] >= 0
		},
	}

	clicks := m.ExpandSeeMore(context.Background(), page)

	assert.Equal(t, 4, clicks, "three See more clicks and one More click")
	assert.Equal(t, 0, remaining["See more"])
}

func TestPrepare_ReadsStoreNameAndStabilizes(t *testing.T) {
	m := newTestMaterializer()

	page := &browsertest.Page{
		PageTitle: "Taqueria Luna | Order Online",
		Doc: `<html><body><header><h1> Taqueria Luna </h1></header>
			<ul><li data-testid="store-catalog-subsection-container"><a data-testid="store-item-1" href="/store/x">Taco</a></li></ul>
			</body></html>`,
		CountFn: func(selector string) int {
			switch selector {
			case SectionSelector:
				return 1
			case PrimaryItemSelector, FallbackItemSelector:
				return 1
			}
			return 0
		},
	}
	trace := models.NewTrace("job-1")

	prep, err := m.Prepare(context.Background(), page, time.Second, trace)

	require.NoError(t, err)
	assert.Equal(t, "Taqueria Luna", prep.StoreName)
	assert.Equal(t, SectionSelector, prep.ProbeSelector)
	assert.Equal(t, 2, prep.Passes)
	assert.True(t, trace.Has("store_name_found"))
	assert.True(t, trace.Has("autoscrolled"))
}

func TestPrepare_RateLimitedPage(t *testing.T) {
	m := newTestMaterializer()
	page := &browsertest.Page{Doc: "<html><body>Too Many Requests</body></html>"}
	trace := models.NewTrace("job-2")

	_, err := m.Prepare(context.Background(), page, 5*time.Millisecond, trace)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentNotFound))
	assert.True(t, errors.Is(err, browser.ErrRateLimited))
	assert.True(t, trace.Has("content_missing"))
}

func TestPrepare_ErrorPage(t *testing.T) {
	m := newTestMaterializer()
	page := &browsertest.Page{Doc: "<html><body><pre>Cannot GET /store</pre></body></html>"}

	_, err := m.Prepare(context.Background(), page, 5*time.Millisecond, nil)

	assert.ErrorIs(t, err, ErrErrorPage)
	assert.NotErrorIs(t, err, browser.ErrRateLimited)
}

func TestMaterializeSection_EscalatesStrategies(t *testing.T) {
	m := newTestMaterializer()
	section := models.Locator{Selector: SectionSelector, Index: 2}

	page := &browsertest.Page{}
	page.CountWithinFn = func(scope models.Locator, selector string) int {
		if len(page.SectionScrolls) >= 5 {
			return 6
		}
		return 0
	}

	count, err := m.MaterializeSection(context.Background(), page, section)

	require.NoError(t, err)
	assert.Equal(t, 6, count)
	assert.Equal(t, []models.ScrollStrategy{
		models.ScrollIntoView,
		models.ScrollSectionEnd,
		models.ScrollInnerScroll,
		models.ScrollWindowStep,
		models.ScrollWindowStep,
	}, page.SectionScrolls)
}

func TestMaterializeSection_GivesUpAfterMaxAttempts(t *testing.T) {
	m := newTestMaterializer()
	page := &browsertest.Page{}

	count, err := m.MaterializeSection(context.Background(), page, models.Locator{Selector: "section"})

	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, page.SectionScrolls, maxSectionAttempts)
}

func TestStoreName(t *testing.T) {
	name, sel := StoreName(`<html><body><div class="store-name">Pho 99</div><h1>  </h1></body></html>`)
	assert.Equal(t, "Pho 99", name)
	assert.Equal(t, ".store-name", sel)

	name, _ = StoreName(`<html><body><p>nothing</p></body></html>`)
	assert.Empty(t, name)
}
