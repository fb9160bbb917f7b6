package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/browser/browsertest"
)

func uid(prefix, n int) string {
	return fmt.Sprintf("%08d-0000-4000-8000-%012d", prefix, n)
}

func itemCard(section, n int, name, price string) string {
	return fmt.Sprintf(`<a data-testid="store-item-%s" href="/store/luna/%s/%s/%s/%s">
		<div><span data-testid="rich-text">%s</span><span data-testid="rich-text">%s</span><span>House favourite</span></div>
		<img src="https://cdn.example.com/%d.jpg"></a>`,
		uid(section, n), uid(9, 9), uid(section, 0), uid(section, 100), uid(section, n), name, price, n)
}

func storefront(sections map[string]int, order ...string) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><header><h1>Luna</h1></header><ul>`)
	for s, name := range order {
		sb.WriteString(`<li data-testid="store-catalog-subsection-container"><h3 data-testid="rich-text-header">`)
		sb.WriteString(name)
		sb.WriteString(`</h3>`)
		for i := 1; i <= sections[name]; i++ {
			sb.WriteString(itemCard(s+1, i, fmt.Sprintf("%s %d", name, i), fmt.Sprintf("$%d.50", i)))
		}
		sb.WriteString(`</li>`)
	}
	sb.WriteString(`</ul></body></html>`)
	return sb.String()
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestDiscoverSections_PreferredSelector(t *testing.T) {
	doc := mustDoc(t, storefront(map[string]int{"Drinks": 3, "Mains": 5}, "Drinks", "Mains"))

	sections, err := DiscoverSections(doc, nil)

	require.NoError(t, err)
	assert.Equal(t, sectionSelectors[0], sections.Selector)
	require.Len(t, sections.List, 2)
	assert.Equal(t, 1, sections.List[1].Locator.Index)
	assert.Equal(t, "Mains", CategoryName(sections.List[1].Selection))
}

func TestDiscoverSections_ContainerFallback(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<div id="grid"><a href="/store/a">A</a><a href="/store/b">B</a><a href="/store/c">C</a></div>
		<div id="other"><a href="/store/d">D</a></div>
	</body></html>`)

	sections, err := DiscoverSections(doc, nil)

	require.NoError(t, err)
	assert.Equal(t, "item-containers", sections.Selector)
	require.Len(t, sections.List, 1)
	assert.Equal(t, "grid", sections.List[0].Selection.AttrOr("id", ""))
	assert.Equal(t, containerSelector, sections.List[0].Locator.Selector)
	assert.Equal(t, 0, sections.List[0].Locator.Index)

	located := Locate(doc, sections.List[0].Locator)
	assert.Equal(t, "grid", located.AttrOr("id", ""))
}

func TestDiscoverSections_BodyFallbackAndFailure(t *testing.T) {
	sections, err := DiscoverSections(mustDoc(t, `<html><body><a href="/store/a">A</a></body></html>`), nil)
	require.NoError(t, err)
	assert.Equal(t, "body-container", sections.Selector)
	assert.Equal(t, "body", sections.List[0].Locator.Selector)

	trace := models.NewTrace("job")
	_, err = DiscoverSections(mustDoc(t, `<html><body><p>closed</p></body></html>`), trace)
	assert.ErrorIs(t, err, ErrNoSections)
	assert.True(t, trace.Has("sections_detection_failed"))
}

func TestDiscoverItems_TierPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		count    int
		strategy string
	}{
		{
			name:     "precise wins when union adds nothing",
			html:     itemCard(1, 1, "A", "$1") + itemCard(1, 2, "B", "$2") + itemCard(1, 3, "C", "$3"),
			count:    3,
			strategy: "precise",
		},
		{
			name:     "layout agnostic when no precise cards",
			html:     `<a href="/store/a">A</a><a href="/store/b">B</a><button>Info</button>`,
			count:    2,
			strategy: "layout_agnostic",
		},
		{
			name:     "union replaces a smaller set",
			html:     itemCard(1, 1, "A", "$1") + itemCard(1, 2, "B", "$2") + `<a href="/about">About</a>`,
			count:    3,
			strategy: "union",
		},
		{
			name:     "clickable text elements when nothing else matches",
			html:     `<button>Margherita</button><div role="button">  </div><span tabindex="0">Calzone</span>`,
			count:    2,
			strategy: "interactive_elements",
		},
		{
			name:     "nothing item-like yields an empty set",
			html:     `<div data-ref="store-carousel"><div><span data-testid="x"></span></div></div>` + `<p>none</p>`,
			count:    0,
			strategy: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, `<html><body><section id="s">`+tt.html+`</section></body></html>`)
			got := DiscoverItems(doc.Find("#s"), DefaultStrategies(), nil)
			assert.Len(t, got.Items, tt.count)
			assert.Equal(t, tt.strategy, got.Strategy)
		})
	}
}

func TestContainerStrategy_CountsNodesOnce(t *testing.T) {
	doc := mustDoc(t, `<html><body><section id="s">
		<div data-ref="store-carousel"><div><a href="/store/a">A</a><a href="/store/b">B</a></div></div>
	</section></body></html>`)

	found, ok := containerStrategy{name: "c"}.Attempt(doc.Find("#s"))

	assert.True(t, ok)
	assert.Len(t, found, 2)
}

func TestInteractiveStrategy_SkipsBlankElements(t *testing.T) {
	doc := mustDoc(t, `<html><body><section id="s">
		<button> Garlic bread </button><button><img src="x.png"></button>
		<a href="#top">Back to top</a><div tabindex="-1"></div>
	</section></body></html>`)

	found, ok := interactiveStrategy{name: "i"}.Attempt(doc.Find("#s"))

	require.True(t, ok)
	require.Len(t, found, 2)
	assert.Equal(t, "Garlic bread", strings.TrimSpace(found[0].Text()))
	assert.Equal(t, "Back to top", found[1].Text())
}

func TestItemLocator(t *testing.T) {
	doc := mustDoc(t, storefront(map[string]int{"Drinks": 2}, "Drinks"))
	sections, err := DiscoverSections(doc, nil)
	require.NoError(t, err)

	section := sections.List[0]
	item := section.Selection.Find(PreciseItemSelector).Eq(1)
	loc, ok := ItemLocator(section, item)

	require.True(t, ok)
	assert.Equal(t, "*", loc.Selector)
	require.NotNil(t, loc.Within)
	assert.Equal(t, section.Locator, *loc.Within)
	assert.Equal(t, item.AttrOr("data-testid", ""), Locate(doc, loc).AttrOr("data-testid", ""))
}

func TestExtractFields(t *testing.T) {
	doc := mustDoc(t, `<html><body>
		<a id="one" href="/store/luna/x"><div>
			<span data-testid="rich-text">Carnitas Taco</span>
			<span data-testid="rich-text">$4.50</span>
			<span>Slow-cooked   pork&nbsp;with onions</span><span>•</span>
		</div><img src="https://cdn.example.com/t.jpg"></a>
		<a id="two" href="/store/luna/y"><div>
			<span data-testid="rich-text">Tostada</span>
			<span data-testid="rich-text">$3.00</span>
			<span data-testid="rich-text">92%</span>
			<span data-testid="rich-text">Crispy and fresh</span>
			<span> </span>
		</div></a>
	</body></html>`)

	one := ExtractFields(doc.Find("#one"))
	assert.Equal(t, "Carnitas Taco", one.Name)
	assert.Equal(t, "$4.50", one.PriceText)
	assert.Equal(t, "Slow-cooked pork with onions", one.Description)
	assert.Equal(t, "https://cdn.example.com/t.jpg", one.ImageURL)
	assert.Equal(t, "/store/luna/x", one.Href)

	two := ExtractFields(doc.Find("#two"))
	assert.Equal(t, "Tostada", two.Name)
	assert.Equal(t, "Crispy and fresh", two.Description)
	assert.Empty(t, two.ImageURL)
}

func TestParseIdentifiers(t *testing.T) {
	sec, sub, item, store := uid(1, 0), uid(1, 100), uid(1, 7), uid(9, 9)

	ids := ParseIdentifiers(fmt.Sprintf("https://www.example.com/store/luna/%s/%s/%s/%s?ps=1", store, sec, sub, item), "")
	assert.Equal(t, models.ItemIdentifiers{SectionUUID: sec, SubsectionUUID: sub, ItemUUID: item}, ids)

	ctxJSON := fmt.Sprintf(`{"sectionUuid":"%s","subsectionUuid":"%s","itemUuid":"%s","storeUuid":"%s"}`, sec, sub, item, store)
	href := "/store/luna?mod=quickView&modctx=" + url.QueryEscape(url.QueryEscape(ctxJSON))
	ids = ParseIdentifiers(href, "")
	assert.Equal(t, models.ItemIdentifiers{SectionUUID: sec, SubsectionUUID: sub, ItemUUID: item, StoreUUID: store}, ids)
	assert.True(t, ids.Resolvable())

	ids = ParseIdentifiers("/store/luna", "store-item-"+item)
	assert.Equal(t, models.ItemIdentifiers{ItemUUID: item}, ids)
	assert.False(t, ids.Resolvable())

	assert.Equal(t, models.ItemIdentifiers{}, ParseIdentifiers("", "menu-row"))
}

func TestResolver_ReadsDetailRequest(t *testing.T) {
	config := common.NewDefaultConfig().Scrape
	resolver := NewResolver(&config, arbor.NewLogger())
	resolver.ClickPause, resolver.ClickSpread = 0, 0

	item := uid(2, 3)
	page := &browsertest.Page{
		ExchangeFn: func(filter models.NetworkFilter, _ string) (*models.NetworkExchange, error) {
			assert.Equal(t, "POST", filter.Method)
			assert.Equal(t, config.DetailEndpoint, filter.URLContains)
			assert.Equal(t, item, filter.BodyContains)
			body := fmt.Sprintf(`{"menuItemUuid":"%s","sectionUuid":"s","subsectionUuid":"u","storeUuid":"st"}`, item)
			return &models.NetworkExchange{RequestBody: body}, nil
		},
		ClickTextFn: func(selector string, texts []string) bool { return true },
	}

	target := models.Locator{Selector: "*", Index: 4}
	ids, ok := resolver.Resolve(context.Background(), page, target, item)

	require.True(t, ok)
	assert.Equal(t, models.ItemIdentifiers{ItemUUID: item, SectionUUID: "s", SubsectionUUID: "u", StoreUUID: "st"}, ids)
	assert.Equal(t, []models.Locator{target}, page.Clicks)
	assert.Equal(t, []string{"Close"}, page.ClickedTexts)
}

func TestResolver_NoRequestObserved(t *testing.T) {
	config := common.NewDefaultConfig().Scrape
	resolver := NewResolver(&config, arbor.NewLogger())
	resolver.ClickPause, resolver.ClickSpread = 0, 0

	_, ok := resolver.Resolve(context.Background(), &browsertest.Page{}, models.Locator{Selector: "a"}, "")
	assert.False(t, ok)
}

type stubMaterializer struct{ calls int }

func (s *stubMaterializer) MaterializeSection(ctx context.Context, page interfaces.Page, section models.Locator) (int, error) {
	s.calls++
	return 1, nil
}

type countdownToken struct{ remaining atomic.Int32 }

func (c *countdownToken) Cancelled() bool { return c.remaining.Add(-1) < 0 }

type neverCancelled struct{}

func (neverCancelled) Cancelled() bool { return false }

func newTestCollector() *Collector {
	config := common.NewDefaultConfig().Scrape
	c := NewCollector(&config, &stubMaterializer{}, nil, arbor.NewLogger())
	c.Pacing = Pacing{}
	return c
}

func collectFrom(t *testing.T, c *Collector, html string, maxItems int, token interfaces.CancelToken) (*ScanResult, []ScanProgress) {
	t.Helper()
	page := &browsertest.Page{Doc: html}
	sections, err := DiscoverSections(mustDoc(t, html), nil)
	require.NoError(t, err)

	var reports []ScanProgress
	result, err := c.Collect(context.Background(), page, sections, maxItems, token, models.NewTrace("job"), func(p ScanProgress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	return result, reports
}

func TestCollect_ScansEverySection(t *testing.T) {
	html := storefront(map[string]int{"Drinks": 3, "Mains": 5}, "Drinks", "Mains")

	result, reports := collectFrom(t, newTestCollector(), html, 0, neverCancelled{})

	require.Len(t, result.Categories, 2)
	assert.Equal(t, "Drinks", result.Categories[0].Name)
	assert.Len(t, result.Categories[0].Items, 3)
	assert.Equal(t, "Mains", result.Categories[1].Name)
	assert.Len(t, result.Categories[1].Items, 5)
	assert.Len(t, result.Resolvable, 8)
	assert.False(t, result.Cancelled)

	first := result.Categories[0].Items[0]
	assert.Equal(t, "Drinks 1", first.Name)
	assert.Equal(t, "$1.50", first.PriceText)
	assert.Equal(t, uid(1, 1), first.ItemUUID)
	assert.Equal(t, uid(1, 0), first.SectionUUID)

	assert.Equal(t, []ScanProgress{{1, 3}, {2, 8}}, reports)
}

func TestCollect_SkipsDuplicateCategoryNames(t *testing.T) {
	html := storefront(map[string]int{"Drinks": 2}, "Drinks", "Drinks")

	result, _ := collectFrom(t, newTestCollector(), html, 0, neverCancelled{})

	require.Len(t, result.Categories, 1)
	assert.Len(t, result.Resolvable, 2)
}

func TestCollect_MaxItemsCapsScan(t *testing.T) {
	html := storefront(map[string]int{"Drinks": 3, "Mains": 5}, "Drinks", "Mains")

	result, _ := collectFrom(t, newTestCollector(), html, 4, neverCancelled{})

	require.Len(t, result.Categories, 2)
	assert.Len(t, result.Categories[0].Items, 3)
	assert.Len(t, result.Categories[1].Items, 1)
}

func TestCollect_CancellationStopsNewItems(t *testing.T) {
	html := storefront(map[string]int{"Drinks": 3, "Mains": 5}, "Drinks", "Mains")
	token := &countdownToken{}
	// one section check and two item checks succeed
	token.remaining.Store(3)

	result, _ := collectFrom(t, newTestCollector(), html, 0, token)

	assert.True(t, result.Cancelled)
	require.Len(t, result.Categories, 1)
	assert.Len(t, result.Categories[0].Items, 2)
}
