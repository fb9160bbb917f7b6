package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

// SectionMaterializer loads a section's lazy content on the live page
type SectionMaterializer interface {
	MaterializeSection(ctx context.Context, page interfaces.Page, section models.Locator) (int, error)
}

// Pacing holds the scan delays
type Pacing struct {
	ItemBase      time.Duration // before every item after the first
	ItemStep      time.Duration // grows with the item index
	ItemStepCap   time.Duration
	ItemSpread    time.Duration
	SectionBase   time.Duration // between sections
	SectionSpread time.Duration
	RecountPause  time.Duration // before the live re-count
}

// DefaultPacing derives scan delays from scrape configuration
func DefaultPacing(config *common.ScrapeConfig) Pacing {
	return Pacing{
		ItemBase:      common.ParseDurationOr(config.ItemDelay, 200*time.Millisecond),
		ItemStep:      10 * time.Millisecond,
		ItemStepCap:   time.Second,
		ItemSpread:    200 * time.Millisecond,
		SectionBase:   common.ParseDurationOr(config.SectionDelay, 500*time.Millisecond),
		SectionSpread: 300 * time.Millisecond,
		RecountPause:  time.Second,
	}
}

func (p Pacing) itemDelay(j int) time.Duration {
	step := min(time.Duration(j)*p.ItemStep, p.ItemStepCap)
	return common.Jitter(p.ItemBase+step, p.ItemSpread)
}

// ScanProgress is reported after every finished section
type ScanProgress struct {
	SectionsProcessed int
	ItemsDiscovered   int
}

// ScanResult holds the categories found on a page
type ScanResult struct {
	Categories []*models.Category
	// Resolvable are the items with all three identifiers, in discovery order
	Resolvable []*models.RawItem
	StoreUUID  string
	Cancelled  bool
}

// Collector walks the sections of a prepared page and scans their items
type Collector struct {
	materializer SectionMaterializer
	resolver     *Resolver
	strategies   []ItemStrategy
	logger       arbor.ILogger
	Pacing       Pacing
}

// NewCollector creates a collector with the default item strategies
func NewCollector(config *common.ScrapeConfig, materializer SectionMaterializer, resolver *Resolver, logger arbor.ILogger) *Collector {
	return &Collector{
		materializer: materializer,
		resolver:     resolver,
		strategies:   DefaultStrategies(),
		logger:       logger,
		Pacing:       DefaultPacing(config),
	}
}

// Collect scans every section in order. maxItems > 0 caps the number of items
// scanned across the whole page. Cancellation stops at the next section or item.
func (c *Collector) Collect(ctx context.Context, page interfaces.Page, sections *Sections, maxItems int, token interfaces.CancelToken, trace *models.Trace, progress func(ScanProgress)) (*ScanResult, error) {
	result := &ScanResult{}
	seen := make(map[string]struct{})
	state := ScanProgress{}
	total := len(sections.List)

	trace.Step("collect_categories_start", map[string]interface{}{"nSections": total})

	for i, section := range sections.List {
		if token.Cancelled() {
			trace.Step("collect_categories_cancelled", map[string]interface{}{"i": i, "nSections": total})
			result.Cancelled = true
			break
		}
		if maxItems > 0 && state.ItemsDiscovered >= maxItems {
			trace.Step("max_items_reached", map[string]interface{}{"i": i, "maxItems": maxItems})
			break
		}

		name := CategoryName(section.Selection)
		trace.Step("category_name_extracted", map[string]interface{}{"i": i, "catName": name})

		loaded, err := c.materializer.MaterializeSection(ctx, page, section.Locator)
		if err != nil {
			return nil, fmt.Errorf("materialize section %d: %w", i, err)
		}
		if loaded > 0 {
			trace.Step("items_loaded", map[string]interface{}{"i": i, "catName": name, "itemCount": loaded})
		} else {
			trace.Step("items_not_loaded_warning", map[string]interface{}{"i": i, "catName": name})
		}

		if _, dup := seen[name]; dup {
			trace.Step("category_duplicate_skipped", map[string]interface{}{"i": i, "catName": name})
			continue
		}
		seen[name] = struct{}{}

		live := c.refresh(ctx, page, section)
		discovery := DiscoverItems(live.Selection, c.strategies, trace)
		items := discovery.Items

		if len(items) > 0 {
			items, live = c.recount(ctx, page, live, items, trace)
		}

		if maxItems > 0 && state.ItemsDiscovered+len(items) > maxItems {
			items = items[:maxItems-state.ItemsDiscovered]
		}
		trace.Step("category_scan", map[string]interface{}{"idx": i, "name": name, "nItems": len(items), "strategy": discovery.Strategy})

		category := &models.Category{Name: name, Items: make([]*models.RawItem, 0, len(items))}
		for j, item := range items {
			if token.Cancelled() {
				result.Cancelled = true
				break
			}
			if j > 0 {
				if err := common.Sleep(ctx, c.Pacing.itemDelay(j)); err != nil {
					return nil, err
				}
			}

			raw := c.scanItem(ctx, page, live, item, result)
			category.Items = append(category.Items, raw)
			if raw.Resolvable() {
				result.Resolvable = append(result.Resolvable, raw)
			}
		}

		result.Categories = append(result.Categories, category)
		state.SectionsProcessed++
		state.ItemsDiscovered += len(category.Items)
		trace.Step("category_completed", map[string]interface{}{
			"i":                 i,
			"catName":           name,
			"itemsInCategory":   len(category.Items),
			"sectionsProcessed": state.SectionsProcessed,
			"itemsDiscovered":   state.ItemsDiscovered,
		})
		if progress != nil {
			progress(state)
		}
		if result.Cancelled {
			break
		}

		if i < total-1 {
			if err := common.Sleep(ctx, common.Jitter(c.Pacing.SectionBase, c.Pacing.SectionSpread)); err != nil {
				return nil, err
			}
		}
	}

	trace.Step("collect_categories_complete", map[string]interface{}{
		"totalCategories":   len(result.Categories),
		"totalItems":        len(result.Resolvable),
		"sectionsProcessed": state.SectionsProcessed,
		"itemsDiscovered":   state.ItemsDiscovered,
	})
	return result, nil
}

// refresh re-reads the section from a fresh snapshot after materialization
func (c *Collector) refresh(ctx context.Context, page interfaces.Page, section *Section) *Section {
	html, err := page.HTML(ctx)
	if err != nil {
		return section
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return section
	}
	sel := Locate(doc, section.Locator)
	if sel.Length() == 0 {
		return section
	}
	return &Section{Locator: section.Locator, Selection: sel}
}

// recount scrolls through the section once more and adopts the precise
// selector's items when the live page now shows more of them.
func (c *Collector) recount(ctx context.Context, page interfaces.Page, section *Section, items []*goquery.Selection, trace *models.Trace) ([]*goquery.Selection, *Section) {
	if err := page.ScrollSection(ctx, section.Locator, models.ScrollWindowStep); err != nil {
		return items, section
	}
	if err := common.Sleep(ctx, c.Pacing.RecountPause); err != nil {
		return items, section
	}
	count, err := page.CountWithin(ctx, section.Locator, PreciseItemSelector)
	if err != nil || count <= len(items) {
		return items, section
	}

	refreshed := c.refresh(ctx, page, section)
	precise := split(refreshed.Selection.Find(PreciseItemSelector))
	if len(precise) <= len(items) {
		return items, section
	}
	trace.Step("final_scroll_found_more_items", map[string]interface{}{"originalCount": len(items), "finalCount": len(precise)})
	return precise, refreshed
}

func (c *Collector) scanItem(ctx context.Context, page interfaces.Page, section *Section, item *goquery.Selection, result *ScanResult) *models.RawItem {
	raw := ExtractFields(item)
	testID, _ := item.Attr("data-testid")
	ids := ParseIdentifiers(raw.Href, testID)

	if !ids.Resolvable() && c.resolver != nil {
		hint := ""
		if uuids := FindUUIDs(testID); len(uuids) > 0 {
			hint = uuids[0]
		}
		if loc, ok := ItemLocator(section, item); ok {
			if observed, ok := c.resolver.Resolve(ctx, page, loc, hint); ok {
				observed.Merge(ids)
				ids = observed
			}
		}
	}

	if result.StoreUUID == "" && ids.StoreUUID != "" {
		result.StoreUUID = ids.StoreUUID
	}
	raw.ItemIdentifiers = ids
	return raw
}
