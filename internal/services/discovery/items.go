package discovery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/harvester/internal/models"
)

// PreciseItemSelector matches item cards on the current storefront layout
const PreciseItemSelector = `a[data-testid^="store-item-"]`

// Adoption controls when a strategy is evaluated
type Adoption int

const (
	// WhenEmpty runs only while no items have been found
	WhenEmpty Adoption = iota
	// Always runs regardless of the current set
	Always
	// WhenFewerThanFive runs while the current set has fewer than five items
	WhenFewerThanFive
)

// ItemStrategy is one tier of the item cascade. A tier's result replaces the
// current set only when strictly larger.
type ItemStrategy interface {
	Name() string
	Adoption() Adoption
	Attempt(section *goquery.Selection) ([]*goquery.Selection, bool)
}

// DefaultStrategies returns the item tiers in evaluation order
func DefaultStrategies() []ItemStrategy {
	return []ItemStrategy{
		selectorStrategy{name: "precise", selector: PreciseItemSelector},
		firstMatchStrategy{name: "layout_agnostic", selectors: layoutAgnosticSelectors},
		containerStrategy{name: "container_aggregation"},
		interactiveStrategy{name: "interactive_elements"},
		selectorStrategy{name: "union", selector: strings.Join(unionSelectors, ", "), adoption: Always},
		anchorFilterStrategy{name: "anchor_filter"},
	}
}

var layoutAgnosticSelectors = []string{
	`a[data-testid*="store-item"]`,
	`a[href*="/store/"]`,
	`a[href*="item"]`,
	`a[href*="mod=quickView"]`,
	`[data-testid*="item"]`,
	".menu-item a",
	".item a",
	`a[role="button"]`,
	`button[role="button"]`,
	`[data-testid*="menu"]`,
}

var containerSelectors = []string{
	`div[data-ref="store-carousel"]`,
	`div[data-testid="store-catalog-section-vertical-grid"]`,
	`div[class*="de"][class*="oh"][class*="ag"]`,
	`div[class*="i4"][class*="gn"][class*="kp"]`,
	`div[class*="i6"][class*="kr"][class*="ks"]`,
	"div",
}

const containerItemSelector = `a[data-testid^="store-item-"], a[data-testid*="store-item"], a[href*="/store/"]`

var unionSelectors = []string{
	`a[data-testid^="store-item-"]`,
	`a[data-testid*="store-item"]`,
	`a[href*="/store/"]`,
	`a[href*="/item"]`,
	`a[data-testid*="item"]`,
	"ul li a",
	`div[data-ref="store-carousel"] a`,
	`div[data-testid="store-catalog-section-vertical-grid"] a`,
	`div[class*="carousel"] a`,
	`div[class*="grid"] a`,
	`div[class*="de"][class*="oh"] a`,
	`div[class*="i4"][class*="gn"] a`,
	`div[class*="i6"][class*="kr"] a`,
	"a",
}

type selectorStrategy struct {
	name     string
	selector string
	adoption Adoption
}

func (s selectorStrategy) Name() string       { return s.name }
func (s selectorStrategy) Adoption() Adoption { return s.adoption }

func (s selectorStrategy) Attempt(section *goquery.Selection) ([]*goquery.Selection, bool) {
	found := split(section.Find(s.selector))
	return found, len(found) > 0
}

// firstMatchStrategy takes the first selector with any match
type firstMatchStrategy struct {
	name      string
	selectors []string
}

func (s firstMatchStrategy) Name() string       { return s.name }
func (s firstMatchStrategy) Adoption() Adoption { return WhenEmpty }

func (s firstMatchStrategy) Attempt(section *goquery.Selection) ([]*goquery.Selection, bool) {
	for _, sel := range s.selectors {
		if found := split(section.Find(sel)); len(found) > 0 {
			return found, true
		}
	}
	return nil, false
}

// containerStrategy aggregates item anchors across every container pattern
type containerStrategy struct {
	name string
}

func (s containerStrategy) Name() string       { return s.name }
func (s containerStrategy) Adoption() Adoption { return WhenEmpty }

func (s containerStrategy) Attempt(section *goquery.Selection) ([]*goquery.Selection, bool) {
	seen := make(map[interface{}]struct{})
	var found []*goquery.Selection
	for _, sel := range containerSelectors {
		section.Find(sel).Each(func(_ int, container *goquery.Selection) {
			container.Find(containerItemSelector).Each(func(_ int, item *goquery.Selection) {
				node := item.Get(0)
				if _, dup := seen[node]; dup {
					return
				}
				seen[node] = struct{}{}
				found = append(found, item)
			})
		})
	}
	return found, len(found) > 0
}

const interactiveSelector = `a, button, [role="button"], [tabindex]`

// interactiveStrategy is the last resort for sections without item anchors:
// any clickable element carrying visible text
type interactiveStrategy struct {
	name string
}

func (s interactiveStrategy) Name() string       { return s.name }
func (s interactiveStrategy) Adoption() Adoption { return WhenEmpty }

func (s interactiveStrategy) Attempt(section *goquery.Selection) ([]*goquery.Selection, bool) {
	var found []*goquery.Selection
	section.Find(interactiveSelector).Each(func(_ int, el *goquery.Selection) {
		if strings.TrimSpace(el.Text()) != "" {
			found = append(found, el)
		}
	})
	return found, len(found) > 0
}

// anchorFilterStrategy keeps anchors whose href or test id looks like an item
type anchorFilterStrategy struct {
	name string
}

func (s anchorFilterStrategy) Name() string       { return s.name }
func (s anchorFilterStrategy) Adoption() Adoption { return WhenFewerThanFive }

func (s anchorFilterStrategy) Attempt(section *goquery.Selection) ([]*goquery.Selection, bool) {
	var found []*goquery.Selection
	section.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		testID, _ := a.Attr("data-testid")
		if strings.Contains(href, "/store/") || strings.Contains(href, "/item") || strings.Contains(testID, "store-item") {
			found = append(found, a)
		}
	})
	return found, len(found) > 0
}

func split(s *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, s.Length())
	s.Each(func(_ int, item *goquery.Selection) {
		out = append(out, item)
	})
	return out
}

// Discovery is the outcome of running the item cascade over one section
type Discovery struct {
	Items    []*goquery.Selection
	Strategy string
}

// DiscoverItems runs the strategies in order over a section snapshot
func DiscoverItems(section *goquery.Selection, strategies []ItemStrategy, trace *models.Trace) *Discovery {
	result := &Discovery{}
	for _, strategy := range strategies {
		switch strategy.Adoption() {
		case WhenEmpty:
			if len(result.Items) > 0 {
				continue
			}
		case WhenFewerThanFive:
			if len(result.Items) >= 5 {
				continue
			}
		}

		found, ok := strategy.Attempt(section)
		trace.Step("item_strategy", map[string]interface{}{
			"strategy": strategy.Name(),
			"count":    len(found),
			"current":  len(result.Items),
		})
		if ok && len(found) > len(result.Items) {
			result.Items = found
			result.Strategy = strategy.Name()
		}
	}
	return result
}

// ItemLocator addresses an item of a section snapshot on the live page
func ItemLocator(section *Section, item *goquery.Selection) (models.Locator, bool) {
	idx := section.Selection.Find("*").IndexOfNode(item.Get(0))
	if idx < 0 {
		return models.Locator{}, false
	}
	within := section.Locator
	return models.Locator{Within: &within, Selector: "*", Index: idx}, true
}
