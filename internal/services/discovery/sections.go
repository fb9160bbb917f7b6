package discovery

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ternarybob/harvester/internal/models"
)

// ErrNoSections means no tier of the section cascade matched
var ErrNoSections = errors.New("no menu sections could be detected")

// itemLikeSelector marks descendants that make a container look like a menu section
const itemLikeSelector = `a[href*="/store/"], a[href*="item"], .menu-item, .item`

const (
	containerSelector = "div, section, li"
	minContainerItems = 3
)

// sectionSelectors are tried strict to loose
var sectionSelectors = []string{
	`li[data-testid="store-catalog-subsection-container"]`,
	`h3[data-testid*="rich-text"]`,
	`div[data-testid="catalog-section-header"]`,
	`div[data-testid="catalog-section-title"]`,
	`[data-testid*="subsection"]`,
	`[data-testid*="section"]`,
	"section",
	".menu-section",
	".category-section",
}

// Section is a menu section in a page snapshot together with the locator
// that addresses the same element on the live page.
type Section struct {
	Locator   models.Locator
	Selection *goquery.Selection
}

// Sections is the outcome of the section cascade
type Sections struct {
	List     []*Section
	Selector string // selector or synthetic tier name that produced List
}

// DiscoverSections runs the section cascade over a page snapshot
func DiscoverSections(doc *goquery.Document, trace *models.Trace) (*Sections, error) {
	trace.Step("detect_sections_start", map[string]interface{}{"selectorsToTry": len(sectionSelectors)})

	for _, sel := range sectionSelectors {
		matches := doc.Find(sel)
		count := matches.Length()
		trace.Step("selector_check", map[string]interface{}{"selector": sel, "count": count})
		if count == 0 {
			continue
		}
		hasItems := matches.First().Find(itemLikeSelector).Length()
		if hasItems == 0 {
			continue
		}
		result := &Sections{Selector: sel}
		matches.Each(func(i int, s *goquery.Selection) {
			result.List = append(result.List, &Section{
				Locator:   models.Locator{Selector: sel, Index: i},
				Selection: s,
			})
		})
		trace.Step("sections_found", map[string]interface{}{"selector": sel, "nSections": count})
		return result, nil
	}

	// Synthetic set: any container holding enough item-like descendants
	containers := &Sections{Selector: "item-containers"}
	doc.Find(containerSelector).Each(func(i int, s *goquery.Selection) {
		if s.Find(itemLikeSelector).Length() >= minContainerItems {
			containers.List = append(containers.List, &Section{
				Locator:   models.Locator{Selector: containerSelector, Index: i},
				Selection: s,
			})
		}
	})
	trace.Step("fallback_containers_valid", map[string]interface{}{"validCount": len(containers.List)})
	if len(containers.List) > 0 {
		return containers, nil
	}

	if total := doc.Find(itemLikeSelector).Length(); total > 0 {
		trace.Step("fallback_body_success", map[string]interface{}{"totalItems": total})
		return &Sections{
			Selector: "body-container",
			List: []*Section{{
				Locator:   models.Locator{Selector: "body", Index: 0},
				Selection: doc.Find("body").First(),
			}},
		}, nil
	}

	trace.Step("sections_detection_failed", nil)
	return nil, ErrNoSections
}

// Locate finds the element a locator addresses within a snapshot
func Locate(doc *goquery.Document, loc models.Locator) *goquery.Selection {
	root := doc.Selection
	if loc.Within != nil {
		root = Locate(doc, *loc.Within)
		if root.Length() == 0 {
			return root
		}
	}
	return root.Find(loc.Selector).Eq(loc.Index)
}

// headerSelectors name a section, most specific first
var headerSelectors = []string{
	`h3[data-testid*="rich-text"]`,
	"h3",
	`div[data-testid="catalog-section-header"]`,
	`div[data-testid="catalog-section-title"]`,
	`[data-testid="rich-text"]`,
	"h1", "h2", "h4",
	`[data-testid*="category"]`,
	`[data-testid*="tab"]`,
	".category-name",
	".section-title",
	".menu-category",
}

var contextWords = []string{"Menu", "Category", "Section", "Food", "Dish", "Item"}

// UntitledCategory names sections without a recognizable header
const UntitledCategory = "Untitled"

// CategoryName reads the section header, falling back to an ancestor of the
// first clickable whose own text mentions a menu word.
func CategoryName(section *goquery.Selection) string {
	// A section located by its header element is its own header
	if goquery.NodeName(section) == "h3" {
		if txt := strings.TrimSpace(section.Text()); txt != "" {
			return txt
		}
	}
	for _, sel := range headerSelectors {
		if txt := strings.TrimSpace(section.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}

	first := section.Find(`a, button, [role="button"]`).First()
	if first.Length() > 0 {
		for p := first.Parent(); p.Length() > 0; p = p.Parent() {
			own := ownText(p)
			for _, w := range contextWords {
				if strings.Contains(own, w) {
					return strings.TrimSpace(strings.SplitN(p.Text(), "\n", 2)[0])
				}
			}
		}
	}
	return UntitledCategory
}

// ownText joins the element's direct text nodes
func ownText(s *goquery.Selection) string {
	var sb strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
	}
	return sb.String()
}
