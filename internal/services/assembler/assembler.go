// Package assembler folds scanned categories and detail payloads into the
// canonical scraped structure and its derived views. Everything here is
// deterministic and free of side effects.
package assembler

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/harvester/internal/models"
)

const (
	// DefaultStoreName is used when no store heading was found
	DefaultStoreName = "Restaurant"
	// DefaultCategoryTitle is used for categories without a title
	DefaultCategoryTitle = "Category"
	// DefaultGroupTitle is used for modifier groups without a title
	DefaultGroupTitle = "Options"
	// DefaultCurrency is attached to every parsed price
	DefaultCurrency = "USD"
	// FeaturedCategory duplicates items from other categories and is left out of exports
	FeaturedCategory = "Featured items"
)

var nonPriceRx = regexp.MustCompile(`[^0-9.]`)

// ParsePrice keeps digits and dots of a card price and parses the rest.
// Returns nil when nothing numeric remains.
func ParsePrice(text string) *models.Price {
	if text == "" {
		return nil
	}
	cleaned := nonPriceRx.ReplaceAllString(text, "")
	amount, err := strconv.ParseFloat(leadingNumber(cleaned), 64)
	if err != nil {
		return nil
	}
	return &models.Price{Amount: amount, CurrencyCode: DefaultCurrency}
}

// leadingNumber trims to the longest prefix with at most one dot
func leadingNumber(s string) string {
	dot := false
	for i, r := range s {
		if r == '.' {
			if dot {
				return s[:i]
			}
			dot = true
		}
	}
	return s
}

// Assemble builds the canonical structure. Items take the store uuid they
// carry, falling back to storeUUID.
func Assemble(categories []*models.Category, storeName, storeUUID string) *models.ScrapedData {
	if storeName == "" {
		storeName = DefaultStoreName
	}
	scraped := &models.ScrapedData{
		Store:      models.ScrapedStore{Name: storeName},
		Categories: make([]*models.ScrapedCategory, 0, len(categories)),
	}

	for idx, cat := range categories {
		out := &models.ScrapedCategory{
			ID:    idx,
			Title: cat.Name,
			Items: make([]*models.ScrapedItem, 0, len(cat.Items)),
		}
		for j, raw := range cat.Items {
			out.Items = append(out.Items, assembleItem(raw, idx, j, storeUUID))
		}
		scraped.Categories = append(scraped.Categories, out)
	}
	return scraped
}

func assembleItem(raw *models.RawItem, idx, j int, storeUUID string) *models.ScrapedItem {
	detail := models.DecodeDetail(raw.Detail)

	id := raw.ItemUUID
	if id == "" {
		id = fmt.Sprintf("%d-%d", idx, j)
	}
	item := &models.ScrapedItem{
		ID:             id,
		Title:          raw.Name,
		Description:    raw.Description,
		Price:          ParsePrice(raw.PriceText),
		ImageURL:       raw.ImageURL,
		ItemUUID:       raw.ItemUUID,
		SectionUUID:    raw.SectionUUID,
		SubsectionUUID: raw.SubsectionUUID,
		StoreUUID:      raw.StoreUUID,
		DetailRaw:      raw.Detail,
	}
	if item.StoreUUID == "" {
		item.StoreUUID = storeUUID
	}
	if detail.Kind == models.DetailKnown {
		if item.Title == "" {
			item.Title = strings.TrimSpace(detail.Known.Title)
		}
		if item.Description == "" {
			item.Description = strings.TrimSpace(detail.Known.ItemDescription)
		}
	}
	return item
}

// Normalize derives the menu view with per-item modifier groups
func Normalize(scraped *models.ScrapedData) *models.MenuData {
	if scraped == nil {
		return nil
	}
	name := scraped.Store.Name
	if name == "" {
		name = DefaultStoreName
	}
	menu := &models.MenuData{StoreName: name, Categories: make([]*models.MenuCategory, 0, len(scraped.Categories))}

	for _, cat := range scraped.Categories {
		title := cat.Title
		if title == "" {
			title = DefaultCategoryTitle
		}
		out := &models.MenuCategory{ID: cat.ID, Title: title, Items: make([]*models.MenuItem, 0, len(cat.Items))}
		for _, it := range cat.Items {
			out.Items = append(out.Items, &models.MenuItem{
				ID:             it.ID,
				Title:          it.Title,
				Description:    it.Description,
				Price:          it.Price,
				ImageURL:       it.ImageURL,
				ModifierGroups: itemGroups(it.DetailRaw),
			})
		}
		menu.Categories = append(menu.Categories, out)
	}
	return menu
}

// itemGroups converts one item's detail groups, resolving defaults per group
func itemGroups(raw json.RawMessage) []*models.ModifierGroup {
	detail := models.DecodeDetail(raw)
	if detail.Kind != models.DetailKnown {
		return nil
	}
	source := detail.Known.Groups()
	groups := make([]*models.ModifierGroup, 0, len(source))
	for _, g := range source {
		group := convertGroup(g)
		if group.Title == "" {
			group.Title = DefaultGroupTitle
		}
		if group.Min == nil {
			group.Min = intPtr(0)
		}
		if group.Max == nil {
			group.Max = intPtr(len(g.AllOptions()))
		}
		groups = append(groups, group)
	}
	return groups
}

// convertGroup maps a detail group without applying defaults
func convertGroup(g *models.DetailGroup) *models.ModifierGroup {
	title := g.DisplayTitle()
	group := &models.ModifierGroup{
		Key:         strings.ToLower(title),
		Title:       title,
		Requirement: models.RequirementOptional,
		Min:         firstInt(g.MinPermitted, g.MinRequired, g.Min),
		Max:         firstInt(g.MaxPermitted, g.MaxAllowed, g.Max),
	}
	if group.Min != nil && *group.Min > 0 {
		group.Requirement = models.RequirementRequired
	}
	for _, o := range g.AllOptions() {
		if t := o.DisplayTitle(); t != "" {
			group.Options = append(group.Options, &models.ModifierOption{Title: t, Upcharge: o.Upcharge()})
		}
	}
	return group
}

// BuildModifierGroups merges the groups of every item into a union keyed by
// lowercase title, in first-seen order. Options merge by case-insensitive
// title, min keeps the first known value, max widens and a group once
// required stays required.
func BuildModifierGroups(scraped *models.ScrapedData) []*models.ModifierGroup {
	if scraped == nil {
		return nil
	}
	var order []*models.ModifierGroup
	byKey := make(map[string]*models.ModifierGroup)

	for _, cat := range scraped.Categories {
		for _, it := range cat.Items {
			detail := models.DecodeDetail(it.DetailRaw)
			if detail.Kind != models.DetailKnown {
				continue
			}
			for _, g := range detail.Known.Groups() {
				group := convertGroup(g)
				if group.Key == "" {
					continue
				}
				cur, ok := byKey[group.Key]
				if !ok {
					byKey[group.Key] = group
					order = append(order, group)
					continue
				}
				mergeGroup(cur, group)
			}
		}
	}
	return order
}

func mergeGroup(cur, next *models.ModifierGroup) {
	seen := make(map[string]struct{}, len(cur.Options))
	for _, o := range cur.Options {
		seen[strings.ToLower(o.Title)] = struct{}{}
	}
	for _, o := range next.Options {
		key := strings.ToLower(o.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cur.Options = append(cur.Options, o)
	}

	if cur.Min == nil {
		cur.Min = next.Min
	}
	if next.Max != nil && (cur.Max == nil || *next.Max > *cur.Max) {
		cur.Max = next.Max
	}
	if next.Requirement == models.RequirementRequired {
		cur.Requirement = models.RequirementRequired
	}
}

// BuildExportDocument flattens the structure into rows for export writers
func BuildExportDocument(scraped *models.ScrapedData) *models.ExportDocument {
	doc := &models.ExportDocument{Store: scraped.Store.Name, Rows: []*models.ExportRow{}}

	for _, cat := range scraped.Categories {
		if cat.Title == FeaturedCategory {
			continue
		}
		for _, it := range cat.Items {
			detail := models.DecodeDetail(it.DetailRaw)
			row := &models.ExportRow{
				Category:    cat.Title,
				Title:       strings.TrimSpace(it.Title),
				Description: it.Description,
				ImageURL:    it.ImageURL,
			}
			if it.Price != nil {
				amount := it.Price.Amount
				row.Price = &amount
			}
			if detail.Kind == models.DetailKnown {
				if row.Title == "" {
					row.Title = strings.TrimSpace(detail.Known.Title)
				}
				if row.Description == "" {
					row.Description = detail.Known.ItemDescription
				}
				for _, g := range detail.Known.Groups() {
					if t := g.DisplayTitle(); t != "" {
						row.ModifierGroups = append(row.ModifierGroups, t)
					}
				}
			}
			if row.Title == "" {
				row.Title = strings.TrimSpace(it.Description)
			}
			doc.Rows = append(doc.Rows, row)
		}
	}

	doc.ModifierGroups = BuildModifierGroups(scraped)
	return doc
}

// FindStoreUUID searches a JSON document for the first string "storeUuid".
// Keys of an object are checked before its children; children are visited
// in key order.
func FindStoreUUID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return findStoreUUID(doc)
}

func findStoreUUID(v interface{}) string {
	switch node := v.(type) {
	case map[string]interface{}:
		if s, ok := node["storeUuid"].(string); ok {
			return s
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found := findStoreUUID(node[k]); found != "" {
				return found
			}
		}
	case []interface{}:
		for _, child := range node {
			if found := findStoreUUID(child); found != "" {
				return found
			}
		}
	}
	return ""
}

func firstInt(values ...*float64) *int {
	for _, v := range values {
		if v != nil {
			return intPtr(int(*v))
		}
	}
	return nil
}

func intPtr(i int) *int { return &i }
