// -----------------------------------------------------------------------
// Catalog - items discovered on a storefront and the assembled structure
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
)

// ItemIdentifiers are the identifiers an item needs before its detail
// payload can be requested. StoreUUID is optional.
type ItemIdentifiers struct {
	ItemUUID       string `json:"item_uuid,omitempty"`
	SectionUUID    string `json:"section_uuid,omitempty"`
	SubsectionUUID string `json:"subsection_uuid,omitempty"`
	StoreUUID      string `json:"store_uuid,omitempty"`
}

// Resolvable reports whether the detail endpoint can be asked for this item.
func (i ItemIdentifiers) Resolvable() bool {
	return i.ItemUUID != "" && i.SectionUUID != "" && i.SubsectionUUID != ""
}

// Merge fills empty identifiers from other.
func (i *ItemIdentifiers) Merge(other ItemIdentifiers) {
	if i.ItemUUID == "" {
		i.ItemUUID = other.ItemUUID
	}
	if i.SectionUUID == "" {
		i.SectionUUID = other.SectionUUID
	}
	if i.SubsectionUUID == "" {
		i.SubsectionUUID = other.SubsectionUUID
	}
	if i.StoreUUID == "" {
		i.StoreUUID = other.StoreUUID
	}
}

// RawItem is one item as scraped from its card, before detail enrichment.
type RawItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description_card,omitempty"`
	PriceText   string          `json:"price_card,omitempty"`
	ImageURL    string          `json:"image_card,omitempty"`
	Href        string          `json:"href,omitempty"`
	Detail      json.RawMessage `json:"detail_raw,omitempty"`
	ItemIdentifiers
}

// Resolvable reports whether all three required identifiers are known.
func (r *RawItem) Resolvable() bool {
	return r.ItemIdentifiers.Resolvable()
}

// Category is a named group of items in discovery order.
type Category struct {
	Name  string     `json:"name"`
	Items []*RawItem `json:"items"`
}

// Price is a normalized price. CurrencyCode is always populated when Amount is.
type Price struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`
}

// ScrapedStore is the store header of the canonical structure.
type ScrapedStore struct {
	Name string `json:"name"`
}

// ScrapedItem is an item in the canonical export structure.
type ScrapedItem struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Price          *Price          `json:"price"`
	ImageURL       string          `json:"image_url,omitempty"`
	ItemUUID       string          `json:"item_uuid,omitempty"`
	SectionUUID    string          `json:"section_uuid,omitempty"`
	SubsectionUUID string          `json:"subsection_uuid,omitempty"`
	StoreUUID      string          `json:"store_uuid,omitempty"`
	DetailRaw      json.RawMessage `json:"detail_raw,omitempty"`
}

// ScrapedCategory is a category in the canonical export structure.
type ScrapedCategory struct {
	ID    int            `json:"id"`
	Title string         `json:"title"`
	Items []*ScrapedItem `json:"items"`
}

// ScrapedData is the canonical structure handed to export writers.
type ScrapedData struct {
	Store      ScrapedStore       `json:"store"`
	Categories []*ScrapedCategory `json:"categories"`
}

// TotalItems counts items across all categories.
func (s *ScrapedData) TotalItems() int {
	total := 0
	for _, c := range s.Categories {
		total += len(c.Items)
	}
	return total
}

// Modifier group requirement levels
const (
	RequirementRequired = "Required"
	RequirementOptional = "Optional"
)

// ModifierOption is one choice inside a modifier group.
type ModifierOption struct {
	Title    string   `json:"title" yaml:"title"`
	Upcharge *float64 `json:"upcharge" yaml:"upcharge"`
}

// ModifierGroup is a merged group of options keyed by lowercase trimmed title.
type ModifierGroup struct {
	Key         string            `json:"-" yaml:"-"`
	Title       string            `json:"title" yaml:"title"`
	Requirement string            `json:"requirement" yaml:"requirement"`
	Min         *int              `json:"min" yaml:"min"`
	Max         *int              `json:"max" yaml:"max"`
	Options     []*ModifierOption `json:"options" yaml:"options"`
}

// MenuItem is an item of the normalized view with its modifier groups.
type MenuItem struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Price          *Price           `json:"price"`
	ImageURL       string           `json:"image_url,omitempty"`
	ModifierGroups []*ModifierGroup `json:"modifier_groups"`
}

// MenuCategory is a category of the normalized view.
type MenuCategory struct {
	ID    int         `json:"id"`
	Title string      `json:"title"`
	Items []*MenuItem `json:"items"`
}

// MenuData is the normalized menu view returned next to the raw structure.
type MenuData struct {
	StoreName  string          `json:"store_name"`
	Categories []*MenuCategory `json:"categories"`
}

// ExportRow is one flattened item row written by export writers.
type ExportRow struct {
	Category       string   `json:"category" yaml:"category"`
	Title          string   `json:"title" yaml:"title"`
	Description    string   `json:"description" yaml:"description"`
	Price          *float64 `json:"price" yaml:"price"`
	ImageURL       string   `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	ModifierGroups []string `json:"modifier_groups,omitempty" yaml:"modifier_groups,omitempty"`
}

// ExportDocument is the full payload produced for an export destination.
type ExportDocument struct {
	Store          string           `json:"store" yaml:"store"`
	Rows           []*ExportRow     `json:"rows" yaml:"rows"`
	ModifierGroups []*ModifierGroup `json:"modifier_groups" yaml:"modifier_groups"`
}
