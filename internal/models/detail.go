package models

import (
	"encoding/json"
	"strings"
)

// DetailKind tags which variant a DetailPayload carries.
type DetailKind int

const (
	// DetailOpaque is a payload that did not match the known schema.
	DetailOpaque DetailKind = iota
	// DetailKnown is a payload with a decoded data section.
	DetailKnown
)

// DetailPayload is a decoded item detail response.
// Raw is always retained; Known is set only for DetailKnown.
type DetailPayload struct {
	Kind  DetailKind
	Known *DetailData
	Raw   json.RawMessage
}

// DetailData is the subset of the detail response the assembler reads.
type DetailData struct {
	Title              string         `json:"title"`
	ItemDescription    string         `json:"itemDescription"`
	MenuItemUUID       string         `json:"menuItemUuid"`
	UUID               string         `json:"uuid"`
	StoreUUID          string         `json:"storeUuid"`
	CustomizationsList []*DetailGroup `json:"customizationsList"`
	ModifierGroups     []*DetailGroup `json:"modifierGroups"`
}

// Groups returns customizationsList, falling back to modifierGroups.
func (d *DetailData) Groups() []*DetailGroup {
	if d == nil {
		return nil
	}
	if len(d.CustomizationsList) > 0 {
		return d.CustomizationsList
	}
	return d.ModifierGroups
}

// DetailGroup is a modifier group as reported by the detail endpoint.
type DetailGroup struct {
	UUID         string          `json:"uuid"`
	Title        string          `json:"title"`
	Name         string          `json:"name"`
	MinPermitted *float64        `json:"minPermitted"`
	MinRequired  *float64        `json:"minRequired"`
	Min          *float64        `json:"min"`
	MaxPermitted *float64        `json:"maxPermitted"`
	MaxAllowed   *float64        `json:"maxAllowed"`
	Max          *float64        `json:"max"`
	Options      []*DetailOption `json:"options"`
	Modifiers    []*DetailOption `json:"modifiers"`
}

// DisplayTitle returns the trimmed title, falling back to name.
func (g *DetailGroup) DisplayTitle() string {
	if t := strings.TrimSpace(g.Title); t != "" {
		return t
	}
	return strings.TrimSpace(g.Name)
}

// AllOptions returns options, falling back to modifiers.
func (g *DetailGroup) AllOptions() []*DetailOption {
	if len(g.Options) > 0 {
		return g.Options
	}
	return g.Modifiers
}

// DetailOption is one option inside a DetailGroup. Prices are in cents.
type DetailOption struct {
	UUID       string   `json:"uuid"`
	Title      string   `json:"title"`
	Name       string   `json:"name"`
	Price      *float64 `json:"price"`
	PriceCents *float64 `json:"priceCents"`
}

// DisplayTitle returns the trimmed title, falling back to name.
func (o *DetailOption) DisplayTitle() string {
	if t := strings.TrimSpace(o.Title); t != "" {
		return t
	}
	return strings.TrimSpace(o.Name)
}

// Upcharge converts the option price from cents to currency units.
func (o *DetailOption) Upcharge() *float64 {
	cents := o.PriceCents
	if cents == nil {
		cents = o.Price
	}
	if cents == nil {
		return nil
	}
	v := *cents / 100
	return &v
}

type detailEnvelope struct {
	Data         *DetailData `json:"data"`
	MenuItemUUID string      `json:"menuItemUuid"`
}

// DecodeDetail parses a raw detail response into the tagged union.
// Anything without a data object decodes as DetailOpaque.
func DecodeDetail(raw json.RawMessage) DetailPayload {
	payload := DetailPayload{Kind: DetailOpaque, Raw: raw}
	if len(raw) == 0 {
		return payload
	}
	var env detailEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Data == nil {
		return payload
	}
	if env.Data.MenuItemUUID == "" {
		env.Data.MenuItemUUID = env.MenuItemUUID
	}
	payload.Kind = DetailKnown
	payload.Known = env.Data
	return payload
}

// ReferencedItemUUID returns the item uuid the payload claims to describe.
func (p DetailPayload) ReferencedItemUUID() string {
	if p.Kind != DetailKnown {
		var env detailEnvelope
		if err := json.Unmarshal(p.Raw, &env); err == nil {
			return env.MenuItemUUID
		}
		return ""
	}
	if p.Known.MenuItemUUID != "" {
		return p.Known.MenuItemUUID
	}
	return p.Known.UUID
}
