// -----------------------------------------------------------------------
// Scrape request/response and the browser-facing value types
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// ScrapeRequest is the job submission payload. URL validity is checked by
// the engine so a rejected request still leaves an error record behind.
type ScrapeRequest struct {
	URL       string `json:"url" validate:"omitempty,max=4096"`
	MaxItems  int    `json:"maxItems,omitempty" validate:"omitempty,min=1"`
	TimeoutMs int    `json:"timeoutMs,omitempty" validate:"omitempty,min=0"`
	JobID     string `json:"jobId,omitempty" validate:"omitempty,max=128"`
}

// RawResult is the raw half of a scrape response.
type RawResult struct {
	JobID       string       `json:"jobId"`
	Scraped     *ScrapedData `json:"scraped"`
	StoreUUID   string       `json:"storeUuid,omitempty"`
	TotalItems  int          `json:"totalItems"`
	Categories  int          `json:"categories"`
	FailedItems []FailedItem `json:"failedItems"`
}

// ScrapeResponse is returned to the caller when a job finishes.
type ScrapeResponse struct {
	Raw        *RawResult `json:"raw"`
	Normalized *MenuData  `json:"normalized"`
	Debug      *Debug     `json:"debug"`
}

// DebugStep is one entry of the engine's diagnostic trace.
type DebugStep struct {
	At      time.Time              `json:"at"`
	Step    string                 `json:"step"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Debug is the diagnostic trace returned with every response.
type Debug struct {
	JobID string       `json:"jobId"`
	Steps []*DebugStep `json:"steps"`
}

// Geolocation is a browser geolocation override.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// SessionOptions configure a new page session.
type SessionOptions struct {
	Geolocation *Geolocation
	PacingMin   time.Duration
	PacingMax   time.Duration
}

// Locator addresses the Index-th element matching Selector on a live page,
// optionally scoped to the element addressed by Within.
type Locator struct {
	Selector string   `json:"selector"`
	Index    int      `json:"index"`
	Within   *Locator `json:"within,omitempty"`
}

// ScrollStrategy names a section-local scroll technique.
type ScrollStrategy string

const (
	ScrollIntoView    ScrollStrategy = "into_view"
	ScrollSectionEnd  ScrollStrategy = "section_end"
	ScrollWindowStep  ScrollStrategy = "window_step"
	ScrollInnerScroll ScrollStrategy = "inner_scroll"
)

// NetworkFilter selects requests a page session should capture.
type NetworkFilter struct {
	Method       string
	URLContains  string
	BodyContains string
}

// NetworkExchange is a captured request with its response body when loaded.
type NetworkExchange struct {
	URL          string
	Method       string
	RequestBody  string
	Status       int
	ResponseBody []byte
}
