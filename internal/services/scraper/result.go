package scraper

import (
	"encoding/json"

	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/assembler"
)

// respond assembles the response from the categories collected so far
func (e *Engine) respond(r *run, categories []*models.Category, storeName, storeUUID string, failed []*models.RawItem) *models.ScrapeResponse {
	scraped := assembler.Assemble(categories, storeName, storeUUID)
	return &models.ScrapeResponse{
		Raw: &models.RawResult{
			JobID:       r.jobID,
			Scraped:     scraped,
			StoreUUID:   storeUUID,
			TotalItems:  scraped.TotalItems(),
			Categories:  len(scraped.Categories),
			FailedItems: failedItems(failed),
		},
		Normalized: assembler.Normalize(scraped),
		Debug:      r.trace.Debug(),
	}
}

// cancelled marks the job cancelled and returns the partial result.
// Counters keep whatever the last progress update wrote.
func (e *Engine) cancelled(r *run, message string, categories []*models.Category, storeName, storeUUID string, failed []*models.RawItem) *models.ScrapeResponse {
	r.trace.Step(message, nil)
	resp := e.respond(r, categories, storeName, storeUUID, failed)

	e.store.MarkCancelled(r.jobID, models.JobPatch{
		Stage:       models.String(models.StageCancelled),
		Message:     models.String(message),
		FailedItems: resp.Raw.FailedItems,
	})
	r.logger.Info().
		Str("job_id", r.jobID).
		Str("reason", message).
		Int("items", resp.Raw.TotalItems).
		Msg("Scrape job cancelled")

	resp.Debug = r.trace.Debug()
	return resp
}

func failedItems(items []*models.RawItem) []models.FailedItem {
	out := make([]models.FailedItem, 0, len(items))
	for _, it := range items {
		out = append(out, models.FailedItem{ID: it.ItemUUID, Href: it.Href, Title: it.Name})
	}
	return out
}

// attachDetails hangs fetched payloads onto their items
func attachDetails(categories []*models.Category, details map[string]json.RawMessage) {
	for _, cat := range categories {
		for _, it := range cat.Items {
			if raw, ok := details[it.ItemUUID]; ok && it.ItemUUID != "" {
				it.Detail = raw
			}
		}
	}
}

// inferStoreUUID prefers a store uuid carried by an item over one seen in a click
func inferStoreUUID(items []*models.RawItem, fallback string) string {
	for _, it := range items {
		if it.StoreUUID != "" {
			return it.StoreUUID
		}
	}
	return fallback
}

func storeUUIDFromDetails(categories []*models.Category) string {
	for _, cat := range categories {
		for _, it := range cat.Items {
			if id := assembler.FindStoreUUID(it.Detail); id != "" {
				return id
			}
		}
	}
	return ""
}

func countItems(categories []*models.Category) int {
	total := 0
	for _, c := range categories {
		total += len(c.Items)
	}
	return total
}
