package discovery

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/harvester/internal/models"
)

var (
	uuidRx   = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	originRx = regexp.MustCompile(`(?i)^https?://[^/]+`)
)

// FindUUIDs returns every uuid in s in order of appearance
func FindUUIDs(s string) []string {
	return uuidRx.FindAllString(s, -1)
}

type modContext struct {
	SectionUUID    string `json:"sectionUuid"`
	SubsectionUUID string `json:"subsectionUuid"`
	ItemUUID       string `json:"itemUuid"`
	MenuItemUUID   string `json:"menuItemUuid"`
	StoreUUID      string `json:"storeUuid"`
}

// ParseIdentifiers reads item identifiers from an anchor: the last three path
// uuids, then the modctx query JSON, then the store-item test id.
func ParseIdentifiers(href, testID string) models.ItemIdentifiers {
	path := originRx.ReplaceAllString(href, "")
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if uuids := FindUUIDs(path); len(uuids) >= 3 {
		tail := uuids[len(uuids)-3:]
		return models.ItemIdentifiers{SectionUUID: tail[0], SubsectionUUID: tail[1], ItemUUID: tail[2]}
	}

	if ids, ok := parseModContext(href); ok {
		return ids
	}

	if strings.Contains(strings.ToLower(testID), "store-item-") {
		if uuids := FindUUIDs(testID); len(uuids) > 0 {
			return models.ItemIdentifiers{ItemUUID: uuids[0]}
		}
	}
	return models.ItemIdentifiers{}
}

func parseModContext(href string) (models.ItemIdentifiers, bool) {
	_, query, found := strings.Cut(href, "?")
	if !found || query == "" {
		return models.ItemIdentifiers{}, false
	}
	if i := strings.Index(query, "#"); i >= 0 {
		query = query[:i]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return models.ItemIdentifiers{}, false
	}
	raw := values.Get("modctx")
	if raw == "" {
		return models.ItemIdentifiers{}, false
	}

	// modctx is often encoded twice
	for i := 0; i < 2 && !strings.HasPrefix(strings.TrimSpace(raw), "{"); i++ {
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			return models.ItemIdentifiers{}, false
		}
		raw = decoded
	}

	var mc modContext
	if err := json.Unmarshal([]byte(raw), &mc); err != nil {
		return models.ItemIdentifiers{}, false
	}
	ids := models.ItemIdentifiers{
		SectionUUID:    mc.SectionUUID,
		SubsectionUUID: mc.SubsectionUUID,
		ItemUUID:       mc.ItemUUID,
		StoreUUID:      mc.StoreUUID,
	}
	if ids.ItemUUID == "" {
		ids.ItemUUID = mc.MenuItemUUID
	}
	return ids, ids.ItemUUID != "" || ids.StoreUUID != ""
}

// parseDetailRequest reads identifiers from a detail endpoint request body
func parseDetailRequest(body string) models.ItemIdentifiers {
	var req struct {
		MenuItemUUID   string `json:"menuItemUuid"`
		SectionUUID    string `json:"sectionUuid"`
		SubsectionUUID string `json:"subsectionUuid"`
		StoreUUID      string `json:"storeUuid"`
	}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return models.ItemIdentifiers{}
	}
	return models.ItemIdentifiers{
		ItemUUID:       req.MenuItemUUID,
		SectionUUID:    req.SectionUUID,
		SubsectionUUID: req.SubsectionUUID,
		StoreUUID:      req.StoreUUID,
	}
}
