package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/harvester/internal/models"
)

// ErrInvalidURL is returned for scrape targets that are not absolute http(s) URLs
var ErrInvalidURL = errors.New("invalid url")

var (
	encodedSpaceRx    = regexp.MustCompile(`(?i)%20`)
	duplicateSlashRx  = regexp.MustCompile(`/+`)
	encodedStoreSpace = regexp.MustCompile(`(?i)/%20store`)
)

// ValidateTargetURL checks that a scrape target is an absolute http(s) URL
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// SanitizeURL removes encoded spaces from path segments and collapses
// duplicate slashes. Query and fragment are left untouched.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return encodedStoreSpace.ReplaceAllString(raw, "/store")
	}

	path := u.EscapedPath()
	path = encodedSpaceRx.ReplaceAllString(path, "")
	path = duplicateSlashRx.ReplaceAllString(path, "/")

	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return raw
	}
	u.Path = unescaped
	u.RawPath = ""
	return u.String()
}

// ToAbsoluteURL resolves href against base. Empty or unparseable input yields "".
func ToAbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// ParseGeolocation reads coordinates from latitude/longitude query parameters,
// falling back to the JSON-encoded "pl" parameter. Returns nil when absent.
func ParseGeolocation(raw string) *models.Geolocation {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	q := u.Query()

	if latRaw, lngRaw := q.Get("latitude"), q.Get("longitude"); latRaw != "" && lngRaw != "" {
		lat, errLat := strconv.ParseFloat(latRaw, 64)
		lng, errLng := strconv.ParseFloat(lngRaw, 64)
		if errLat == nil && errLng == nil {
			return &models.Geolocation{Latitude: lat, Longitude: lng}
		}
	}

	pl := q.Get("pl")
	if pl == "" {
		return nil
	}
	decoded, err := url.PathUnescape(pl)
	if err != nil {
		decoded = pl
	}
	if !strings.HasPrefix(strings.TrimSpace(decoded), "{") {
		return nil
	}

	var payload struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return nil
	}
	if payload.Latitude == nil || payload.Longitude == nil {
		return nil
	}
	return &models.Geolocation{Latitude: *payload.Latitude, Longitude: *payload.Longitude}
}
