package discovery

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/harvester/internal/models"
)

const richTextSelector = `span[data-testid="rich-text"]`

var (
	priceRx      = regexp.MustCompile(`(\$|€|£|¥|₹|₩|₱|₪|R\$|S/\.|\bUSD\b|\bCOP\b|\bMXN\b|\bCLP\b|\bPEN\b|\bBRL\b)\s*\d`)
	percentRx    = regexp.MustCompile(`^\d+%`)
	ratingRx     = regexp.MustCompile(`\(\d+\)`)
	whitespaceRx = regexp.MustCompile(`\s+`)
)

// ExtractFields reads the display fields of an item card
func ExtractFields(item *goquery.Selection) *models.RawItem {
	raw := &models.RawItem{}

	rich := item.Find(richTextSelector)
	raw.Name = strings.TrimSpace(rich.First().Text())
	if raw.Name == "" {
		raw.Name = strings.TrimSpace(strings.SplitN(strings.TrimSpace(item.Text()), "\n", 2)[0])
	}

	rich.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if txt := strings.TrimSpace(s.Text()); strings.Contains(txt, "$") {
			raw.PriceText = txt
			return false
		}
		return true
	})

	raw.Description = description(item, raw.Name)

	if src, ok := item.Find("img").First().Attr("src"); ok {
		raw.ImageURL = src
	}
	raw.Href, _ = item.Attr("href")
	return raw
}

// description prefers the longest plain span of the text column, then the
// first rich text that is not the name, a price or badge noise.
func description(item *goquery.Selection, name string) string {
	column := item.Find("div").FilterFunction(func(_ int, d *goquery.Selection) bool {
		return d.Find(richTextSelector).Length() > 0 && d.Find("span:not([data-testid])").Length() > 0
	}).First()
	if column.Length() == 0 {
		return ""
	}

	var plain []string
	column.Find("span:not([data-testid])").Each(func(_ int, s *goquery.Selection) {
		if t := clean(s.Text()); t != "" {
			plain = append(plain, t)
		}
	})
	if len(plain) > 0 {
		sort.SliceStable(plain, func(i, j int) bool { return len(plain[i]) > len(plain[j]) })
		return plain[0]
	}

	var found string
	column.Find(richTextSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if t == "" || t == name || priceRx.MatchString(t) || isBadge(t) {
			return true
		}
		found = t
		return false
	})
	return found
}

func clean(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(whitespaceRx.ReplaceAllString(s, " "))
}

func isBadge(t string) bool {
	return t == "•" || percentRx.MatchString(t) || ratingRx.MatchString(t)
}
