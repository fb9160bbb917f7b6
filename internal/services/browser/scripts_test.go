package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextMatches(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		needles []string
		want    bool
	}{
		{"exact", "Accept", []string{"Accept"}, true},
		{"longer label", "Accept all cookies", []string{"Accept all", "I agree"}, true},
		{"case differs", "  SEE MORE ITEMS ", []string{"See more"}, true},
		{"load more", "Load more", []string{"More"}, true},
		{"close dialog", "Close dialog", []string{"Close"}, true},
		{"accented", "Ver más platos", []string{"Ver más"}, true},
		{"no match", "Add to cart", []string{"Accept", "Close"}, false},
		{"empty text", "   ", []string{"Close"}, false},
		{"empty needle", "Anything", []string{""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextMatches(tt.text, tt.needles))
		})
	}
}

func TestTextScripts_UseSubstringMatch(t *testing.T) {
	click := clickTextScript("button", []string{"Accept All", " Got it "})
	assert.Contains(t, click, `["accept all","got it"]`)
	assert.Contains(t, click, "toLowerCase()")
	assert.Contains(t, click, "t.indexOf(texts[i]) >= 0")
	assert.NotContains(t, click, "texts.indexOf(t)")

	count := countTextScript("button", []string{"See more"})
	assert.Contains(t, count, `["see more"]`)
	assert.Contains(t, count, "__textMatches")
}
