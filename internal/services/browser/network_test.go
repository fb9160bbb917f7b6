package browser

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/harvester/internal/models"
)

func TestRequestBody_DecodesEntries(t *testing.T) {
	payload := `{"menuItemUuid":"5c3b1e2a-1111-4222-8333-444455556666"}`
	req := &network.Request{
		PostDataEntries: []*network.PostDataEntry{
			{Bytes: base64.StdEncoding.EncodeToString([]byte(payload[:10]))},
			{Bytes: base64.StdEncoding.EncodeToString([]byte(payload[10:]))},
		},
	}
	assert.Equal(t, payload, requestBody(req))
	assert.Equal(t, "", requestBody(&network.Request{}))
	assert.Equal(t, "", requestBody(nil))
}

func TestMatches(t *testing.T) {
	filter := models.NetworkFilter{Method: "POST", URLContains: "/_p/api/getMenuItemV1", BodyContains: "abc"}

	assert.True(t, matches(filter, "https://www.example.com/_p/api/getMenuItemV1?x=1", "post", `{"id":"abc"}`))
	assert.False(t, matches(filter, "https://www.example.com/_p/api/getMenuItemV1", "GET", `{"id":"abc"}`))
	assert.False(t, matches(filter, "https://www.example.com/_p/api/getStoreV1", "POST", `{"id":"abc"}`))
	assert.False(t, matches(filter, "https://www.example.com/_p/api/getMenuItemV1", "POST", `{"id":"xyz"}`))
	assert.True(t, matches(models.NetworkFilter{}, "anything", "GET", ""))
}

func TestScripts_EmbedArgumentsAsJSON(t *testing.T) {
	script := countScript(`a[data-testid^="store-item-"]`)
	assert.True(t, strings.Contains(script, `"a[data-testid^=\"store-item-\"]"`))

	loc := models.Locator{Selector: "*", Index: 4, Within: &models.Locator{Selector: "section", Index: 1}}
	script = clickScript(loc)
	assert.Contains(t, script, `"within":{"selector":"section","index":1}`)

	script = scrollSectionScript(models.Locator{Selector: "li", Index: 0}, models.ScrollInnerScroll)
	assert.Contains(t, script, `"inner_scroll"`)
}
