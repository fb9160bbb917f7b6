package materializer

// Item selectors shared by stabilization and section materialization
const (
	PrimaryItemSelector  = `a[data-testid^="store-item-"]`
	FallbackItemSelector = `a[data-testid*="store-item"], a[href*="/store/"]`
	SectionSelector      = `li[data-testid="store-catalog-subsection-container"]`
)

// contentSelectors is the initial presence check, strict to loose
var contentSelectors = []string{
	SectionSelector,
	PrimaryItemSelector,
	`[data-testid="rich-text"]`,
	"main section",
	".menu-item",
	".category",
	"section",
}

// probeSelectors must show up before discovery can run
var probeSelectors = []string{
	SectionSelector,
	PrimaryItemSelector,
	`[data-testid="rich-text"]`,
	"main section",
}

var storeNameSelectors = []string{
	"header h1",
	`[data-testid="rich-text"] h1`,
	"h1",
	".store-name",
	".restaurant-name",
}

var cookieButtonTexts = []string{"Accept all", "Accept All", "Accept", "I agree", "Allow all", "Got it"}

var seeMoreTexts = []string{"See more", "Ver más", "More"}

var blockedSignatures = []string{"too many requests", "rate limit", "blocked"}
