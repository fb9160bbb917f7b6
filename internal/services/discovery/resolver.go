package discovery

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

const closeButtonSelector = `[aria-label='Close']`

// Default click spacing of a Resolver
const (
	DefaultClickPause  = 300 * time.Millisecond
	DefaultClickSpread = 200 * time.Millisecond
)

// Resolver recovers missing identifiers by clicking an item and reading the
// detail request the storefront sends for it.
type Resolver struct {
	endpoint string
	timeout  time.Duration
	logger   arbor.ILogger

	// ClickPause and ClickSpread space out clicks: pause + rand(spread)
	ClickPause  time.Duration
	ClickSpread time.Duration
}

// NewResolver creates a resolver for the configured detail endpoint
func NewResolver(config *common.ScrapeConfig, logger arbor.ILogger) *Resolver {
	return &Resolver{
		endpoint:    config.DetailEndpoint,
		timeout:     common.ParseDurationOr(config.ClickTimeout, 8*time.Second),
		logger:      logger,
		ClickPause:  DefaultClickPause,
		ClickSpread: DefaultClickSpread,
	}
}

// Resolve clicks target and returns the identifiers found in the detail
// request. hint, when set, must appear in the request body.
func (r *Resolver) Resolve(ctx context.Context, page interfaces.Page, target models.Locator, hint string) (models.ItemIdentifiers, bool) {
	watch := page.Watch(models.NetworkFilter{
		Method:       "POST",
		URLContains:  r.endpoint,
		BodyContains: hint,
	})
	defer watch.Stop()

	if err := common.Sleep(ctx, common.Jitter(r.ClickPause, r.ClickSpread)); err != nil {
		return models.ItemIdentifiers{}, false
	}

	if err := page.Click(ctx, target); err != nil {
		r.logger.Debug().Err(err).Str("hint", hint).Msg("Item click failed")
	}

	exchange, err := watch.Request(ctx, r.timeout)
	r.closeModal(ctx, page)
	if err != nil {
		r.logger.Debug().Err(err).Str("hint", hint).Msg("No detail request observed after click")
		return models.ItemIdentifiers{}, false
	}

	ids := parseDetailRequest(exchange.RequestBody)
	return ids, ids.ItemUUID != "" || ids.StoreUUID != ""
}

func (r *Resolver) closeModal(ctx context.Context, page interfaces.Page) {
	if n, err := page.Count(ctx, closeButtonSelector); err == nil && n > 0 {
		if err := page.Click(ctx, models.Locator{Selector: closeButtonSelector}); err == nil {
			return
		}
	}
	_, _ = page.ClickText(ctx, "button", []string{"Close"})
}
