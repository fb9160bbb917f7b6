package detail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/discovery"
)

var (
	// ErrMismatchedDetail means the captured payload describes another item
	ErrMismatchedDetail = errors.New("detail payload does not reference the item")
	// ErrInvalidDetail means the captured body is not JSON
	ErrInvalidDetail = errors.New("detail payload is not valid JSON")
)

// CookieAcceptor dismisses consent banners on a freshly opened session
type CookieAcceptor interface {
	AcceptCookies(ctx context.Context, page interfaces.Page) bool
}

// Progress is reported while a pass runs
type Progress struct {
	Processed int
	Success   int
	Fail      int
	Total     int
	Worker    int
}

// Remaining is the number of items not yet processed
func (p Progress) Remaining() int {
	return p.Total - p.Processed
}

// Result of one pass over a list of items
type Result struct {
	Details   map[string]json.RawMessage
	Failed    []*models.RawItem
	Success   int
	Cancelled bool
}

// Pacing spaces out detail requests: base + (i%10)*step + rand(spread)
type Pacing struct {
	Base   time.Duration
	Step   time.Duration
	Spread time.Duration
}

// Pool fetches item detail payloads with parallel page sessions of one browser
type Pool struct {
	browser   interfaces.Browser
	targetURL string
	session   models.SessionOptions
	cookies   CookieAcceptor
	endpoint  string
	timeout   time.Duration
	interval  int
	logger    arbor.ILogger
	Pacing    Pacing
}

// NewPool creates a pool that opens worker sessions on browser at targetURL
func NewPool(browser interfaces.Browser, targetURL string, session models.SessionOptions, cookies CookieAcceptor, config *common.ScrapeConfig, logger arbor.ILogger) *Pool {
	interval := config.ProgressInterval
	if interval <= 0 {
		interval = 10
	}
	return &Pool{
		browser:   browser,
		targetURL: targetURL,
		session:   session,
		cookies:   cookies,
		endpoint:  config.DetailEndpoint,
		timeout:   common.ParseDurationOr(config.DetailTimeout, 15*time.Second),
		interval:  interval,
		logger:    logger,
		Pacing:    DefaultPacing(config),
	}
}

// DefaultPacing derives detail request spacing from scrape configuration
func DefaultPacing(config *common.ScrapeConfig) Pacing {
	return Pacing{
		Base:   common.ParseDurationOr(config.DetailDelay, 200*time.Millisecond),
		Step:   50 * time.Millisecond,
		Spread: 100 * time.Millisecond,
	}
}

// passState is shared by the workers of one pass
type passState struct {
	mu       sync.Mutex
	cursor   atomic.Int64
	result   *Result
	progress Progress
}

// FetchAll runs one pass over items with min(workers, len(items)) sessions.
// Workers claim items from a shared cursor and stop claiming once token is cancelled.
func (p *Pool) FetchAll(ctx context.Context, items []*models.RawItem, workers int, token interfaces.CancelToken, progress func(Progress)) *Result {
	state := &passState{
		result:   &Result{Details: make(map[string]json.RawMessage)},
		progress: Progress{Total: len(items)},
	}
	if len(items) == 0 {
		return state.result
	}

	count := max(1, min(workers, len(items)))
	var wg sync.WaitGroup
	for w := 0; w < count; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			defer common.Recover(p.logger, fmt.Sprintf("detail-worker-%d", worker))
			p.work(ctx, worker, items, token, state, progress)
		}(w)
	}
	wg.Wait()

	// Items never claimed (sessions failed to open) count as failed
	claimed := int(min(state.cursor.Load(), int64(len(items))))
	if token.Cancelled() || ctx.Err() != nil {
		state.result.Cancelled = claimed < len(items)
	} else {
		state.result.Failed = append(state.result.Failed, items[claimed:]...)
	}

	p.logger.Debug().
		Int("attempted", len(items)).
		Int("success", state.result.Success).
		Int("failed", len(state.result.Failed)).
		Int("workers", count).
		Msg("Detail pass finished")

	return state.result
}

func (p *Pool) work(ctx context.Context, worker int, items []*models.RawItem, token interfaces.CancelToken, state *passState, progress func(Progress)) {
	page, err := p.browser.NewSession(ctx, p.session)
	if err != nil {
		p.logger.Warn().Err(err).Int("worker", worker).Msg("Failed to open detail session")
		return
	}
	defer page.Close()

	if err := page.Navigate(ctx, p.targetURL); err != nil {
		p.logger.Debug().Err(err).Int("worker", worker).Msg("Detail session landing navigation failed")
	}
	if p.cookies != nil {
		p.cookies.AcceptCookies(ctx, page)
	}

	for {
		if token.Cancelled() || ctx.Err() != nil {
			return
		}
		i := int(state.cursor.Add(1) - 1)
		if i >= len(items) {
			return
		}

		if i > 0 {
			delay := common.Jitter(p.Pacing.Base+time.Duration(i%10)*p.Pacing.Step, p.Pacing.Spread)
			if err := common.Sleep(ctx, delay); err != nil {
				p.record(state, items[i], nil, i, len(items), worker, progress)
				return
			}
		}

		raw, err := p.fetchOne(ctx, page, items[i])
		if err != nil {
			p.logger.Debug().Err(err).Str("item_uuid", items[i].ItemUUID).Int("worker", worker).Msg("Detail fetch failed")
		}
		p.record(state, items[i], raw, i, len(items), worker, progress)
	}
}

func (p *Pool) record(state *passState, item *models.RawItem, raw json.RawMessage, i, total, worker int, progress func(Progress)) {
	state.mu.Lock()
	state.progress.Processed++
	if raw != nil {
		state.result.Details[item.ItemUUID] = raw
		state.result.Success++
		state.progress.Success++
	} else {
		state.result.Failed = append(state.result.Failed, item)
		state.progress.Fail++
	}
	snapshot := state.progress
	snapshot.Worker = worker
	state.mu.Unlock()

	if progress != nil && (snapshot.Processed%p.interval == 0 || i == total-1) {
		progress(snapshot)
	}
}

// fetchOne loads the item page and waits for its detail response
func (p *Pool) fetchOne(ctx context.Context, page interfaces.Page, item *models.RawItem) (json.RawMessage, error) {
	target := common.ToAbsoluteURL(p.targetURL, item.Href)
	if target == "" {
		return nil, fmt.Errorf("item %s has no href", item.ItemUUID)
	}

	watch := page.Watch(models.NetworkFilter{Method: "POST", URLContains: p.endpoint})
	defer watch.Stop()

	if err := page.Navigate(ctx, target); err != nil {
		p.logger.Debug().Err(err).Str("url", target).Msg("Item navigation reported an error")
	}
	if p.cookies != nil {
		p.cookies.AcceptCookies(ctx, page)
	}

	exchange, err := watch.Response(ctx, p.timeout)
	if err != nil {
		return nil, err
	}
	return MatchDetail(item, exchange)
}

// MatchDetail accepts a captured exchange only when it belongs to item: the
// request body names the item uuid, or the payload's menuItemUuid equals it.
func MatchDetail(item *models.RawItem, exchange *models.NetworkExchange) (json.RawMessage, error) {
	if item.ItemUUID == "" {
		return nil, ErrMismatchedDetail
	}
	if !json.Valid(exchange.ResponseBody) {
		return nil, ErrInvalidDetail
	}
	raw := json.RawMessage(append([]byte(nil), exchange.ResponseBody...))

	for _, id := range discovery.FindUUIDs(exchange.RequestBody) {
		if id == item.ItemUUID {
			return raw, nil
		}
	}
	if models.DecodeDetail(raw).ReferencedItemUUID() == item.ItemUUID {
		return raw, nil
	}
	return nil, ErrMismatchedDetail
}
