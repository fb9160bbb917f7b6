package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

// Page is a chromedp tab implementing interfaces.Page
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *common.BrowserConfig
	opts   models.SessionOptions
	logger arbor.ILogger

	mu      sync.Mutex
	watches map[*networkWatch]struct{}
}

var _ interfaces.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, config *common.BrowserConfig, opts models.SessionOptions, logger arbor.ILogger) *Page {
	return &Page{
		ctx:     ctx,
		cancel:  cancel,
		config:  config,
		opts:    opts,
		logger:  logger,
		watches: make(map[*networkWatch]struct{}),
	}
}

// run executes actions on the tab while honouring the caller's context.
// A zero timeout means no extra deadline.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, timeout)
		defer timeoutCancel()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

// executor returns a context bound to the tab target for use from event handlers
func (p *Page) executor() context.Context {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return p.ctx
	}
	return cdp.WithExecutor(p.ctx, c.Target)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	timeout := common.ParseDurationOr(p.config.NavigationTimeout, 30*time.Second)
	return p.run(ctx, timeout, chromedp.Navigate(url))
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, 0, chromedp.Title(&title))
	return title, err
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := p.run(ctx, 0, chromedp.Evaluate(countScript(selector), &n))
	return n, err
}

func (p *Page) CountWithin(ctx context.Context, scope models.Locator, selector string) (int, error) {
	var n int
	err := p.run(ctx, 0, chromedp.Evaluate(countWithinScript(scope, selector), &n))
	return n, err
}

func (p *Page) CountText(ctx context.Context, selector string, texts []string) (int, error) {
	var n int
	err := p.run(ctx, 0, chromedp.Evaluate(countTextScript(selector, texts), &n))
	return n, err
}

func (p *Page) ClickText(ctx context.Context, selector string, texts []string) (bool, error) {
	var clicked bool
	err := p.run(ctx, 0, chromedp.Evaluate(clickTextScript(selector, texts), &clicked))
	return clicked, err
}

func (p *Page) Click(ctx context.Context, target models.Locator) error {
	var clicked bool
	if err := p.run(ctx, 0, chromedp.Evaluate(clickScript(target), &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no element for locator %s[%d]", target.Selector, target.Index)
	}
	return nil
}

func (p *Page) ScrollToBottom(ctx context.Context) error {
	var ok bool
	return p.run(ctx, 0, chromedp.Evaluate(scrollToBottomScript, &ok))
}

func (p *Page) ScrollBy(ctx context.Context, pixels int) error {
	var ok bool
	return p.run(ctx, 0, chromedp.Evaluate(scrollByScript(pixels), &ok))
}

func (p *Page) ScrollSection(ctx context.Context, section models.Locator, strategy models.ScrollStrategy) error {
	var ok bool
	return p.run(ctx, 0, chromedp.Evaluate(scrollSectionScript(section, strategy), &ok))
}

// Watch registers a capture for requests matching filter
func (p *Page) Watch(filter models.NetworkFilter) interfaces.Watch {
	w := newNetworkWatch(p, filter)
	p.mu.Lock()
	p.watches[w] = struct{}{}
	p.mu.Unlock()
	return w
}

func (p *Page) removeWatch(w *networkWatch) {
	p.mu.Lock()
	delete(p.watches, w)
	p.mu.Unlock()
}

func (p *Page) activeWatches() []*networkWatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := make([]*networkWatch, 0, len(p.watches))
	for w := range p.watches {
		list = append(list, w)
	}
	return list
}

// Close closes the tab
func (p *Page) Close() error {
	p.cancel()
	return nil
}

// onEvent is the tab's single CDP listener. It must not block.
func (p *Page) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *fetch.EventRequestPaused:
		go p.continuePaused(e.RequestID)
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		body := requestBody(e.Request)
		for _, w := range p.activeWatches() {
			w.onRequest(e.RequestID, e.Request.URL, e.Request.Method, body)
		}
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		for _, w := range p.activeWatches() {
			w.onResponse(e.RequestID, int(e.Response.Status))
		}
	case *network.EventLoadingFinished:
		for _, w := range p.activeWatches() {
			w.onLoadingFinished(e.RequestID)
		}
	case *network.EventLoadingFailed:
		for _, w := range p.activeWatches() {
			w.onLoadingFailed(e.RequestID)
		}
	}
}

// continuePaused releases a paused request after a randomized pacing delay
func (p *Page) continuePaused(id fetch.RequestID) {
	defer common.Recover(p.logger, "continuePaused")

	delay := common.Between(p.opts.PacingMin, p.opts.PacingMax)
	if err := common.Sleep(p.ctx, delay); err != nil {
		return
	}
	if err := fetch.ContinueRequest(id).Do(p.executor()); err != nil && p.ctx.Err() == nil {
		p.logger.Debug().Err(err).Msg("Failed to continue paced request")
	}
}

// responseBody loads the body of a finished request
func (p *Page) responseBody(id network.RequestID) ([]byte, error) {
	return network.GetResponseBody(id).Do(p.executor())
}
