// Package browsertest provides scripted in-memory browsers for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

// Page is a scripted interfaces.Page. Nil hooks fall back to inert defaults.
type Page struct {
	mu sync.Mutex

	Doc       string
	PageTitle string

	NavigateFn    func(url string) error
	HTMLFn        func() string
	CountFn       func(selector string) int
	CountWithinFn func(scope models.Locator, selector string) int
	CountTextFn   func(selector string, texts []string) int
	ClickTextFn   func(selector string, texts []string) bool
	ClickFn       func(target models.Locator) error
	ScrollFn      func()
	// ExchangeFn resolves a watch once awaited. lastURL is the most recent navigation.
	ExchangeFn func(filter models.NetworkFilter, lastURL string) (*models.NetworkExchange, error)

	Navigations    []string
	Clicks         []models.Locator
	ClickedTexts   []string
	Scrolls        int
	SectionScrolls []models.ScrollStrategy
	Closed         bool
}

var _ interfaces.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.Navigations = append(p.Navigations, url)
	fn := p.NavigateFn
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fn != nil {
		return fn(url)
	}
	return nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if p.HTMLFn != nil {
		return p.HTMLFn(), nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Doc, nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	return p.PageTitle, nil
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	if p.CountFn != nil {
		return p.CountFn(selector), nil
	}
	return 0, nil
}

func (p *Page) CountWithin(ctx context.Context, scope models.Locator, selector string) (int, error) {
	if p.CountWithinFn != nil {
		return p.CountWithinFn(scope, selector), nil
	}
	return 0, nil
}

func (p *Page) CountText(ctx context.Context, selector string, texts []string) (int, error) {
	if p.CountTextFn != nil {
		return p.CountTextFn(selector, texts), nil
	}
	return 0, nil
}

func (p *Page) ClickText(ctx context.Context, selector string, texts []string) (bool, error) {
	clicked := false
	if p.ClickTextFn != nil {
		clicked = p.ClickTextFn(selector, texts)
	}
	if clicked {
		p.mu.Lock()
		p.ClickedTexts = append(p.ClickedTexts, texts...)
		p.mu.Unlock()
	}
	return clicked, nil
}

func (p *Page) Click(ctx context.Context, target models.Locator) error {
	p.mu.Lock()
	p.Clicks = append(p.Clicks, target)
	fn := p.ClickFn
	p.mu.Unlock()
	if fn != nil {
		return fn(target)
	}
	return nil
}

func (p *Page) ScrollToBottom(ctx context.Context) error {
	p.mu.Lock()
	p.Scrolls++
	fn := p.ScrollFn
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (p *Page) ScrollBy(ctx context.Context, pixels int) error {
	return nil
}

func (p *Page) ScrollSection(ctx context.Context, section models.Locator, strategy models.ScrollStrategy) error {
	p.mu.Lock()
	p.SectionScrolls = append(p.SectionScrolls, strategy)
	p.mu.Unlock()
	return nil
}

func (p *Page) Watch(filter models.NetworkFilter) interfaces.Watch {
	return &Watch{page: p, filter: filter}
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.Closed = true
	p.mu.Unlock()
	return nil
}

// LastNavigation returns the most recent URL passed to Navigate
func (p *Page) LastNavigation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Navigations) == 0 {
		return ""
	}
	return p.Navigations[len(p.Navigations)-1]
}

// Watch resolves through the page's ExchangeFn
type Watch struct {
	page   *Page
	filter models.NetworkFilter
}

var errNoExchange = errors.New("no matching exchange")

func (w *Watch) resolve(ctx context.Context) (*models.NetworkExchange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.page.ExchangeFn == nil {
		return nil, context.DeadlineExceeded
	}
	exchange, err := w.page.ExchangeFn(w.filter, w.page.LastNavigation())
	if err != nil {
		return nil, err
	}
	if exchange == nil {
		return nil, errNoExchange
	}
	return exchange, nil
}

func (w *Watch) Request(ctx context.Context, timeout time.Duration) (*models.NetworkExchange, error) {
	return w.resolve(ctx)
}

func (w *Watch) Response(ctx context.Context, timeout time.Duration) (*models.NetworkExchange, error) {
	return w.resolve(ctx)
}

func (w *Watch) Stop() {}

// Browser hands out pages built by NewPage
type Browser struct {
	mu       sync.Mutex
	NewPage  func(opts models.SessionOptions) *Page
	Sessions []*Page
	Options  []models.SessionOptions
	Closed   bool
}

var _ interfaces.Browser = (*Browser)(nil)

func (b *Browser) NewSession(ctx context.Context, opts models.SessionOptions) (interfaces.Page, error) {
	page := &Page{}
	if b.NewPage != nil {
		page = b.NewPage(opts)
	}
	b.mu.Lock()
	b.Sessions = append(b.Sessions, page)
	b.Options = append(b.Options, opts)
	b.mu.Unlock()
	return page, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	b.Closed = true
	b.mu.Unlock()
	return nil
}

// SessionCount returns how many sessions were opened
func (b *Browser) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Sessions)
}

// Launcher always returns the same Browser
type Launcher struct {
	Browser *Browser
	Err     error
}

var _ interfaces.BrowserLauncher = (*Launcher)(nil)

func (l *Launcher) Launch(ctx context.Context) (interfaces.Browser, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Browser, nil
}
