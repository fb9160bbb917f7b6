package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/harvester/internal/models"
)

// BrowserLauncher starts a browser owned by a single scrape job.
type BrowserLauncher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser creates isolated page sessions.
type Browser interface {
	NewSession(ctx context.Context, opts models.SessionOptions) (Page, error)
	Close() error
}

// Page is one live browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	CountWithin(ctx context.Context, scope models.Locator, selector string) (int, error)
	// CountText counts elements matching selector whose text contains one of texts, ignoring case.
	CountText(ctx context.Context, selector string, texts []string) (int, error)
	// ClickText clicks the first element matching selector whose text contains one of texts, ignoring case.
	ClickText(ctx context.Context, selector string, texts []string) (bool, error)
	Click(ctx context.Context, target models.Locator) error
	ScrollToBottom(ctx context.Context) error
	ScrollBy(ctx context.Context, pixels int) error
	ScrollSection(ctx context.Context, section models.Locator, strategy models.ScrollStrategy) error
	// Watch registers a network capture. Register before triggering the action.
	Watch(filter models.NetworkFilter) Watch
	Close() error
}

// Watch is a pending network capture on a page.
type Watch interface {
	// Request returns once a matching request was sent.
	Request(ctx context.Context, timeout time.Duration) (*models.NetworkExchange, error)
	// Response returns once a matching request's response body was loaded.
	Response(ctx context.Context, timeout time.Duration) (*models.NetworkExchange, error)
	Stop()
}
