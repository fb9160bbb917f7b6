package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/models"
)

// Launcher starts a dedicated Chrome process per scrape job
type Launcher struct {
	config *common.BrowserConfig
	logger arbor.ILogger
}

var _ interfaces.BrowserLauncher = (*Launcher)(nil)

// NewLauncher creates a browser launcher
func NewLauncher(config *common.BrowserConfig, logger arbor.ILogger) *Launcher {
	return &Launcher{config: config, logger: logger}
}

// Launch starts Chrome and verifies it responds before handing it out
func (l *Launcher) Launch(ctx context.Context) (interfaces.Browser, error) {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("disable-gpu", l.config.DisableGPU),
		chromedp.Flag("no-sandbox", l.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(l.config.ViewportWidth, l.config.ViewportHeight),
		chromedp.UserAgent(l.config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)

	browserCtx, browserCancel := chromedp.NewContext(
		allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			l.logger.Debug().Msgf("chromedp: "+s, i...)
		}),
		chromedp.WithErrorf(func(s string, i ...interface{}) {
			l.logger.Debug().Msgf("chromedp error: "+s, i...)
		}),
	)

	startupTimeout := common.ParseDurationOr(l.config.StartupTimeout, 30*time.Second)
	testCtx, testCancel := context.WithTimeout(browserCtx, startupTimeout)
	defer testCancel()

	stop := context.AfterFunc(ctx, testCancel)
	defer stop()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	l.logger.Debug().
		Dur("startup_time", time.Since(startTime)).
		Bool("headless", l.config.Headless).
		Msg("Browser launched")

	return &Browser{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		config:          l.config,
		logger:          l.logger,
	}, nil
}

// Browser is a running Chrome process. Sessions are tabs sharing its profile.
type Browser struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	config          *common.BrowserConfig
	logger          arbor.ILogger

	mu     sync.Mutex
	closed bool
}

var _ interfaces.Browser = (*Browser)(nil)

// NewSession opens a tab with viewport, headers, geolocation and request pacing applied
func (b *Browser) NewSession(ctx context.Context, opts models.SessionOptions) (interfaces.Page, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser already closed")
	}
	b.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)

	page := newPage(tabCtx, tabCancel, b.config, opts, b.logger)
	chromedp.ListenTarget(tabCtx, page.onEvent)

	setup := chromedp.Tasks{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(b.config.ViewportWidth), int64(b.config.ViewportHeight), 1, false),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": b.config.AcceptLanguage,
			"Cache-Control":   "no-cache",
			"Pragma":          "no-cache",
		}),
	}

	if opts.Geolocation != nil {
		accuracy := opts.Geolocation.Accuracy
		if accuracy <= 0 {
			accuracy = 50
		}
		setup = append(setup,
			browser.GrantPermissions([]browser.PermissionType{browser.PermissionTypeGeolocation}),
			emulation.SetGeolocationOverride().
				WithLatitude(opts.Geolocation.Latitude).
				WithLongitude(opts.Geolocation.Longitude).
				WithAccuracy(accuracy),
		)
	}

	if opts.PacingMax > 0 {
		setup = append(setup, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}))
	}

	if err := page.run(ctx, 0, setup); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to prepare page session: %w", err)
	}

	return page, nil
}

// Close terminates every tab and the Chrome process
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.browserCancel()
	b.allocatorCancel()
	b.logger.Debug().Msg("Browser closed")
	return nil
}
