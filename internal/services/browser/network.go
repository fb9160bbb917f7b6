package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/models"
)

// requestBody joins the request's post data entries, decoding base64 bytes
func requestBody(req *network.Request) string {
	if req == nil || len(req.PostDataEntries) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, entry := range req.PostDataEntries {
		if entry == nil || entry.Bytes == "" {
			continue
		}
		if decoded, err := base64.StdEncoding.DecodeString(entry.Bytes); err == nil {
			sb.Write(decoded)
		} else {
			sb.WriteString(entry.Bytes)
		}
	}
	return sb.String()
}

// matches reports whether a request satisfies the filter
func matches(filter models.NetworkFilter, url, method, body string) bool {
	if filter.Method != "" && !strings.EqualFold(filter.Method, method) {
		return false
	}
	if filter.URLContains != "" && !strings.Contains(url, filter.URLContains) {
		return false
	}
	if filter.BodyContains != "" && !strings.Contains(body, filter.BodyContains) {
		return false
	}
	return true
}

// networkWatch captures the first matching request and its response body
type networkWatch struct {
	page   *Page
	filter models.NetworkFilter

	mu       sync.Mutex
	pending  map[network.RequestID]*models.NetworkExchange
	request  chan *models.NetworkExchange
	response chan *models.NetworkExchange
	stopped  bool
}

func newNetworkWatch(page *Page, filter models.NetworkFilter) *networkWatch {
	return &networkWatch{
		page:     page,
		filter:   filter,
		pending:  make(map[network.RequestID]*models.NetworkExchange),
		request:  make(chan *models.NetworkExchange, 1),
		response: make(chan *models.NetworkExchange, 1),
	}
}

func (w *networkWatch) onRequest(id network.RequestID, url, method, body string) {
	if !matches(w.filter, url, method, body) {
		return
	}

	exchange := &models.NetworkExchange{URL: url, Method: method, RequestBody: body}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending[id] = exchange
	select {
	case w.request <- exchange:
	default:
	}
}

func (w *networkWatch) onResponse(id network.RequestID, status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if exchange, ok := w.pending[id]; ok {
		exchange.Status = status
	}
}

func (w *networkWatch) onLoadingFinished(id network.RequestID) {
	w.mu.Lock()
	exchange, ok := w.pending[id]
	if ok {
		delete(w.pending, id)
	}
	stopped := w.stopped
	w.mu.Unlock()

	if !ok || stopped {
		return
	}

	// Fetching the body is a CDP round trip; keep the event loop free.
	go func() {
		defer common.Recover(w.page.logger, "watchResponseBody")

		body, err := w.page.responseBody(id)
		if err != nil {
			w.page.logger.Debug().Err(err).Str("url", exchange.URL).Msg("Failed to read captured response body")
			return
		}
		captured := *exchange
		captured.ResponseBody = body
		select {
		case w.response <- &captured:
		default:
		}
	}()
}

func (w *networkWatch) onLoadingFailed(id network.RequestID) {
	w.mu.Lock()
	delete(w.pending, id)
	w.mu.Unlock()
}

func (w *networkWatch) Request(ctx context.Context, timeout time.Duration) (*models.NetworkExchange, error) {
	return w.wait(ctx, timeout, w.request, "request")
}

func (w *networkWatch) Response(ctx context.Context, timeout time.Duration) (*models.NetworkExchange, error) {
	return w.wait(ctx, timeout, w.response, "response")
}

func (w *networkWatch) wait(ctx context.Context, timeout time.Duration, ch <-chan *models.NetworkExchange, kind string) (*models.NetworkExchange, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case exchange := <-ch:
		return exchange, nil
	case <-timer.C:
		return nil, fmt.Errorf("timed out after %s waiting for %s matching %q: %w", timeout, kind, w.filter.URLContains, context.DeadlineExceeded)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *networkWatch) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.pending = make(map[network.RequestID]*models.NetworkExchange)
	w.mu.Unlock()
	w.page.removeWatch(w)
}
