package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
)

var (
	// ErrRateLimited means the page body carried a rate-limit signature
	ErrRateLimited = errors.New("rate limited")
	// ErrNavigationExhausted means every navigation attempt failed with a retryable error
	ErrNavigationExhausted = errors.New("navigation retries exhausted")
)

var rateLimitSignatures = []string{"too many requests", "rate limit"}

// LooksRateLimited reports whether page HTML carries a rate-limit signature
func LooksRateLimited(html string) bool {
	lower := strings.ToLower(html)
	for _, sig := range rateLimitSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// NavigationPolicy defines navigation retry behaviour with exponential backoff
type NavigationPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewNavigationPolicy builds a policy from browser configuration
func NewNavigationPolicy(config *common.BrowserConfig) *NavigationPolicy {
	attempts := config.NavigationAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &NavigationPolicy{
		MaxAttempts:       attempts,
		InitialBackoff:    common.ParseDurationOr(config.NavigationBackoff, time.Second),
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff returns the delay after the given failed attempt (1-based):
// InitialBackoff * multiplier^attempt, capped at MaxBackoff.
func (p *NavigationPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
	}
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// RetryNotice is reported before each backoff wait
type RetryNotice struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

// Navigate loads url into page. Rate-limit signatures and timeouts are retried
// with backoff; any other error fails immediately.
func (p *NavigationPolicy) Navigate(ctx context.Context, page interfaces.Page, url string, logger arbor.ILogger, onRetry func(RetryNotice)) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = navigateOnce(ctx, page, url)
		if lastErr == nil {
			return nil
		}

		if !isRetryableNavigation(lastErr) || ctx.Err() != nil {
			logger.Debug().
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Non-retryable navigation error, failing immediately")
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		backoff := p.CalculateBackoff(attempt)
		logger.Debug().
			Int("attempt", attempt).
			Err(lastErr).
			Dur("backoff", backoff).
			Msg("Retrying navigation after backoff")
		if onRetry != nil {
			onRetry(RetryNotice{Attempt: attempt, Delay: backoff, Err: lastErr})
		}

		if err := common.Sleep(ctx, backoff); err != nil {
			return err
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All navigation attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %v", ErrNavigationExhausted, p.MaxAttempts, lastErr)
}

func navigateOnce(ctx context.Context, page interfaces.Page, url string) error {
	if err := page.Navigate(ctx, url); err != nil {
		return err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return err
	}
	if LooksRateLimited(html) {
		return ErrRateLimited
	}
	return nil
}

// isRetryableNavigation checks for rate limiting, timeouts and transient network errors
func isRetryableNavigation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
