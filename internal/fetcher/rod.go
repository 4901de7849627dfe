package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// RodFetcher implements Fetcher using the rod headless-browser library.
//
// Every Fetch call launches its own browser and tears it down before
// returning. A browser session is therefore owned by exactly one invocation
// and is never shared across the background loop and the on-demand loop,
// which may both be fetching at the same time. The pacing gate is the only
// state shared between calls.
type RodFetcher struct {
	log         logrus.FieldLogger
	pageTimeout time.Duration
	pace        *paceGate
}

// NewRodFetcher creates a fetcher with the given per-page timeout and
// minimum inter-request interval to the origin site.
func NewRodFetcher(logger logrus.FieldLogger, pageTimeout, pacing time.Duration) *RodFetcher {
	return &RodFetcher{
		log:         logger.WithField("component", "fetcher"),
		pageTimeout: pageTimeout,
		pace:        &paceGate{interval: pacing},
	}
}

// Fetch loads the URL in a fresh browser and returns the rendered HTML.
func (f *RodFetcher) Fetch(ctx context.Context, url string) (html string, err error) {
	log := f.log.WithField("url", url)

	// Pacing applies before every attempt, retries included.
	if err := f.pace.wait(ctx); err != nil {
		return "", err
	}

	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return "", errors.New("rod browser dependency not found")
	}
	u, err := launcher.New().Bin(path).Launch()
	if err != nil {
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err = browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return "", fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
			if err == nil {
				err = fmt.Errorf("error closing browser: %w", closeErr)
			}
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("error closing page: %w", closeErr)
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, f.pageTimeout)
	defer cancel()
	page = page.Context(pageCtx)

	// Watch for the document response so HTTP errors (403/429/404/5xx) are
	// surfaced as StatusError instead of as a blank rendered page.
	var nav proto.NetworkResponseReceived
	waitResp := page.WaitEvent(&nav)

	if err = page.Navigate(url); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("fetch timed out for %s: %w", url, pageCtx.Err())
		}
		return "", fmt.Errorf("failed to navigate: %w", err)
	}
	waitResp()
	if nav.Response != nil && nav.Response.Status >= http.StatusBadRequest {
		log.WithField("status", nav.Response.Status).Warn("Origin returned error status")
		return "", &StatusError{Code: nav.Response.Status, URL: url}
	}

	if err = page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("fetch timed out for %s: %w", url, pageCtx.Err())
		}
		return "", fmt.Errorf("failed waiting for page load: %w", err)
	}

	html, err = page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read rendered page: %w", err)
	}
	log.WithField("bytes", len(html)).Debug("Fetched rendered page")
	return html, nil
}

// paceGate enforces a minimum interval between requests to the origin.
type paceGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func (g *paceGate) wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	prev := g.last
	next := g.last.Add(g.interval)
	if next.Before(now) {
		next = now
	}
	g.last = next
	g.mu.Unlock()

	d := time.Until(next)
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		// Give the slot back so a cancelled call does not delay the next
		// one, unless a later caller already reserved past it.
		g.mu.Lock()
		if g.last.Equal(next) {
			g.last = prev
		}
		g.mu.Unlock()
		return ctx.Err()
	}
}
