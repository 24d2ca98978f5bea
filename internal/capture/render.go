// Package capture loads portal pages in headless Chromium for the parts
// of the timetable that are only built by JavaScript.
package capture

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "urconnect/internal/log"
)

// Default render parameters.
const (
	DefaultTimeoutSec   = 30
	DefaultWaitSelector = "body"
	settleDelay         = 500 * time.Millisecond
)

// Renderer renders pages in a fresh headless browser per call. The zero
// value is usable.
type Renderer struct {
	// UserAgent overrides the browser's user agent so the portal sees the
	// same client as the HTTP session.
	UserAgent string

	// ExecPath points at a Chromium binary. If empty, chromedp searches the
	// usual locations.
	ExecPath string

	// WaitSelector must be ready before the DOM is read. If empty,
	// DefaultWaitSelector is used.
	WaitSelector string

	// Timeout bounds the whole render. If zero, DefaultTimeoutSec is used.
	Timeout time.Duration
}

// Render navigates to pageURL with cookies installed and returns the
// document's outer HTML after scripts have run.
func (r *Renderer) Render(parentCtx context.Context, pageURL string, cookies []*http.Cookie) (string, error) {
	if pageURL == "" {
		return "", fmt.Errorf("capture: URL is required")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	waitSel := r.WaitSelector
	if waitSel == "" {
		waitSel = DefaultWaitSelector
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.DisableGPU)
	if r.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(r.UserAgent))
	}
	if r.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	var html string
	tasks := chromedp.Tasks{
		installCookies(pageURL, cookies),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(waitSel, chromedp.ByQuery),
		// Let late scripts finish rewriting the page.
		chromedp.Sleep(settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	appLog.Debug("page rendered",
		"url", appLog.RedactURL(pageURL),
		"bytes", len(html),
		"elapsed", time.Since(start),
	)
	return html, nil
}

// installCookies copies session cookies into the browser, scoped to
// pageURL's origin unless a cookie names its own domain.
func installCookies(pageURL string, cookies []*http.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			path := c.Path
			if path == "" {
				path = "/"
			}
			p := network.SetCookie(c.Name, c.Value).WithURL(pageURL).WithPath(path)
			if c.Domain != "" {
				p = p.WithDomain(c.Domain)
			}
			if c.Secure {
				p = p.WithSecure(true)
			}
			if c.HttpOnly {
				p = p.WithHTTPOnly(true)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("capture: set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}
