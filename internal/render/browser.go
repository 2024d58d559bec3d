package render

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"jssprz/pricewatcher/helpers"
	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/pkg/errors"
)

// DefaultNavigationTimeout bounds browser launch, navigation and DOM capture
const DefaultNavigationTimeout = 45 * time.Second

// BrowserOptions configures a BrowserRenderer
type BrowserOptions struct {
	// Bin is the browser binary; empty lets the launcher find or download one
	Bin               string
	UserAgent         string
	Locale            string
	NavigationTimeout time.Duration
}

// BrowserRenderer renders pages in a headless Chromium driven by rod.
// Every call launches its own browser and tears it down before returning,
// so no cookies or cache leak between retailers.
type BrowserRenderer struct {
	opts BrowserOptions
}

// NewBrowserRenderer creates a browser renderer
func NewBrowserRenderer(opts BrowserOptions) *BrowserRenderer {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	return &BrowserRenderer{opts: opts}
}

// Render loads url and waits for DOMContentLoaded
func (r *BrowserRenderer) Render(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.NavigationTimeout)
	defer cancel()

	log := logger.ForScraper(url)

	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true).
		Leakless(false)
	if r.opts.Bin != "" {
		l = l.Bin(r.opts.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, navigationError(url, "failed to launch browser", err)
	}
	// Cleanup blocks until the process exits, so Kill must run first
	defer l.Cleanup()
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, navigationError(url, "failed to connect to browser", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Debug().Err(err).Msg("Browser close failed")
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, navigationError(url, "failed to open page", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      r.opts.UserAgent,
		AcceptLanguage: helpers.AcceptLanguageFor(r.opts.Locale),
	}); err != nil {
		return nil, navigationError(url, "failed to set user agent", err)
	}
	if r.opts.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: r.opts.Locale}).Call(page); err != nil {
			log.Debug().Err(err).Str("locale", r.opts.Locale).Msg("Locale override rejected")
		}
	}

	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return nil, navigationError(url, "navigation failed", err)
	}
	wait()

	if err := ctx.Err(); err != nil {
		return nil, navigationError(url, "navigation timed out", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, navigationError(url, "failed to read page HTML", err)
	}

	log.Debug().Int("bytes", len(html)).Msg("Page rendered")
	return NewPage(url, html)
}

func navigationError(url, message string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		message = "navigation timed out"
	}
	return errors.NewNavigation(url, message, err)
}
