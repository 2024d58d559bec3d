package render

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"jssprz/pricewatcher/helpers"
	"jssprz/pricewatcher/pkg/errors"
)

// HTTPOptions configures an HTTPRenderer
type HTTPOptions struct {
	Client    *http.Client
	UserAgent string
	Locale    string
	Timeout   time.Duration
}

// HTTPRenderer fetches server-rendered pages without a browser
type HTTPRenderer struct {
	opts HTTPOptions
}

// NewHTTPRenderer creates an HTTP renderer
func NewHTTPRenderer(opts HTTPOptions) *HTTPRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultNavigationTimeout
	}
	return &HTTPRenderer{opts: opts}
}

// Render fetches url with the bot headers and parses the UTF-8 body
func (r *HTTPRenderer) Render(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	body, err := helpers.Fetch(ctx, r.opts.Client, url, helpers.FetchOptions{
		UserAgent:      r.opts.UserAgent,
		AcceptLanguage: helpers.AcceptLanguageFor(r.opts.Locale),
	})
	if err != nil {
		var statusErr *helpers.StatusError
		if stderrors.As(err, &statusErr) && statusErr.RateLimited() {
			return nil, errors.NewRateLimit(url, RetryAfter(err), err)
		}
		return nil, navigationError(url, "fetch failed", err)
	}

	html, err := io.ReadAll(body)
	if err != nil {
		return nil, navigationError(url, "failed to read body", err)
	}
	return NewPage(url, string(html))
}

// RetryAfter parses a Retry-After header given in seconds
func RetryAfter(err error) time.Duration {
	var statusErr *helpers.StatusError
	if !stderrors.As(err, &statusErr) || statusErr.RetryAfter == "" {
		return 0
	}
	secs, convErr := strconv.Atoi(statusErr.RetryAfter)
	if convErr != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
