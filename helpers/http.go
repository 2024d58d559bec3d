package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// DefaultClient is the HTTP client used when callers do not supply one
var DefaultClient = &http.Client{
	Timeout: 30 * time.Second,
}

// FetchOptions controls the headers sent by Fetch
type FetchOptions struct {
	// UserAgent identifies the bot and a contact point
	UserAgent string
	// AcceptLanguage matches the target market, e.g. "es-CL,es;q=0.9"
	AcceptLanguage string
	// Accept overrides the default HTML accept header
	Accept string
}

// StatusError is returned for non-200 responses
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter string
}

func (e *StatusError) Error() string {
	if e.RateLimited() {
		return fmt.Sprintf("rate limited; retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("fetch %s unexpected status code: %d", e.URL, e.StatusCode)
}

// RateLimited reports whether the upstream asked us to slow down
func (e *StatusError) RateLimited() bool {
	return slices.Contains([]int{http.StatusTooManyRequests, 430}, e.StatusCode)
}

// AcceptLanguageFor builds an Accept-Language header for a BCP-47 locale
func AcceptLanguageFor(locale string) string {
	if locale == "" {
		return "en;q=0.8"
	}
	lang, _, _ := strings.Cut(locale, "-")
	if lang == locale {
		return locale + ";q=0.9,en;q=0.5"
	}
	return fmt.Sprintf("%s,%s;q=0.9,en;q=0.5", locale, lang)
}

// Fetch sends an HTTP GET request with identifying headers,
// converts the response body to UTF-8 (if needed), and returns it as an io.Reader.
func Fetch(ctx context.Context, client *http.Client, url string, opts FetchOptions) (io.Reader, error) {
	if client == nil {
		client = DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	accept := opts.Accept
	if accept == "" {
		accept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
	req.Header.Set("Accept", accept)
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", opts.AcceptLanguage)
	}
	req.Header.Set("Cache-Control", "no-cache")

	// Send the request
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	// Read the entire response body
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return ToUTF8(bodyBytes, resp.Header.Get("Content-Type"))
}

// ToUTF8 determines the encoding from the content type and body and converts to UTF-8
func ToUTF8(body []byte, contentType string) (io.Reader, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)

	// If already UTF-8, return as is
	if strings.EqualFold(name, "utf-8") {
		return bytes.NewReader(body), nil
	}

	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(body))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}

	return &buf, nil
}
