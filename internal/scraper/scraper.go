// Package scraper observes a storefront price: it renders the page, extracts a
// price through structured data and then templates, and records the outcome.
package scraper

import (
	"context"

	"github.com/shopspring/decimal"

	"jssprz/pricewatcher/internal/catalog"
	"jssprz/pricewatcher/internal/extract"
	"jssprz/pricewatcher/internal/render"
	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/pkg/errors"
)

// Extraction methods reported in Result.Method
const (
	MethodJSONLD         = "json-ld"
	MethodNotFound       = "not-found"
	TemplateMethodPrefix = "template:"
)

// Result is the outcome of one scrape. A nil Price with MethodNotFound is a
// completed scrape that found nothing.
type Result struct {
	URL      string           `json:"url"`
	Hostname string           `json:"hostname"`
	Price    *decimal.Decimal `json:"price"`
	Currency string           `json:"currency,omitempty"`
	Method   string           `json:"method"`
	Selector string           `json:"selector,omitempty"`
}

// Found reports whether a price was extracted
func (r *Result) Found() bool {
	return r != nil && r.Price != nil
}

// Scraper composes the renderer and the extractors in priority order
type Scraper struct {
	renderer        render.Renderer
	templates       extract.Table
	defaultCurrency string
}

// New creates a Scraper. A nil table uses the built-in templates.
func New(renderer render.Renderer, templates extract.Table, defaultCurrency string) *Scraper {
	if templates == nil {
		templates = extract.DefaultTable()
	}
	if defaultCurrency == "" {
		defaultCurrency = extract.FallbackCurrency
	}
	return &Scraper{
		renderer:        renderer,
		templates:       templates,
		defaultCurrency: defaultCurrency,
	}
}

// ScrapePrice renders rawURL and extracts its price. Only an invalid URL or a
// render failure is an error; finding no price is a Result with MethodNotFound.
func (s *Scraper) ScrapePrice(ctx context.Context, rawURL string) (*Result, error) {
	u, err := catalog.ParseURL(rawURL)
	if err != nil {
		return nil, errors.NewValidation(rawURL, "invalid url: "+err.Error())
	}
	hostname := catalog.NormalizeHostname(u.Hostname())
	log := logger.ForScraper(hostname)

	page, err := s.renderer.Render(ctx, rawURL)
	if err != nil {
		if errors.TypeOf(err) == "" {
			err = errors.NewNavigation(hostname, "render failed", err)
		}
		return nil, err
	}

	result := &Result{URL: rawURL, Hostname: hostname}

	if offer, ok := extract.FromStructuredData(page.Doc); ok {
		result.Price = &offer.Price
		result.Currency = offer.Currency
		if result.Currency == "" {
			result.Currency = s.defaultCurrency
		}
		result.Method = MethodJSONLD
		log.Debug().Str("price", offer.Price.String()).Str("currency", result.Currency).Msg("Price found in structured data")
		return result, nil
	}

	if match, ok := extract.WithTemplates(page.Doc, hostname, s.templates); ok {
		result.Price = &match.Price
		result.Currency = match.Currency
		result.Method = TemplateMethodPrefix + match.Source
		result.Selector = match.Selector
		log.Debug().Str("template", match.Source).Str("selector", match.Selector).
			Str("raw", match.Raw).Msg("Price found by template")
		return result, nil
	}

	result.Method = MethodNotFound
	log.Debug().Str("url", rawURL).Msg("No price found")
	return result, nil
}
