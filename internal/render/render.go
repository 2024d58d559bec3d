// Package render loads storefront pages into a parsed DOM.
package render

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jssprz/pricewatcher/pkg/errors"
)

// Page is a loaded storefront page
type Page struct {
	URL  string
	HTML string
	Doc  *goquery.Document
}

// Renderer loads a URL to a stable DOM state
type Renderer interface {
	Render(ctx context.Context, url string) (*Page, error)
}

// RendererFunc adapts a function to the Renderer interface
type RendererFunc func(ctx context.Context, url string) (*Page, error)

// Render calls f
func (f RendererFunc) Render(ctx context.Context, url string) (*Page, error) {
	return f(ctx, url)
}

// NewPage parses html into a Page
func NewPage(url, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.NewParsing(url, "failed to parse HTML", err)
	}
	return &Page{URL: url, HTML: html, Doc: doc}, nil
}
