// Package extract pulls a price out of a rendered storefront page, either from
// schema.org structured data or from per-store CSS selector templates.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"jssprz/pricewatcher/internal/price"
)

// GenericKey is the table key holding the templates tried after every hostname's own
const GenericKey = "__defaults__"

// FallbackCurrency is used when neither the text nor the template locale names a currency
const FallbackCurrency = "CLP"

// Template is a named, ordered set of selectors for one retailer's markup
type Template struct {
	Name      string   `yaml:"name" json:"name"`
	Selectors []string `yaml:"selectors" json:"selectors"`
	Locale    string   `yaml:"locale" json:"locale"`
	// ReadAttrIfMeta names the attribute to read when a selector hits a <meta> element
	ReadAttrIfMeta string `yaml:"read_attr_if_meta,omitempty" json:"read_attr_if_meta,omitempty"`
}

// Table maps a lowercase hostname to its templates
type Table map[string][]Template

// Candidates returns the hostname's templates followed by the generic ones
func (t Table) Candidates(hostname string) []Template {
	hostname = strings.ToLower(hostname)

	var out []Template
	if hostname != GenericKey {
		out = append(out, t[hostname]...)
	}
	return append(out, t[GenericKey]...)
}

// Clone returns a deep copy of the table
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for host, templates := range t {
		cp := make([]Template, len(templates))
		for i, tpl := range templates {
			tpl.Selectors = append([]string(nil), tpl.Selectors...)
			cp[i] = tpl
		}
		out[host] = cp
	}
	return out
}

// Merge returns a copy of t where every host in overlay replaces t's entry
func (t Table) Merge(overlay Table) Table {
	out := t.Clone()
	for host, templates := range overlay.Clone() {
		out[strings.ToLower(strings.TrimSpace(host))] = templates
	}
	return out
}

// Match is the first (template, selector) pair that produced a price
type Match struct {
	Source   string
	Selector string
	Raw      string
	Price    decimal.Decimal
	Currency string
}

// WithTemplates tries every candidate template for hostname in order, and each
// template's selectors in order. An element whose text does not normalize moves
// on to the next selector.
func WithTemplates(doc *goquery.Document, hostname string, table Table) (*Match, bool) {
	for _, tpl := range table.Candidates(hostname) {
		for _, selector := range tpl.Selectors {
			raw := readValue(doc.Find(selector).First(), tpl)
			if raw == "" {
				continue
			}

			amount, ok := price.Normalize(raw)
			if !ok {
				continue
			}

			return &Match{
				Source:   tpl.Name,
				Selector: selector,
				Raw:      raw,
				Price:    amount,
				Currency: templateCurrency(raw, tpl.Locale),
			}, true
		}
	}
	return nil, false
}

func readValue(el *goquery.Selection, tpl Template) string {
	if el.Length() == 0 {
		return ""
	}

	if tpl.ReadAttrIfMeta != "" && goquery.NodeName(el) == "meta" {
		return strings.TrimSpace(el.AttrOr(tpl.ReadAttrIfMeta, ""))
	}

	text := strings.TrimSpace(el.Text())
	if text == "" && tpl.ReadAttrIfMeta != "" {
		text = strings.TrimSpace(el.AttrOr(tpl.ReadAttrIfMeta, ""))
	}
	return text
}

func templateCurrency(raw, locale string) string {
	if c := price.GuessCurrency(raw); c != "" {
		return c
	}
	if c := price.LocaleCurrency(locale); c != "" {
		return c
	}
	return FallbackCurrency
}
