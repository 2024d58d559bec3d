package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"jssprz/pricewatcher/internal/price"
)

const structuredDataSelector = `script[type="application/ld+json"]`

// Offer is a price found in schema.org offer markup
type Offer struct {
	Price    decimal.Decimal
	Currency string
	// Raw is the price field as it appeared in the markup
	Raw string
}

// FromStructuredData scans every JSON-LD block in document order and returns
// the first offer carrying a usable price. Malformed blocks are skipped.
func FromStructuredData(doc *goquery.Document) (*Offer, bool) {
	var found *Offer
	doc.Find(structuredDataSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		for _, candidate := range parseBlock(raw) {
			node, ok := findOffer(candidate)
			if !ok {
				continue
			}
			if offer, ok := offerPrice(node); ok {
				found = offer
				return false
			}
		}
		return true
	})
	return found, found != nil
}

// parseBlock decodes a script body into candidate nodes. Top-level arrays are
// flattened. Bodies that do not decode are split before lines starting with
// '{' or '[' and each part is decoded on its own.
func parseBlock(raw string) []any {
	values, err := decodeAll(raw)
	if err == nil {
		return flatten(values)
	}

	var out []any
	for _, part := range splitConcatenated(raw) {
		if vs, err := decodeAll(part); err == nil {
			out = append(out, flatten(vs)...)
		}
	}
	return out
}

// decodeAll decodes every JSON value in s, which handles back-to-back objects
func decodeAll(s string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var values []any
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return values, nil
}

func splitConcatenated(raw string) []string {
	var parts []string
	var current bytes.Buffer
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimLeft(line, " \t\r")
		if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && current.Len() > 0 {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}

func flatten(values []any) []any {
	var out []any
	for _, v := range values {
		if arr, ok := v.([]any); ok {
			out = append(out, arr...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// findOffer looks for an "offers" key on node, then recursively in its values
func findOffer(node any) (map[string]any, bool) {
	switch n := node.(type) {
	case map[string]any:
		if offers, ok := n["offers"]; ok && offers != nil {
			switch o := offers.(type) {
			case []any:
				var first map[string]any
				for _, item := range o {
					m, ok := item.(map[string]any)
					if !ok {
						continue
					}
					if first == nil {
						first = m
					}
					if hasPrice(m) {
						return m, true
					}
				}
				if first != nil {
					return first, true
				}
			case map[string]any:
				return o, true
			}
		}
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if m, ok := findOffer(n[k]); ok {
				return m, true
			}
		}
	case []any:
		for _, v := range n {
			if m, ok := findOffer(v); ok {
				return m, true
			}
		}
	}
	return nil, false
}

func hasPrice(offer map[string]any) bool {
	_, ok := priceField(offer)
	return ok
}

// priceField returns the offer price, falling back to lowPrice for aggregate offers
func priceField(offer map[string]any) (any, bool) {
	for _, key := range []string{"price", "lowPrice"} {
		v, ok := offer[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	if spec, ok := offer["priceSpecification"].(map[string]any); ok {
		return priceField(spec)
	}
	return nil, false
}

func offerPrice(offer map[string]any) (*Offer, bool) {
	v, ok := priceField(offer)
	if !ok {
		return nil, false
	}

	var (
		amount decimal.Decimal
		raw    string
	)
	switch p := v.(type) {
	case json.Number:
		raw = p.String()
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, false
		}
		amount = d
	case string:
		raw = strings.TrimSpace(p)
		d, ok := price.Normalize(raw)
		if !ok {
			return nil, false
		}
		amount = d
	default:
		return nil, false
	}
	if amount.IsZero() {
		return nil, false
	}

	currency, _ := offer["priceCurrency"].(string)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = price.GuessCurrency(raw)
	}

	return &Offer{Price: amount, Currency: currency, Raw: raw}, true
}
