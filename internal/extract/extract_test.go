package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func ldScript(body string) string {
	return `<script type="application/ld+json">` + body + `</script>`
}

func TestFromStructuredData(t *testing.T) {
	testCases := []struct {
		name     string
		html     string
		price    string
		currency string
	}{
		{
			name:     "product with offer object",
			html:     ldScript(`{"@type":"Product","name":"Catan","offers":{"@type":"Offer","price":"47990","priceCurrency":"CLP"}}`),
			price:    "47990",
			currency: "CLP",
		},
		{
			name:     "numeric price is exact",
			html:     ldScript(`{"@type":"Product","offers":{"price":1234.567,"priceCurrency":"usd"}}`),
			price:    "1234.567",
			currency: "USD",
		},
		{
			name:     "offers array prefers first entry with a price",
			html:     ldScript(`{"@type":"Product","offers":[{"@type":"Offer"},{"price":"$29.990"}]}`),
			price:    "29990",
			currency: "CLP",
		},
		{
			name:     "top level array",
			html:     ldScript(`[{"@type":"BreadcrumbList"},{"@type":"Product","offers":{"price":"19990","priceCurrency":"CLP"}}]`),
			price:    "19990",
			currency: "CLP",
		},
		{
			name:     "nested in graph",
			html:     ldScript(`{"@context":"https://schema.org","@graph":[{"@type":"WebPage"},{"@type":"Product","offers":{"price":"15.000","priceCurrency":"CLP"}}]}`),
			price:    "15000",
			currency: "CLP",
		},
		{
			name:     "aggregate offer falls back to lowPrice",
			html:     ldScript(`{"@type":"Product","offers":{"@type":"AggregateOffer","lowPrice":"9990","highPrice":"12990","priceCurrency":"CLP"}}`),
			price:    "9990",
			currency: "CLP",
		},
		{
			name:     "concatenated objects on separate lines",
			html:     ldScript("{\"@type\":\"Organization\"}\n{\"@type\":\"Product\",\"offers\":{\"price\":\"39990\",\"priceCurrency\":\"CLP\"}}"),
			price:    "39990",
			currency: "CLP",
		},
		{
			name: "malformed block followed by a good one",
			html: ldScript(`{"@type":"Product", broken`) +
				ldScript(`{"@type":"Product","offers":{"price":"12.50","priceCurrency":"EUR"}}`),
			price:    "12.5",
			currency: "EUR",
		},
		{
			name:     "garbage line then a valid object",
			html:     ldScript("{\"@type\": oops,\n{\"@type\":\"Product\",\"offers\":{\"price\":\"US$ 12.50\"}}"),
			price:    "12.5",
			currency: "USD",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc := newDoc(t, "<html><head>"+tc.html+"</head><body></body></html>")

			offer, ok := FromStructuredData(doc)
			require.True(t, ok)
			assert.Equal(t, tc.price, offer.Price.String())
			assert.Equal(t, tc.currency, offer.Currency)
		})
	}
}

func TestFromStructuredData_NoOffer(t *testing.T) {
	testCases := map[string]string{
		"no scripts":     `<div class="price">$1.000</div>`,
		"empty script":   ldScript("   "),
		"no offers":      ldScript(`{"@type":"Organization","name":"Example"}`),
		"offer no price": ldScript(`{"@type":"Product","offers":{"availability":"OutOfStock"}}`),
		"unparsable":     ldScript(`not json at all`),
		"text price nan": ldScript(`{"offers":{"price":"Consultar"}}`),
	}

	for name, html := range testCases {
		t.Run(name, func(t *testing.T) {
			offer, ok := FromStructuredData(newDoc(t, html))
			assert.False(t, ok)
			assert.Nil(t, offer)
		})
	}
}

func TestCandidates(t *testing.T) {
	table := Table{
		GenericKey:    {{Name: "generic", Selectors: []string{".price"}}},
		"example.cl":  {{Name: "example", Selectors: []string{".p"}}},
		"example2.cl": {{Name: "other", Selectors: []string{".q"}}},
	}

	names := func(ts []Template) []string {
		var out []string
		for _, tpl := range ts {
			out = append(out, tpl.Name)
		}
		return out
	}

	assert.Equal(t, []string{"example", "generic"}, names(table.Candidates("EXAMPLE.cl")))
	assert.Equal(t, []string{"generic"}, names(table.Candidates("unknown.cl")))
	assert.Equal(t, []string{"generic"}, names(table.Candidates(GenericKey)))
}

func TestWithTemplates_GenericFallback(t *testing.T) {
	doc := newDoc(t, `<html><body><span class="price">$12.345</span></body></html>`)

	match, ok := WithTemplates(doc, "unknown-store.cl", DefaultTable())
	require.True(t, ok)
	assert.Equal(t, "generic-price", match.Source)
	assert.Equal(t, ".price", match.Selector)
	assert.Equal(t, "12345", match.Price.String())
	assert.Equal(t, "CLP", match.Currency)
}

func TestWithTemplates_HostBeforeGeneric(t *testing.T) {
	doc := newDoc(t, `<html><body>
		<div class="product-prices"><div class="current-price">
			<span class="product-price current-price-value" content="49990">$49.990</span>
		</div></div>
		<span class="price">$1</span>
	</body></html>`)

	match, ok := WithTemplates(doc, "www.magicsur.cl", DefaultTable())
	require.True(t, ok)
	assert.Equal(t, "magicsur", match.Source)
	assert.Equal(t, "49990", match.Price.String())
}

func TestWithTemplates_SkipsStrikethroughPrice(t *testing.T) {
	doc := newDoc(t, `<html><body><p class="price">
		<del><span class="woocommerce-Price-amount amount"><bdi><span class="woocommerce-Price-currencySymbol">$</span>39.990</bdi></span></del>
		<ins><span class="woocommerce-Price-amount amount"><bdi><span class="woocommerce-Price-currencySymbol">$</span>29.990</bdi></span></ins>
	</p></body></html>`)

	match, ok := WithTemplates(doc, "www.updown.cl", DefaultTable())
	require.True(t, ok)
	assert.Equal(t, "updown-woocommerce", match.Source)
	assert.Equal(t, "29990", match.Price.String())
}

func TestWithTemplates_GenericSkipsStrikethroughPrice(t *testing.T) {
	salePrice := `<div class="summary"><p class="price">
		<del aria-hidden="true"><span class="woocommerce-Price-amount amount"><bdi><span class="woocommerce-Price-currencySymbol">$</span>39.990</bdi></span></del>
		<ins><span class="woocommerce-Price-amount amount"><bdi><span class="woocommerce-Price-currencySymbol">$</span>29.990</bdi></span></ins>
	</p></div>`

	match, ok := WithTemplates(newDoc(t, `<html><body>`+salePrice+`</body></html>`), "example.cl", DefaultTable())
	require.True(t, ok)
	assert.Equal(t, "woocommerce-amount-bdi", match.Source)
	assert.Equal(t, ".summary .price :not(del) > .woocommerce-Price-amount bdi", match.Selector)
	assert.Equal(t, "29990", match.Price.String())

	match, ok = WithTemplates(newDoc(t, `<html><body>`+salePrice+`</body></html>`), "www.labovedadelmago.cl", DefaultTable())
	require.True(t, ok)
	assert.Equal(t, "labovedadelmago", match.Source)
	assert.Equal(t, "29990", match.Price.String())
}

func TestWithTemplates_GenericRegularPrice(t *testing.T) {
	doc := newDoc(t, `<html><body><div class="product"><p class="price">
		<span class="woocommerce-Price-amount amount"><bdi><span class="woocommerce-Price-currencySymbol">$</span>19.990</bdi></span>
	</p></div></body></html>`)

	match, ok := WithTemplates(doc, "example.cl", DefaultTable())
	require.True(t, ok)
	assert.Equal(t, "woocommerce-amount-bdi", match.Source)
	assert.Equal(t, ".product .price > .woocommerce-Price-amount bdi", match.Selector)
	assert.Equal(t, "19990", match.Price.String())
}

func TestWithTemplates_MetaAttribute(t *testing.T) {
	doc := newDoc(t, `<html><head><meta itemprop="price" content="47000.0"></head><body></body></html>`)

	match, ok := WithTemplates(doc, "example.cl", DefaultTable())
	require.True(t, ok)
	assert.Equal(t, "generic-price", match.Source)
	assert.Equal(t, `meta[itemprop="price"]`, match.Selector)
	assert.Equal(t, "47000", match.Price.String())
}

func TestWithTemplates_UnparsableMovesToNextSelector(t *testing.T) {
	table := Table{
		"example.cl": {{
			Name:      "example",
			Selectors: []string{".status", ".amount"},
			Locale:    "en-US",
		}},
	}
	doc := newDoc(t, `<div class="status">Agotado</div><div class="amount">1,234.56</div>`)

	match, ok := WithTemplates(doc, "example.cl", table)
	require.True(t, ok)
	assert.Equal(t, ".amount", match.Selector)
	assert.Equal(t, "1234.56", match.Price.String())
	// No symbol in the text; the template locale decides
	assert.Equal(t, "USD", match.Currency)
}

func TestWithTemplates_NoMatch(t *testing.T) {
	doc := newDoc(t, `<html><body><h1>Catan</h1><p>Sin stock</p></body></html>`)

	match, ok := WithTemplates(doc, "example.cl", DefaultTable())
	assert.False(t, ok)
	assert.Nil(t, match)
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	require.NoError(t, table.Validate())

	require.Len(t, table[GenericKey], 3)
	assert.Equal(t, "generic-price", table[GenericKey][2].Name)
	assert.Contains(t, table, "buhojuegosdemesa.cl")
	assert.Contains(t, table, "www.wargaming.cl")

	// Copies are independent
	table["www.wargaming.cl"][0].Selectors[0] = ".changed"
	assert.Equal(t, ".bs-product__final-price", DefaultTable()["www.wargaming.cl"][0].Selectors[0])
}

func TestParse(t *testing.T) {
	overlay := `
example.cl:
  - name: example
    selectors:
      - ".product-detail .final"
    locale: es-CL
Www.WarGaming.cl:
  - name: wargaming-v2
    selectors: [".new-price"]
    locale: es-CL
`
	table, err := Parse([]byte(overlay))
	require.NoError(t, err)

	assert.Equal(t, "example", table["example.cl"][0].Name)
	assert.Equal(t, "wargaming-v2", table["www.wargaming.cl"][0].Name)
	// Untouched built-in entries survive the merge
	assert.Equal(t, "magicsur", table["www.magicsur.cl"][0].Name)

	doc := newDoc(t, `<div class="product-detail"><span class="final">$8.990</span></div>`)
	match, ok := WithTemplates(doc, "example.cl", table)
	require.True(t, ok)
	assert.Equal(t, "example", match.Source)
	assert.Equal(t, "8990", match.Price.String())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("example.cl: [\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("example.cl:\n  - name: broken\n    selectors: [\"div[\"]\n"))
	assert.ErrorContains(t, err, "invalid selector")

	_, err = Parse([]byte("example.cl:\n  - name: empty\n    selectors: []\n"))
	assert.ErrorContains(t, err, "no selectors")

	_, err = Parse([]byte("example.cl:\n  - selectors: [\".p\"]\n"))
	assert.ErrorContains(t, err, "no name")
}

func TestLoadFile(t *testing.T) {
	_, err := LoadFile("testdata/does-not-exist.yaml")
	assert.Error(t, err)

	table, err := LoadFile("testdata/templates.yaml")
	require.NoError(t, err)
	assert.Equal(t, "ludo2go-demo", table["demo.ludo2go.cl"][0].Name)
}
