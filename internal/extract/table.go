package extract

const defaultLocale = "es-CL"

// saleAware lists selectors for an amount inside scope. Sale prices wrap the
// old amount in <del> and the current one in <ins>, so only amounts under a
// non-del element or directly under scope are matched.
func saleAware(scopes []string, amount string) []string {
	var out []string
	for _, scope := range scopes {
		out = append(out,
			scope+" :not(del) > "+amount,
			scope+" > "+amount,
		)
	}
	return out
}

var wooScopes = []string{".summary .price", ".product .price", ".price"}

var builtinTable = Table{
	GenericKey: {
		{
			Name:      "woocommerce-amount-bdi",
			Selectors: saleAware(wooScopes, ".woocommerce-Price-amount bdi"),
			Locale:    defaultLocale,
		},
		{
			Name:      "woocommerce-amount",
			Selectors: saleAware(wooScopes, ".amount"),
			Locale:    defaultLocale,
		},
		{
			Name: "generic-price",
			Selectors: []string{
				`meta[itemprop="price"]`,
				`[itemprop="price"]`,
				".price",
			},
			Locale:         defaultLocale,
			ReadAttrIfMeta: "content",
		},
	},

	// Bsale storefronts
	"www.wargaming.cl":          bsale("wargaming"),
	"www.gamehousecoyhaique.cl": bsale("gamehousecoyhaique"),
	"www.laguaridadeldragon.cl": bsale("laguaridadeldragon"),

	// PrestaShop storefronts
	"www.magicsur.cl": {{
		Name:      "magicsur",
		Selectors: []string{".product-prices .current-price .product-price.current-price-value"},
		Locale:    defaultLocale,
	}},
	"dementegames.cl": {{
		Name:      "dementegames",
		Selectors: []string{".product-prices .product-price .current-price span"},
		Locale:    defaultLocale,
	}},
	"www.entrejuegos.cl": {{
		Name:      "entrejuegos",
		Selectors: []string{".product-prices .product-price .current-price .current-price-value"},
		Locale:    defaultLocale,
	}},
	"www.aldeajuegos.cl": {{
		Name:      "aldeajuegos",
		Selectors: []string{".current-price-value"},
		Locale:    defaultLocale,
	}},

	// WooCommerce storefronts with a sale-aware paragraph price
	"www.updown.cl":     wooParagraph("updown-woocommerce"),
	"www.gatoarcano.cl": wooParagraph("gato-arcano-woocommerce"),

	"www.labovedadelmago.cl": wooSummary("labovedadelmago"),
	"www.ludipuerto.cl":      wooSummary("ludipuerto"),
	"mangaigames.cl":         wooSummary("mangaigames"),
	"tcglifestore.cl": {{
		Name:      "tcglifestore",
		Selectors: saleAware([]string{".product .price"}, ".amount bdi"),
		Locale:    defaultLocale,
	}},
	"revaruk.cl": {{
		Name:      "revaruk",
		Selectors: saleAware([]string{".product .price"}, ".amount bdi"),
		Locale:    defaultLocale,
	}},

	// Shopify storefronts
	"area52.cl":      shopify("area52"),
	"ludopalooza.cl": shopify("ludopalooza"),
	"juegosenroque.cl": {{
		Name:      "juegosenroque",
		Selectors: []string{".price .price__current"},
		Locale:    defaultLocale,
	}},
	"buhojuegosdemesa.cl": {{
		Name:      "buhojuegosdemesa",
		Selectors: []string{"#ProductPrice-product-template"},
		Locale:    defaultLocale,
	}},

	// Jumpseller and others
	"www.m4e.cl": {{
		Name:      "m4e",
		Selectors: []string{".product-form_price"},
		Locale:    defaultLocale,
	}},
	"www.vudugaming.cl": {{
		Name:      "vudugaming",
		Selectors: []string{".product-price .product-page__price"},
		Locale:    defaultLocale,
	}},
	"www.lafortalezapuq.cl": {{
		Name:      "lafortaleza",
		Selectors: []string{".price.product-price"},
		Locale:    defaultLocale,
	}},
}

// DefaultTable returns a copy of the built-in template table
func DefaultTable() Table {
	return builtinTable.Clone()
}

func bsale(name string) []Template {
	return []Template{{
		Name:      name,
		Selectors: []string{".bs-product__final-price"},
		Locale:    defaultLocale,
	}}
}

func shopify(name string) []Template {
	return []Template{{
		Name:      name,
		Selectors: []string{".price-item.price-item--regular"},
		Locale:    defaultLocale,
	}}
}

func wooParagraph(name string) []Template {
	return []Template{{
		Name: name,
		Selectors: []string{
			"p.price :not(del) > .woocommerce-Price-amount bdi",
			"p.price > .woocommerce-Price-amount bdi",
			"p.price .price",
		},
		Locale: defaultLocale,
	}}
}

func wooSummary(name string) []Template {
	return []Template{{
		Name:      name,
		Selectors: saleAware([]string{".summary .price"}, ".amount bdi"),
		Locale:    defaultLocale,
	}}
}
