package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// FailedPrice is recorded as ObservedPrice when an extraction attempt found nothing
var FailedPrice = decimal.NewFromInt(-1)

// Store is a registered external retail website tracked for price comparison
type Store struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	BaseURL  string   `json:"base_url"`
	Hostname string   `json:"hostname"`
	Currency string   `json:"currency,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	LogoURL  string   `json:"logo_url,omitempty"`
}

// Variant is a sellable SKU of a product. The price core only needs its identity.
type Variant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Observation is one timestamped price-extraction attempt and its outcome
type Observation struct {
	ID             string          `json:"id"`
	VariantID      string          `json:"variant_id"`
	StoreID        string          `json:"store_id"`
	URLPathInStore string          `json:"url_path_in_store"`
	ObservedPrice  decimal.Decimal `json:"observed_price"`
	Currency       string          `json:"currency"`
	ObservedAt     time.Time       `json:"observed_at"`
}

// Failed reports whether the observation is a sentinel for a failed attempt
func (o Observation) Failed() bool {
	return o.ObservedPrice.Equal(FailedPrice)
}
