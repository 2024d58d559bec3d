// Package storage persists stores, variants and price observations.
package storage

import (
	"context"
	"errors"

	"jssprz/pricewatcher/internal/catalog"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Repository is the persistence surface used by the price pipeline.
// Observations are append-only; there is no update or delete.
type Repository interface {
	UpsertStore(ctx context.Context, store catalog.Store) error
	UpsertVariant(ctx context.Context, variant catalog.Variant) error
	ListStores(ctx context.Context) ([]catalog.Store, error)
	FindStoreByHostname(ctx context.Context, hostname string) (catalog.Store, error)
	VariantExists(ctx context.Context, variantID string) (bool, error)

	InsertObservation(ctx context.Context, obs catalog.Observation) error
	// LatestObservations returns the newest observation per (variant, store) pair
	LatestObservations(ctx context.Context) ([]catalog.Observation, error)
	// LatestForVariant returns the newest observation per store for one variant
	LatestForVariant(ctx context.Context, variantID string) ([]catalog.Observation, error)
	// History returns every observation for a pair, oldest first
	History(ctx context.Context, variantID, storeID string) ([]catalog.Observation, error)
}

type pairKey struct {
	variantID string
	storeID   string
}

// latestPerPair keeps the newest observation for each (variant, store) pair,
// in the order pairs were first seen
func latestPerPair(rows []catalog.Observation) []catalog.Observation {
	index := make(map[pairKey]int)
	var out []catalog.Observation
	for _, row := range rows {
		key := pairKey{row.VariantID, row.StoreID}
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, row)
			continue
		}
		if row.ObservedAt.After(out[i].ObservedAt) {
			out[i] = row
		}
	}
	return out
}
