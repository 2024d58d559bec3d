package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"jssprz/pricewatcher/internal/catalog"
)

// Memory is an in-process Repository for tests and dry runs
type Memory struct {
	mu           sync.RWMutex
	registry     *catalog.Registry
	variants     map[string]catalog.Variant
	observations []catalog.Observation
}

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	registry, _ := catalog.NewRegistry(nil)
	return &Memory{
		registry: registry,
		variants: make(map[string]catalog.Variant),
	}
}

// UpsertStore registers a store; hostnames stay unique
func (m *Memory) UpsertStore(_ context.Context, store catalog.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stores := m.registry.Stores()
	for i, s := range stores {
		if s.ID == store.ID {
			stores = append(stores[:i], stores[i+1:]...)
			break
		}
	}
	registry, err := catalog.NewRegistry(append(stores, store))
	if err != nil {
		return fmt.Errorf("upsert store %s: %w", store.ID, err)
	}
	m.registry = registry
	return nil
}

// UpsertVariant registers a variant
func (m *Memory) UpsertVariant(_ context.Context, variant catalog.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variants[variant.ID] = variant
	return nil
}

// ListStores returns every store ordered by hostname
func (m *Memory) ListStores(_ context.Context) ([]catalog.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Stores(), nil
}

// FindStoreByHostname resolves a store by exact hostname
func (m *Memory) FindStoreByHostname(_ context.Context, hostname string) (catalog.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	store, ok := m.registry.Resolve(hostname)
	if !ok {
		return catalog.Store{}, ErrNotFound
	}
	return store, nil
}

// VariantExists reports whether the variant is known
func (m *Memory) VariantExists(_ context.Context, variantID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.variants[variantID]
	return ok, nil
}

// InsertObservation appends an observation
func (m *Memory) InsertObservation(_ context.Context, obs catalog.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, obs)
	return nil
}

// Observations returns a copy of every stored observation in insertion order
func (m *Memory) Observations() []catalog.Observation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]catalog.Observation(nil), m.observations...)
}

// LatestObservations returns the newest observation per pair
func (m *Memory) LatestObservations(_ context.Context) ([]catalog.Observation, error) {
	return sortPairs(latestPerPair(m.Observations())), nil
}

// LatestForVariant returns the newest observation per store for variantID
func (m *Memory) LatestForVariant(_ context.Context, variantID string) ([]catalog.Observation, error) {
	var rows []catalog.Observation
	for _, obs := range m.Observations() {
		if obs.VariantID == variantID {
			rows = append(rows, obs)
		}
	}
	return sortPairs(latestPerPair(rows)), nil
}

// History returns every observation for the pair, oldest first
func (m *Memory) History(_ context.Context, variantID, storeID string) ([]catalog.Observation, error) {
	var rows []catalog.Observation
	for _, obs := range m.Observations() {
		if obs.VariantID == variantID && obs.StoreID == storeID {
			rows = append(rows, obs)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ObservedAt.Before(rows[j].ObservedAt) })
	return rows, nil
}

func sortPairs(rows []catalog.Observation) []catalog.Observation {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].VariantID != rows[j].VariantID {
			return rows[i].VariantID < rows[j].VariantID
		}
		return rows[i].StoreID < rows[j].StoreID
	})
	return rows
}
