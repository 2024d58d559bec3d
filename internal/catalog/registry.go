package catalog

import (
	"fmt"
	"sort"
)

// Registry is a validated one-to-one mapping of hostname to Store.
// Lookups are exact on the normalized hostname; there is no substring or
// wildcard matching, so similarly named domains cannot collide.
type Registry struct {
	byHost map[string]Store
}

// NewRegistry builds a registry, filling Store.Hostname from BaseURL when empty.
// Duplicate hostnames are rejected.
func NewRegistry(stores []Store) (*Registry, error) {
	r := &Registry{byHost: make(map[string]Store, len(stores))}
	for _, s := range stores {
		if err := r.Add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a store
func (r *Registry) Add(s Store) error {
	s, err := WithHostname(s)
	if err != nil {
		return err
	}
	if existing, ok := r.byHost[s.Hostname]; ok && existing.ID != s.ID {
		return fmt.Errorf("hostname %s already registered to store %s", s.Hostname, existing.ID)
	}
	r.byHost[s.Hostname] = s
	return nil
}

// Resolve finds the store registered for hostname
func (r *Registry) Resolve(hostname string) (Store, bool) {
	s, ok := r.byHost[NormalizeHostname(hostname)]
	return s, ok
}

// Stores returns all registered stores ordered by hostname
func (r *Registry) Stores() []Store {
	out := make([]Store, 0, len(r.byHost))
	for _, s := range r.byHost {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out
}

// WithHostname returns s with a normalized Hostname, deriving it from BaseURL if unset
func WithHostname(s Store) (Store, error) {
	if s.Hostname == "" {
		host, err := HostnameOf(s.BaseURL)
		if err != nil {
			return s, fmt.Errorf("store %s: invalid base url: %w", s.ID, err)
		}
		s.Hostname = host
	}
	s.Hostname = NormalizeHostname(s.Hostname)
	if s.Hostname == "" {
		return s, fmt.Errorf("store %s: empty hostname", s.ID)
	}
	return s, nil
}
