package extract

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML overlay of hostname to templates and merges it over the
// built-in table. Hosts present in the file replace the built-in entry.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file: %w", err)
	}
	return Parse(data)
}

// Parse merges a YAML overlay document over the built-in table
func Parse(data []byte) (Table, error) {
	var overlay Table
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	table := DefaultTable().Merge(overlay)
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate rejects templates without a name or selectors, and selectors that do not compile
func (t Table) Validate() error {
	hosts := make([]string, 0, len(t))
	for host := range t {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	for _, host := range hosts {
		if host == "" || host != strings.ToLower(host) {
			return fmt.Errorf("template host %q must be a non-empty lowercase hostname", host)
		}
		for i, tpl := range t[host] {
			if strings.TrimSpace(tpl.Name) == "" {
				return fmt.Errorf("template %d for %s has no name", i, host)
			}
			if len(tpl.Selectors) == 0 {
				return fmt.Errorf("template %s for %s has no selectors", tpl.Name, host)
			}
			for _, sel := range tpl.Selectors {
				if _, err := cascadia.Compile(sel); err != nil {
					return fmt.Errorf("template %s for %s: invalid selector %q: %w", tpl.Name, host, sel, err)
				}
			}
		}
	}
	return nil
}
