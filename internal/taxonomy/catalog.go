// Package taxonomy holds the canonical cost-taxonomy catalog and the resolver
// that maps legacy line-item identifiers onto canonical codes.
package taxonomy

import (
	"fmt"

	finerr "finanzas-sd/pkg/errors"
)

// ExecutionType classifies how a line item is consumed over the contract term.
type ExecutionType string

const (
	ExecutionRecurring ExecutionType = "recurring"
	ExecutionOneTime   ExecutionType = "one_time"
)

// CostType classifies the accounting treatment of a line item.
type CostType string

const (
	CostOPEX  CostType = "OPEX"
	CostCAPEX CostType = "CAPEX"
)

// Entry is one canonical cost line item. Immutable after catalog load.
type Entry struct {
	Code            string        `json:"code"`
	CategoryCode    string        `json:"category"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	ExecutionType   ExecutionType `json:"execution_type"`
	CostType        CostType      `json:"cost_type"`
	ReferenceSource string        `json:"reference_source"`
}

// Catalog is the loaded taxonomy snapshot: canonical entries plus the legacy
// alias table. Loaded once and injected into dependents; never mutated.
type Catalog struct {
	version string
	entries map[string]Entry
	order   []string
	aliases map[string]string
}

// NewCatalog validates and indexes a taxonomy snapshot. It rejects duplicate
// canonical codes and aliases that do not resolve to a known code.
func NewCatalog(version string, entries []Entry, aliases map[string]string) (*Catalog, error) {
	c := &Catalog{
		version: version,
		entries: make(map[string]Entry, len(entries)),
		order:   make([]string, 0, len(entries)),
		aliases: make(map[string]string, len(aliases)),
	}

	for _, e := range entries {
		if e.Code == "" {
			return nil, fmt.Errorf("taxonomy entry with empty code (category %q)", e.CategoryCode)
		}
		if _, dup := c.entries[e.Code]; dup {
			return nil, fmt.Errorf("duplicate taxonomy code %q", e.Code)
		}
		c.entries[e.Code] = e
		c.order = append(c.order, e.Code)
	}

	for alias, code := range aliases {
		if _, ok := c.entries[code]; !ok {
			return nil, fmt.Errorf("alias %q maps to unknown code %q", alias, code)
		}
		c.aliases[alias] = code
	}

	return c, nil
}

// Version reports the snapshot version the catalog was loaded from.
func (c *Catalog) Version() string { return c.version }

// Len reports the number of canonical entries.
func (c *Catalog) Len() int { return len(c.order) }

// Get returns the entry for a canonical code.
func (c *Catalog) Get(code string) (Entry, bool) {
	e, ok := c.entries[code]
	return e, ok
}

// Entries returns all entries in catalog order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.entries[code])
	}
	return out
}

// Categories returns the distinct category codes in catalog order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, code := range c.order {
		cat := c.entries[code].CategoryCode
		if _, ok := seen[cat]; !ok {
			seen[cat] = struct{}{}
			out = append(out, cat)
		}
	}
	return out
}

// ResolveCanonical maps any identifier onto its canonical code. Already
// canonical codes pass through unchanged; legacy aliases resolve through the
// alias table. Comparison is case-sensitive and exact; anything else is a
// NotFound the caller must handle, never coerced to a default here.
func (c *Catalog) ResolveCanonical(id string) (string, error) {
	if _, ok := c.entries[id]; ok {
		return id, nil
	}
	if code, ok := c.aliases[id]; ok {
		return code, nil
	}
	return "", finerr.NewNotFound("identifier does not resolve to a canonical taxonomy code", id)
}
