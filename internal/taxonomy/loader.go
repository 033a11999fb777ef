package taxonomy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

//go:embed data/taxonomy.json
var bundledTaxonomy []byte

// Loader produces a catalog snapshot. Implementations exist for the bundled
// table, a local file and an object-storage location; all yield the same
// in-memory structure so dependents never care where the table came from.
type Loader interface {
	Load(ctx context.Context) (*Catalog, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (*Catalog, error)

func (f LoaderFunc) Load(ctx context.Context) (*Catalog, error) { return f(ctx) }

type document struct {
	Version string            `json:"version"`
	Entries []Entry           `json:"entries"`
	Aliases map[string]string `json:"aliases"`
}

// Parse decodes a taxonomy document and validates it into a catalog.
func Parse(r io.Reader) (*Catalog, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode taxonomy document: %w", err)
	}
	return NewCatalog(doc.Version, doc.Entries, doc.Aliases)
}

// Bundled returns the catalog shipped with the binary.
func Bundled() (*Catalog, error) {
	var doc document
	if err := json.Unmarshal(bundledTaxonomy, &doc); err != nil {
		return nil, fmt.Errorf("decode bundled taxonomy: %w", err)
	}
	return NewCatalog(doc.Version, doc.Entries, doc.Aliases)
}

// BundledLoader wraps Bundled as a Loader.
func BundledLoader() Loader {
	return LoaderFunc(func(context.Context) (*Catalog, error) { return Bundled() })
}

// FileLoader loads the catalog from a local JSON file.
func FileLoader(path string) Loader {
	return LoaderFunc(func(context.Context) (*Catalog, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open taxonomy file %s: %w", path, err)
		}
		defer f.Close()
		return Parse(f)
	})
}
