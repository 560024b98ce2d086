package protection

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StepKey identifies one entry of the pipeline step catalog.
type StepKey string

// Catalog step keys, in pipeline order. The catalog is fixed before a job
// starts and does not change mid-job.
const (
	StepUpload     StepKey = "upload"
	StepImageHash  StepKey = "imagehash"
	StepFawkes     StepKey = "fawkes"
	StepNightshade StepKey = "nightshade"
	StepWatermark  StepKey = "watermark"
	StepC2PA       StepKey = "c2pa"
)

func (k StepKey) String() string { return string(k) }

// rawStepPrefix is prepended by the server to free-text step labels in the
// modern progress shape ("Processing fawkes").
const rawStepPrefix = "processing "

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogEntry describes one pipeline step: its canonical key, the label
// shown to the presentation layer, and the raw server names that alias it.
type CatalogEntry struct {
	Key     StepKey  `yaml:"key"`
	Label   string   `yaml:"label"`
	Aliases []string `yaml:"aliases"`
}

// Catalog is the ordered set of pipeline steps plus the mapping from raw
// server step identifiers to catalog entries. Many raw names may alias one
// entry; the mapping is resolved once at construction.
type Catalog struct {
	entries []CatalogEntry
	byAlias map[string]StepKey
}

// NewCatalog builds a Catalog from a parsed entry list.
func NewCatalog(entries []CatalogEntry) *Catalog {
	c := &Catalog{entries: entries, byAlias: make(map[string]StepKey)}
	for _, e := range entries {
		c.byAlias[strings.ToLower(string(e.Key))] = e.Key
		for _, a := range e.Aliases {
			c.byAlias[strings.ToLower(a)] = e.Key
		}
	}
	return c
}

// loadCatalog parses the embedded catalog document.
func loadCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Steps []CatalogEntry `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse step catalog: %w", err)
	}
	if len(doc.Steps) == 0 {
		return nil, fmt.Errorf("step catalog is empty")
	}
	return NewCatalog(doc.Steps), nil
}

var defaultCatalog = func() *Catalog {
	c, err := loadCatalog(catalogYAML)
	if err != nil {
		panic(err) // embedded catalog is part of the build
	}
	return c
}()

// DefaultCatalog returns the built-in pipeline step catalog.
func DefaultCatalog() *Catalog { return defaultCatalog }

// Steps returns the catalog entries in pipeline order.
func (c *Catalog) Steps() []CatalogEntry { return c.entries }

// Keys returns the catalog step keys in pipeline order.
func (c *Catalog) Keys() []StepKey {
	keys := make([]StepKey, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.Key
	}
	return keys
}

// Label returns the display label for a catalog step, or the key itself when
// the step is not in the catalog.
func (c *Catalog) Label(key StepKey) string {
	for _, e := range c.entries {
		if e.Key == key {
			return e.Label
		}
	}
	return string(key)
}

// Resolve maps a raw server step identifier to a catalog key. The raw value
// is trimmed, lowercased, and stripped of the known "Processing " prefix
// before lookup. Unknown names resolve false; the server may introduce step
// names the catalog does not recognize yet and those must not corrupt
// reconciliation.
func (c *Catalog) Resolve(raw string) (StepKey, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, rawStepPrefix)
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	key, ok := c.byAlias[name]
	return key, ok
}
