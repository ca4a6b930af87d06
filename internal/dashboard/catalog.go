package dashboard

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Catalog maps a widget type to its grid footprint. The engine only consults
// it when instantiating a widget.
type Catalog interface {
	Lookup(widgetType string) (CatalogEntry, bool)
}

type CatalogEntry struct {
	Default Size                  `yaml:"default"`
	Min     Size                  `yaml:"min"`
	Sizes   map[string]SizePreset `yaml:"sizes"`
}

type SizePreset struct {
	Size Size `yaml:"size"`
	Min  Size `yaml:"min"`
}

// Preset returns the preset for mode, if the widget type declares one.
func (e CatalogEntry) Preset(mode SizeMode) (SizePreset, bool) {
	preset, ok := e.Sizes[string(mode)]
	return preset, ok
}

type StaticCatalog struct {
	entries map[string]CatalogEntry
}

type catalogFile struct {
	Widgets map[string]CatalogEntry `yaml:"widgets"`
}

func ParseCatalog(data []byte) (*StaticCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for name, entry := range file.Widgets {
		for mode := range entry.Sizes {
			if !SizeMode(mode).Valid() {
				return nil, fmt.Errorf("parse catalog: widget %q: unknown size mode %q", name, mode)
			}
		}
	}
	if file.Widgets == nil {
		file.Widgets = map[string]CatalogEntry{}
	}
	return &StaticCatalog{entries: file.Widgets}, nil
}

// LoadCatalog reads a catalog file; an empty path yields the built-in catalog.
func LoadCatalog(path string) (*StaticCatalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

func DefaultCatalog() *StaticCatalog {
	catalog, err := ParseCatalog(builtinCatalog)
	if err != nil {
		panic(err)
	}
	return catalog
}

func (c *StaticCatalog) Lookup(widgetType string) (CatalogEntry, bool) {
	entry, ok := c.entries[widgetType]
	return entry, ok
}

func (c *StaticCatalog) Types() []string {
	types := make([]string, 0, len(c.entries))
	for name := range c.entries {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
