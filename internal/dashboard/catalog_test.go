package dashboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()

	entry, ok := catalog.Lookup("weather")
	require.True(t, ok)
	assert.Equal(t, Size{W: 4, H: 3}, entry.Default)
	preset, ok := entry.Preset(SizeExpanded)
	require.True(t, ok)
	assert.Equal(t, Size{W: 6, H: 5}, preset.Size)

	_, ok = catalog.Lookup("stocks")
	assert.False(t, ok)
	assert.Contains(t, catalog.Types(), "clock")
}

func TestParseCatalogRejectsUnknownSizeMode(t *testing.T) {
	_, err := ParseCatalog([]byte("widgets:\n  clock:\n    sizes:\n      giant: {size: {w: 9, h: 9}}\n"))
	assert.ErrorContains(t, err, "giant")
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("widgets:\n  notes:\n    default: {w: 2, h: 8}\n"), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	entry, ok := catalog.Lookup("notes")
	require.True(t, ok)
	assert.Equal(t, Size{W: 2, H: 8}, entry.Default)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	builtin, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog().Types(), builtin.Types())
}

func TestEngineUsesSuppliedCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte("widgets:\n  notes:\n    default: {w: 2, h: 8}\n    min: {w: 1, h: 4}\n"))
	require.NoError(t, err)
	engine := NewEngine(Options{SessionID: "s", Catalog: catalog})

	id := engine.AddWidget("notes", "", Size{})

	entry, _ := engine.ActiveTab().Layout(id)
	assert.Equal(t, LayoutEntry{I: "notes-1", W: 2, H: 8, MinW: 1, MinH: 4, SizeMode: SizeStandard}, entry)
}
