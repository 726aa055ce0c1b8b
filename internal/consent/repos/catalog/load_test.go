package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/cookiegate/internal/consent/domain"
)

func TestLoadDefault_IsValid(t *testing.T) {
	presets, err := LoadDefault()
	require.NoError(t, err)
	require.NotEmpty(t, presets)

	assert.False(t, HasErrors(Validate(presets)), "%v", Validate(presets))

	c, err := New(presets, Options{CacheSize: 64})
	require.NoError(t, err)

	m, ok := c.ResolveByURL("https://www.googletagmanager.com/gtag/js?id=G-1")
	require.True(t, ok)
	assert.Equal(t, domain.CategoryAnalytics, m.Category())

	cm, ok := c.ResolveByCookie("_hjSessionUser_2938475")
	require.True(t, ok)
	assert.Equal(t, "hotjar", cm.Preset.ID)
	assert.Equal(t, "_hjSession*", cm.Pattern)
}

func TestLoadFile_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	body := `{"services": [
		{"id": "b", "name": "B", "category": "Marketing", "domains": ["b.example"], "cookies": ["_b*"]},
		{"id": "a", "name": "A", "category": "analytics", "cookies": ["_a"]}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	presets, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.Equal(t, "b", presets[0].ID)
	assert.Equal(t, domain.CategoryMarketing, presets[0].Category, "category is lowercased")
	assert.Equal(t, []string{"b.example"}, presets[0].Domains)
	assert.Equal(t, []string{"_b*"}, presets[0].CookiePatterns)
	assert.Equal(t, "a", presets[1].ID)
	assert.Empty(t, presets[1].Domains)
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yml")
	body := "services:\n  - id: hotjar\n    name: Hotjar\n    category: analytics\n    cookies: [\"_hjid\", \"_hjSession*\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	presets, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, presets, 1)
	assert.Equal(t, []string{"_hjid", "_hjSession*"}, presets[0].CookiePatterns)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "catalog.txt"))
	assert.Error(t, err, "unsupported extension")

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "missing file")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("other: 1\n"), 0o600))
	_, err = LoadFile(empty)
	assert.Error(t, err, "no services key")
}
