package catalog

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"

	"github.com/haukened/cookiegate/internal/consent/domain"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// servicesKey is the top-level key holding the preset list in catalog files.
const servicesKey = "services"

// LoadDefault parses the catalog bundled with the binary.
func LoadDefault() ([]domain.ServicePreset, error) {
	presets, err := load(rawbytes.Provider(defaultCatalog), yaml.Parser())
	if err != nil {
		return nil, fmt.Errorf("failed to load bundled catalog: %w", err)
	}
	return presets, nil
}

// LoadFile parses a YAML, JSON or TOML catalog file. The preset order of the
// file is the catalog order.
func LoadFile(path string) ([]domain.ServicePreset, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return nil, fmt.Errorf("unsupported catalog file type: %s", path)
	}
	presets, err := load(file.Provider(path), parser)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return presets, nil
}

func load(p koanf.Provider, parser koanf.Parser) ([]domain.ServicePreset, error) {
	k := koanf.New(".")
	if err := k.Load(p, parser); err != nil {
		return nil, err
	}
	if !k.Exists(servicesKey) {
		return nil, fmt.Errorf("missing %q list", servicesKey)
	}
	var presets []domain.ServicePreset
	if err := k.Unmarshal(servicesKey, &presets); err != nil {
		return nil, err
	}
	for i := range presets {
		presets[i].Category = domain.Category(strings.ToLower(string(presets[i].Category)))
	}
	return presets, nil
}
