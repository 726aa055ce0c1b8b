package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"golang.org/x/text/language"

	"github.com/haukened/cookiegate/internal/consent/domain"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "COOKIEGATE_"

// AppConfig holds the cookiegate configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log     LogConfig     `koanf:"log"`
	Catalog CatalogConfig `koanf:"catalog"`
	Scan    ScanConfig    `koanf:"scan"`
	Gate    GateConfig    `koanf:"gate"`
	Archive ArchiveConfig `koanf:"archive"`
	HTTP    HTTPConfig    `koanf:"http"`
	Loader  LoaderConfig  `koanf:"loader"`
}

type LogConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

type CatalogConfig struct {
	// Path is a YAML, JSON or TOML catalog file. Empty uses the bundled catalog.
	Path        string  `koanf:"path"`
	CacheSize   int     `koanf:"cache_size" validate:"gte=0"`
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`
}

type ScanConfig struct {
	MaxValueLength int      `koanf:"max_value_length" validate:"gte=1"`
	IgnoreNames    []string `koanf:"ignore_names" validate:"dive,required"`
	IgnorePatterns []string `koanf:"ignore_patterns" validate:"dive,required"`
	// Declared lists the catalog ids of the services the site declares.
	Declared []string `koanf:"declared" validate:"dive,required"`
	Locale   string   `koanf:"locale" validate:"required,locale"`
}

type GateConfig struct {
	// Consent lists the categories treated as granted when gating markup.
	Consent []string `koanf:"consent" validate:"dive,category"`
}

type ArchiveConfig struct {
	// Path of the scan archive database. Empty disables archiving.
	Path string `koanf:"path"`
}

type HTTPConfig struct {
	Port int `koanf:"port" validate:"required,gte=1,lt=65535"`
}

type LoaderConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
	// RPS caps script fetches per second; 0 means unlimited.
	RPS float64 `koanf:"rps" validate:"gte=0"`
}

// DEFAULT_APP_CONFIG holds the defaults every other source overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LogConfig{Level: "info"},
	Catalog: CatalogConfig{
		CacheSize:   4096,
		BloomFPRate: 0.01,
	},
	Scan: ScanConfig{
		MaxValueLength: 20,
		Locale:         "en",
	},
	Gate:   GateConfig{Consent: []string{"necessary"}},
	HTTP:   HTTPConfig{Port: 8080},
	Loader: LoaderConfig{Timeout: 10 * time.Second, RPS: 5},
}

// envKeys maps environment variable names, without EnvPrefix, to config
// keys. Key segments contain underscores, so the mapping is explicit.
var envKeys = map[string]string{
	"ENV":                   "env",
	"LOG_LEVEL":             "log.level",
	"CATALOG_PATH":          "catalog.path",
	"CATALOG_CACHE_SIZE":    "catalog.cache_size",
	"CATALOG_BLOOM_FP_RATE": "catalog.bloom_fp_rate",
	"SCAN_MAX_VALUE_LENGTH": "scan.max_value_length",
	"SCAN_IGNORE_NAMES":     "scan.ignore_names",
	"SCAN_IGNORE_PATTERNS":  "scan.ignore_patterns",
	"SCAN_DECLARED":         "scan.declared",
	"SCAN_LOCALE":           "scan.locale",
	"GATE_CONSENT":          "gate.consent",
	"ARCHIVE_PATH":          "archive.path",
	"HTTP_PORT":             "http.port",
	"LOADER_TIMEOUT":        "loader.timeout",
	"LOADER_RPS":            "loader.rps",
}

// listKeys are split on commas and spaces.
var listKeys = map[string]bool{
	"scan.ignore_names":    true,
	"scan.ignore_patterns": true,
	"scan.declared":        true,
	"gate.consent":         true,
}

func transformEnv(key, value string) (string, any) {
	k, ok := envKeys[strings.TrimPrefix(key, EnvPrefix)]
	if !ok {
		return "", nil
	}
	value = strings.TrimSpace(value)
	if listKeys[k] {
		return k, strings.FieldsFunc(value, func(r rune) bool {
			return r == ' ' || r == ','
		})
	}
	return k, value
}

// envLoader loads COOKIEGATE_ variables and can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads a YAML, JSON or TOML config file chosen by extension.
var fileLoader = func(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}
	return k.Load(file.Provider(path), parser)
}

func validCategory(fl validator.FieldLevel) bool {
	c, err := domain.ParseCategory(fl.Field().String())
	return err == nil && c != ""
}

func validLocale(fl validator.FieldLevel) bool {
	_, err := language.Parse(fl.Field().String())
	return err == nil
}

// registerValidation registers the "category" and "locale" tags.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("category", validCategory); err != nil {
		return err
	}
	return v.RegisterValidation("locale", validLocale)
}

// Load builds the configuration from defaults, the optional file at path
// and the environment, in that order, and validates it.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}

// ConsentState returns the configured gate consent as a domain value.
// Necessary is always granted.
func (c *AppConfig) ConsentState() (domain.ConsentState, error) {
	return domain.ParseConsentState(c.Gate.Consent)
}
