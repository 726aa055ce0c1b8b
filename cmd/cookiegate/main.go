package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/cookiegate/internal/consent/common/clock"
	"github.com/haukened/cookiegate/internal/consent/common/log"
	"github.com/haukened/cookiegate/internal/consent/config"
	"github.com/haukened/cookiegate/internal/consent/domain"
	"github.com/haukened/cookiegate/internal/consent/gateways/loader"
	"github.com/haukened/cookiegate/internal/consent/repos/archive"
	"github.com/haukened/cookiegate/internal/consent/repos/catalog"
)

const (
	version = "0.1.0-dev"
	appName = "cookiegate"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds the components shared by every command.
type Application struct {
	config  *config.AppConfig
	catalog *catalog.Catalog
	archive *archive.Store // nil when archiving is disabled
	loader  *loader.HTTPLoader
	clock   clock.Clock
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries state between the root command's hooks and its subcommands.
type cli struct {
	cfgFile string
	app     *Application
}

// run executes one command line and releases the application afterwards,
// whether or not the command failed.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if c.app != nil {
		if cerr := c.app.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Consent-driven script gating and cookie compliance auditing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
				return fmt.Errorf("logging configuration error: %w", err)
			}
			c.app, err = buildApplication(cfg)
			if err != nil {
				return fmt.Errorf("failed to build application: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file (YAML, JSON or TOML)")

	get := func() *Application { return c.app }
	root.AddCommand(
		newScanCmd(get),
		newGateCmd(get),
		newUnblockCmd(get),
		newHistoryCmd(get),
		newCatalogCmd(get),
		newServeCmd(get),
	)
	return root
}

// buildApplication constructs the catalog, archive and loader from cfg.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()

	cat, err := buildCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}

	var store *archive.Store
	if cfg.Archive.Path != "" {
		store, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, err
		}
		log.Debug(map[string]any{
			"path":  cfg.Archive.Path,
			"scans": store.Len(),
		}, "archive_opened")
	}

	return &Application{
		config:  cfg,
		catalog: cat,
		archive: store,
		loader: loader.NewHTTPLoader(loader.Options{
			Timeout: cfg.Loader.Timeout,
			RPS:     cfg.Loader.RPS,
			Logger:  logger,
		}),
		clock: clock.RealClock{},
	}, nil
}

// buildCatalog loads the configured or bundled presets, reports validation
// findings and indexes the result.
func buildCatalog(cfg *config.AppConfig, logger log.Logger) (*catalog.Catalog, error) {
	var (
		presets []domain.ServicePreset
		err     error
	)
	if cfg.Catalog.Path != "" {
		presets, err = catalog.LoadFile(cfg.Catalog.Path)
	} else {
		presets, err = catalog.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	issues := catalog.Validate(presets)
	for _, i := range issues {
		logger.Warn(map[string]any{
			"severity":  i.Severity.String(),
			"preset_id": i.PresetID,
			"issue":     i.Message,
		}, "catalog_issue")
	}
	if catalog.HasErrors(issues) {
		return nil, fmt.Errorf("catalog has %d issues, see log", len(issues))
	}

	cat, err := catalog.New(presets, catalog.Options{
		CacheSize: cfg.Catalog.CacheSize,
		FPRate:    cfg.Catalog.BloomFPRate,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index catalog: %w", err)
	}
	log.Info(map[string]any{
		"presets": cat.Len(),
		"source":  catalogSource(cfg),
	}, "catalog_loaded")
	return cat, nil
}

func catalogSource(cfg *config.AppConfig) string {
	if cfg.Catalog.Path == "" {
		return "bundled"
	}
	return cfg.Catalog.Path
}

// Close releases the archive.
func (app *Application) Close() error {
	if app.archive == nil {
		return nil
	}
	err := app.archive.Close()
	app.archive = nil
	return err
}
