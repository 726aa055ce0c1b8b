package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/cookiegate/internal/consent/common/log"
	"github.com/haukened/cookiegate/internal/consent/domain"
	"github.com/haukened/cookiegate/internal/consent/gateways/cookies"
	"github.com/haukened/cookiegate/internal/consent/gateways/document"
	"github.com/haukened/cookiegate/internal/consent/gateways/httpapi"
	"github.com/haukened/cookiegate/internal/consent/gateways/loader"
	"github.com/haukened/cookiegate/internal/consent/repos/catalog"
	"github.com/haukened/cookiegate/internal/consent/services/gate"
	"github.com/haukened/cookiegate/internal/consent/services/report"
	"github.com/haukened/cookiegate/internal/consent/services/scanner"
)

var (
	errNotCompliant    = errors.New("cookie scan is not compliant")
	errArchiveDisabled = errors.New("archive is disabled, set archive.path")
)

// scanOptions builds scanner options from the configuration.
func (app *Application) scanOptions() scanner.Options {
	return scanner.Options{
		MaxValueLength: app.config.Scan.MaxValueLength,
		IgnoreNames:    app.config.Scan.IgnoreNames,
		IgnorePatterns: app.config.Scan.IgnorePatterns,
	}
}

// declared resolves service ids against the catalog.
func (app *Application) declared(ids []string) ([]domain.ServicePreset, error) {
	found, missing := app.catalog.Subset(ids)
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown service ids: %s", strings.Join(missing, ", "))
	}
	return found, nil
}

// consent returns the flag value when set, the configured consent otherwise.
func (app *Application) consent(cmd *cobra.Command, flag []string) (domain.ConsentState, error) {
	if cmd.Flags().Changed("consent") {
		return domain.ParseConsentState(flag)
	}
	return app.config.ConsentState()
}

func newScanCmd(get func() *Application) *cobra.Command {
	var (
		header    string
		declared  []string
		format    string
		locale    string
		quick     bool
		strict    bool
		noArchive bool
	)
	cmd := &cobra.Command{
		Use:   "scan [cookie-header]",
		Short: "Audit a cookie header against the declared services",
		Example: `  cookiegate scan "_ga=GA1.2.3; _hjid=abc" --declared google-analytics
  cookiegate scan --cookies "$(cat cookies.txt)" --format csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			if len(args) == 1 {
				header = args[0]
			}
			ids := app.config.Scan.Declared
			if cmd.Flags().Changed("declared") {
				ids = declared
			}
			presets, err := app.declared(ids)
			if err != nil {
				return err
			}

			sc := scanner.NewScanner(scanner.ScannerOptions{
				Source: cookies.Header(header),
				Clock:  app.clock,
				Logger: log.GetLogger(),
			})
			out := cmd.OutOrStdout()

			if quick {
				c := sc.QuickCheck(presets, app.catalog, app.scanOptions())
				if err := json.NewEncoder(out).Encode(c); err != nil {
					return err
				}
				if strict && !c.Compliant {
					return fmt.Errorf("%w: %d issues", errNotCompliant, c.Issues)
				}
				return nil
			}

			result := sc.Scan(presets, app.catalog, app.scanOptions())
			if app.archive != nil && !noArchive {
				id, err := app.archive.Put(result)
				if err != nil {
					return err
				}
				log.Info(map[string]any{"id": id, "issues": result.Summary.Issues}, "scan_archived")
			}

			if locale == "" {
				locale = app.config.Scan.Locale
			}
			if err := writeResult(out, result, format, locale); err != nil {
				return err
			}
			if strict && !result.Summary.Compliant {
				return fmt.Errorf("%w: %d issues", errNotCompliant, result.Summary.Issues)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&header, "cookies", "", "cookie header to scan")
	cmd.Flags().StringSliceVarP(&declared, "declared", "d", nil, "declared service ids (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or csv")
	cmd.Flags().StringVar(&locale, "locale", "", "report language (default from config)")
	cmd.Flags().BoolVar(&quick, "quick", false, "print only the compliance verdict")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the scan is not compliant")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "do not store the result in the archive")
	return cmd
}

func writeResult(w io.Writer, r domain.ScanResult, format, locale string) error {
	switch strings.ToLower(format) {
	case "text":
		_, err := io.WriteString(w, report.FormatText(r, locale))
		return err
	case "json":
		b, err := report.JSON(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "csv":
		_, err := w.Write(report.CSV(r))
		return err
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// readPage parses the HTML file at path, or stdin for "-".
func readPage(cmd *cobra.Command, path string, opts ...document.Option) (*document.Document, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return document.Parse(r, opts...)
}

func newGateCmd(get func() *Application) *cobra.Command {
	var consent []string
	cmd := &cobra.Command{
		Use:   "gate <page.html|->",
		Short: "Rewrite the scripts of a page that lack consent as blocked markup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			state, err := app.consent(cmd, consent)
			if err != nil {
				return err
			}
			doc, err := readPage(cmd, args[0])
			if err != nil {
				return err
			}
			g := gate.New(gate.Options{Document: doc, Resolver: app.catalog, Logger: log.GetLogger()})
			n := g.GateExisting(state.Allows)
			if err := doc.Render(cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "blocked %d scripts\n", n)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&consent, "consent", nil, "granted categories (default from config)")
	return cmd
}

func newUnblockCmd(get func() *Application) *cobra.Command {
	var (
		consent []string
		fetch   bool
	)
	cmd := &cobra.Command{
		Use:   "unblock <page.html|->",
		Short: "Release the blocked scripts of a page whose category is granted",
		Long: `Release the blocked scripts of a gated page whose category is granted.
With --fetch every released script is fetched and only scripts that load
are kept; a failed script stays blocked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			state, err := app.consent(cmd, consent)
			if err != nil {
				return err
			}
			var l document.Loader = loader.NopLoader{}
			if fetch {
				l = app.loader
			}
			ctx := cmd.Context()
			doc, err := readPage(cmd, args[0], document.WithLoader(l), document.WithContext(ctx))
			if err != nil {
				return err
			}

			g := gate.New(gate.Options{Document: doc, Resolver: app.catalog, Logger: log.GetLogger()})
			stderr := cmd.ErrOrStderr()
			rep := g.UnblockByConsent(ctx, state, func(serviceID string) {
				if serviceID == "" {
					serviceID = "inline"
				}
				fmt.Fprintf(stderr, "unblocked %s\n", serviceID)
			})
			doc.Wait()
			if err := doc.Render(cmd.OutOrStdout()); err != nil {
				return err
			}
			for _, f := range rep.Failed {
				fmt.Fprintf(stderr, "failed %s: %v\n", f.Resource.Source, f.Err)
			}
			if rep.Err != nil {
				return rep.Err
			}
			if len(rep.Failed) > 0 {
				return fmt.Errorf("%d scripts failed to load", len(rep.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&consent, "consent", nil, "granted categories (default from config)")
	cmd.Flags().BoolVar(&fetch, "fetch", false, "fetch released scripts over HTTP")
	return cmd
}

func newHistoryCmd(get func() *Application) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [scan-id]",
		Short: "List archived scans, or print one as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			if app.archive == nil {
				return errArchiveDisabled
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				r, ok, err := app.archive.Get(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("scan %s not found", args[0])
				}
				return writeResult(out, r, "json", "")
			}

			records, err := app.archive.List(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCANNED AT\tFOUND\tISSUES\tCOMPLIANT")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\n",
					rec.ID,
					rec.Result.Timestamp.UTC().Format(time.RFC3339),
					rec.Result.TotalFound,
					rec.Result.Summary.Issues,
					rec.Result.Summary.Compliant,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of scans to list, 0 for all")
	return cmd
}

func newCatalogCmd(get func() *Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the service catalog",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the services of the loaded catalog in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tDOMAINS\tCOOKIES")
			for _, p := range get().catalog.Presets() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Name, p.Category,
					strings.Join(p.Domains, ","),
					strings.Join(p.CookiePatterns, ","),
				)
			}
			return tw.Flush()
		},
	}

	validate := &cobra.Command{
		Use:   "validate <catalog-file>",
		Short: "Check a catalog file for errors and order-dependent patterns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}
			issues := catalog.Validate(presets)
			for _, i := range issues {
				fmt.Fprintln(cmd.OutOrStdout(), i.String())
			}
			if catalog.HasErrors(issues) {
				return fmt.Errorf("%s: catalog is invalid", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d services, %d warnings\n", args[0], len(presets), len(issues))
			return nil
		},
	}

	cmd.AddCommand(list, validate)
	return cmd
}

func newServeCmd(get func() *Application) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan and gate API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := get()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.Serve(ctx)
		},
	}
}

// Serve runs the HTTP API until ctx is cancelled.
func (app *Application) Serve(ctx context.Context) error {
	consent, err := app.config.ConsentState()
	if err != nil {
		return err
	}
	opts := httpapi.Options{
		Catalog:  app.catalog,
		Declared: app.config.Scan.Declared,
		Consent:  consent,
		Scan:     app.scanOptions(),
		Locale:   app.config.Scan.Locale,
		Clock:    app.clock,
		Logger:   log.GetLogger(),
	}
	if app.archive != nil {
		opts.Archive = app.archive
	}
	srv, err := httpapi.New(fmt.Sprintf(":%d", app.config.HTTP.Port), opts)
	if err != nil {
		return err
	}
	// Shutdown is driven below so it gets its own deadline.
	if err := srv.Start(context.Background()); err != nil {
		return err
	}
	log.Info(map[string]any{
		"version": version,
		"env":     app.config.Env,
		"address": srv.Address(),
	}, "cookiegate_serving")

	<-ctx.Done()
	log.Info(nil, "shutdown_initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "shutdown_incomplete")
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info(nil, "shutdown_complete")
	return nil
}
