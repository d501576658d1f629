/*
main.go - Application entry point

PURPOSE:
  Command-line entry point for the building ledger. Loads configuration,
  opens the record store and runs one of the subcommands.

COMMANDS:
  serve    Start the HTTP API (default sqlite store, :8080)
  seed     Reset the store and load a demo scenario
  report   Render one period's settlement report to a file or stdout

CONFIGURATION:
  Defaults, then --config YAML, then BUILDING_LEDGER_* environment
  variables (a .env file is read first), then flags. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the drift auditor
  4. Close the database connection

EXAMPLES:
  # Run with the default file database
  building-ledger serve

  # Run against PostgreSQL
  building-ledger serve --db-driver=postgres --db-dsn="postgres://ledger@localhost/ledger"

  # Load the demo building into an sqlite file, then export March
  building-ledger seed small-building --db-dsn=./demo.db
  building-ledger report --db-dsn=./demo.db --period=2025-03 --format=xlsx

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/building-ledger/api"
	"github.com/warp/building-ledger/billing"
	"github.com/warp/building-ledger/config"
	"github.com/warp/building-ledger/export"
	"github.com/warp/building-ledger/metrics"
	"github.com/warp/building-ledger/store/postgres"
	"github.com/warp/building-ledger/store/sqlite"
	"github.com/warp/building-ledger/store/sqlstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags override the loaded configuration when set.
type globalFlags struct {
	configPath string
	port       int
	dbDriver   string
	dbDSN      string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "building-ledger",
		Short:         "Building billing and financial reconciliation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file")
	root.PersistentFlags().IntVar(&flags.port, "port", 0, "HTTP server port")
	root.PersistentFlags().StringVar(&flags.dbDriver, "db-driver", "", "record store driver (sqlite|postgres)")
	root.PersistentFlags().StringVar(&flags.dbDSN, "db-dsn", "", "database path or connection string")

	root.AddCommand(
		serveCmd(flags),
		seedCmd(flags),
		reportCmd(flags),
	)
	return root
}

func (f *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.dbDriver != "" {
		cfg.Database.Driver = f.dbDriver
	}
	if f.dbDSN != "" {
		cfg.Database.DSN = f.dbDSN
	}
	return cfg, cfg.Validate()
}

// openStore opens the configured record store, creating the sqlite
// directory when needed.
func openStore(ctx context.Context, cfg config.Config) (*sqlstore.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.Database.DSN)
	default:
		if cfg.Database.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		return sqlite.New(cfg.Database.DSN)
	}
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := log.New(os.Stdout, "[building-ledger] ", log.LstdFlags)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	opts := []billing.Option{billing.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		metrics.Init(store.DB(), logger)
		opts = append(opts, billing.WithObserver(metrics.Observer{}))
	}
	engine := billing.NewEngineFromStore(store, opts...)

	handler := api.NewHandler(engine, store)
	handler.DefaultPageSize = cfg.Billing.DefaultPageSize
	handler.MaxPageSize = cfg.Billing.MaxPageSize
	handler.Logger = logger

	auditor := api.NewDriftAuditor(engine, store)
	auditor.CheckInterval = cfg.Audit.Interval
	auditor.Enabled = cfg.Audit.Enabled
	auditor.Logger = logger
	handler.Auditor = auditor

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("Server starting on http://localhost%s (%s store)", cfg.Addr(), cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	auditor.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		auditor.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		auditor.Stop()
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	auditor.Stop()

	logger.Println("Server stopped")
	return nil
}

// =============================================================================
// SEED
// =============================================================================

func seedCmd(flags *globalFlags) *cobra.Command {
	var ids []string
	for _, s := range api.Scenarios() {
		ids = append(ids, s.ID)
	}

	return &cobra.Command{
		Use:       "seed <scenario>",
		Short:     "Reset the store and load a demo scenario",
		Long:      fmt.Sprintf("Reset the store and load a demo scenario. Available: %v", ids),
		Args:      cobra.ExactArgs(1),
		ValidArgs: ids,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			engine := billing.NewEngineFromStore(store, billing.WithLogger(log.New(cmd.ErrOrStderr(), "", log.LstdFlags)))
			if err := api.SeedScenario(ctx, engine, store, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded scenario %s into %s\n", args[0], cfg.Database.DSN)
			return nil
		},
	}
}

// =============================================================================
// REPORT
// =============================================================================

func reportCmd(flags *globalFlags) *cobra.Command {
	var period, format, out string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a settlement report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if period == "" {
				periods, err := store.Periods(ctx)
				if err != nil {
					return err
				}
				if len(periods) == 0 {
					return errors.New("no billing periods on record; pass --period")
				}
				period = periods[0]
			}

			engine := billing.NewEngineFromStore(store, billing.WithLogger(log.New(cmd.ErrOrStderr(), "", log.LstdFlags)))
			report, err := engine.SettlementReport(ctx, period)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), report, format, out)
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "billing period (default: latest on record)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json, xlsx or pdf")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout for json, settlement-<period>.<format> otherwise)")
	return cmd
}

func writeReport(stdout io.Writer, report billing.SettlementReport, format, out string) error {
	var body []byte
	var err error
	switch format {
	case "json":
		body, err = json.MarshalIndent(report, "", "  ")
		body = append(body, '\n')
	case export.FormatXLSX:
		body, err = export.SettlementXLSX(report)
	case export.FormatPDF:
		body, err = export.SettlementPDF(report)
	default:
		return fmt.Errorf("unknown format %q (want json, xlsx or pdf)", format)
	}
	if err != nil {
		return err
	}

	if out == "" {
		if format == "json" {
			_, err = stdout.Write(body)
			return err
		}
		out = export.Filename(report.Period, format)
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", out)
	return nil
}
