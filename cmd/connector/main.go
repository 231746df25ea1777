// Package main provides the CLI entry point for the Panopto index connector.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bschlintz/panopto-index-connector/internal/config"
	"github.com/bschlintz/panopto-index-connector/internal/logging"
	"github.com/bschlintz/panopto-index-connector/internal/metrics"
	"github.com/bschlintz/panopto-index-connector/internal/panopto"
	"github.com/bschlintz/panopto-index-connector/internal/server"
	"github.com/bschlintz/panopto-index-connector/internal/state"
	"github.com/bschlintz/panopto-index-connector/internal/syncer"
	"github.com/bschlintz/panopto-index-connector/internal/target"

	_ "github.com/lib/pq"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

var (
	// Global flags
	verbose bool
	quiet   bool

	// Run command flags
	dryRun bool
	once   bool

	// Build information (set via ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitRuntimeError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "panopto-connector",
	Short: "Panopto index connector - sync Panopto video metadata into a search index",
	Long: `The Panopto index connector polls the Panopto search-index-sync API
and keeps an external search index up to date with video additions,
updates, and deletions.

Examples:
  # Validate a configuration file
  panopto-connector validate config.yml

  # Run the sync loop
  panopto-connector run config.yml

  # Sync once and exit, without touching the target
  panopto-connector run --once --dry-run config.yml`,
}

var validateCmd = &cobra.Command{
	Use:   "validate <config-file>",
	Short: "Validate a connector configuration file",
	Long: `Validate a connector configuration file.

Exit codes:
  0 - Configuration is valid
  1 - Validation errors (unknown keys, missing keys, bad values)
  2 - Parse errors (invalid YAML syntax)`,
	Args: cobra.ExactArgs(1),
	Run:  runValidate,
}

var runCmd = &cobra.Command{
	Use:   "run <config-file>",
	Short: "Run the connector sync loop",
	Long: `Run the connector against the configured Panopto site and target.

The configuration file is validated first; the sync loop only starts
from a valid configuration.

Exit codes:
  0 - Connector stopped cleanly
  1 - Validation errors
  2 - Parse errors
  3 - Runtime errors`,
	Args: cobra.ExactArgs(1),
	Run:  runConnector,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version, commit hash, and build date information.",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log index operations instead of sending them to the target")
	runCmd.Flags().BoolVar(&once, "once", false, "Run a single sync cycle and exit")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration and exits with the appropriate code
// on failure.
func loadConfig(path string) config.ConnectorConfig {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg
	}

	var parseErr *config.ParseError
	if errors.As(err, &parseErr) {
		fmt.Fprintf(os.Stderr, "✗ %v\n", parseErr)
		os.Exit(ExitParseError)
	}

	fmt.Fprintf(os.Stderr, "✗ %v\n", err)
	os.Exit(ExitValidationError)
	panic("unreachable")
}

func runValidate(_ *cobra.Command, args []string) {
	configPath := args[0]

	if !quiet {
		fmt.Printf("Validating configuration: %s\n", configPath)
	}

	cfg := loadConfig(configPath)

	if !quiet {
		fmt.Println("✓ Configuration is valid")

		if verbose {
			fmt.Printf("  Panopto site: %s\n", cfg.PanoptoSiteAddress)
			fmt.Printf("  Target: %s (%s)\n", cfg.TargetAddress, cfg.TargetImplementation)
			fmt.Printf("  Field mappings: %d\n", cfg.FieldMapping.Len())
		}
	}

	os.Exit(ExitSuccess)
}

func runConnector(_ *cobra.Command, args []string) {
	cfg := loadConfig(args[0])

	if verbose {
		cfg.Logging.Level = slog.LevelDebug
	} else if quiet {
		cfg.Logging.Level = slog.LevelError
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logging.Bootstrap().Error("failed to init logger", "error", err)
		os.Exit(ExitRuntimeError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("connector failed", "error", err)
		os.Exit(ExitRuntimeError)
	}

	os.Exit(ExitSuccess)
}

func run(ctx context.Context, cfg config.ConnectorConfig, logger *slog.Logger) error {
	logger.Info("starting panopto index connector",
		"site", cfg.PanoptoSiteAddress,
		"target", cfg.TargetImplementation,
		"dry_run", dryRun,
	)

	collector, err := metrics.NewSyncCollector()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, cleanup, err := newStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	implementation := cfg.TargetImplementation
	if dryRun {
		implementation = target.DebugName
	}

	handler, err := target.New(implementation, target.Options{
		Address:  cfg.TargetAddress,
		Username: cfg.TargetCredentials.Username,
		Password: cfg.TargetCredentials.Password,
		Mapping:  cfg.FieldMapping,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("init target: %w", err)
	}

	api := panopto.NewClient(cfg.PanoptoSiteAddress, cfg.PanoptoOAuthCredentials, logger)
	engine := syncer.NewEngine(api, handler, store, logger, collector, cfg.Polling)

	var admin *server.Server
	if cfg.Server.Port != "" {
		admin = server.New(cfg.Server, logger, server.NewAdminMux(collector.Handler()))
		go func() {
			if err := admin.Start(); err != nil {
				logger.Error("admin server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Error("admin server shutdown failed", "error", err)
			}
		}()
	}

	if once {
		return engine.RunOnce(ctx)
	}
	return engine.Run(ctx)
}

// newStateStore builds the checkpoint store selected by the configuration.
// The returned cleanup closes any underlying database connection.
func newStateStore(ctx context.Context, cfg config.ConnectorConfig, logger *slog.Logger) (state.Store, func(), error) {
	noop := func() {}

	switch cfg.State.Backend {
	case config.StateBackendPostgres:
		db, err := sql.Open("postgres", cfg.State.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open checkpoint database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("ping checkpoint database: %w", err)
		}

		store := state.NewPostgresStore(db, cfg.TargetImplementation)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("ensure checkpoint schema: %w", err)
		}

		logger.Info("using postgres checkpoint store")
		return store, func() { db.Close() }, nil

	default:
		if cfg.State.Path != "" {
			store := state.NewFileStoreAt(cfg.State.Path)
			logger.Info("using file checkpoint store", "path", store.Path())
			return store, noop, nil
		}

		store, err := state.NewFileStore(cfg.TargetImplementation)
		if err != nil {
			return nil, noop, fmt.Errorf("init checkpoint file: %w", err)
		}
		logger.Info("using file checkpoint store", "path", store.Path())
		return store, noop, nil
	}
}
