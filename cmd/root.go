// Package cmd defines and implements the CLI commands for the hillwatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/app"
	"github.com/JakeFAU/hillwatch/internal/config"
	"github.com/JakeFAU/hillwatch/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can inject options.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "hillwatch",
		Short: "Track congressional bills in a local JSON store.",
		Long: `hillwatch ingests bills from the Congress.gov API in three resumable phases
(list, detail, committees) and keeps them in a single JSON file that
analysts annotate. Annotations are never overwritten by the pipeline.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// This hook runs BEFORE the subcommand's RunE. Config, logger and the
		// service container are built here and injected through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyOverrides(cmd, &cfg); err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment overrides use the HILLWATCH_ prefix")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

// applyOverrides copies explicitly set per-invocation flags onto cfg.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if f := flags.Lookup("types"); f != nil && f.Changed {
		types, err := flags.GetStringSlice("types")
		if err != nil {
			return fmt.Errorf("read --types: %w", err)
		}
		cfg.Pipeline.BillTypes = cfg.Pipeline.BillTypes[:0]
		for _, t := range types {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				cfg.Pipeline.BillTypes = append(cfg.Pipeline.BillTypes, t)
			}
		}
	}
	if f := flags.Lookup("workers"); f != nil && f.Changed {
		workers, err := flags.GetInt("workers")
		if err != nil {
			return fmt.Errorf("read --workers: %w", err)
		}
		cfg.Pipeline.Workers = workers
	}
	if f := flags.Lookup("limit"); f != nil && f.Changed {
		limit, err := flags.GetInt("limit")
		if err != nil {
			return fmt.Errorf("read --limit: %w", err)
		}
		cfg.Pipeline.Limit = limit
	}
	if f := flags.Lookup("qps"); f != nil && f.Changed {
		qps, err := flags.GetFloat64("qps")
		if err != nil {
			return fmt.Errorf("read --qps: %w", err)
		}
		cfg.Pipeline.QPS = qps
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. It exits non-zero when the command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
