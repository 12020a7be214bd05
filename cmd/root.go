// Package cmd holds the pnodedash command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pnodedash/config"
	"pnodedash/metrics"
	"pnodedash/services"
)

// app is the state shared by every subcommand, filled in before it runs.
type app struct {
	configPath  string
	logLevel    string
	snapshot    string
	snapshotURL string

	cfg    *config.Config
	logger *zap.Logger
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "pnodedash",
		Short: "Xandeum pNode analytics dashboard backend",
		Long: `pnodedash scores, ranks and aggregates pNode telemetry snapshots.

It serves the dashboard API, exports node tables as CSV or JSON and
validates files before they are imported.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "",
		"config file (default is $CONFIG_FILE or "+config.DefaultConfigPath+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.snapshot, "snapshot", "",
		"snapshot JSON file, overrides snapshot.path")
	root.PersistentFlags().StringVar(&a.snapshotURL, "snapshot-url", "",
		"snapshot API URL, overrides snapshot.url")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newValidateCmd(a))
	root.AddCommand(newVersionCmd())

	return root
}

func (a *app) init() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags override the config file and environment
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.snapshot != "" {
		cfg.Snapshot.Path = a.snapshot
		cfg.Snapshot.URL = ""
	}
	if a.snapshotURL != "" {
		cfg.Snapshot.URL = a.snapshotURL
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}

	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// snapshotSource picks the API source when a URL is configured, the file
// source otherwise.
func (a *app) snapshotSource() services.SnapshotSource {
	if a.cfg.Snapshot.URL != "" {
		return services.NewHTTPSnapshotSource(a.cfg.Snapshot.URL, a.cfg.SnapshotTimeoutDuration(),
			a.cfg.Snapshot.MaxRetries, a.logger)
	}
	return services.NewFileSnapshotSource(a.cfg.Snapshot.Path)
}

func (a *app) aggregator(m *metrics.Metrics) *services.DataAggregator {
	return services.NewDataAggregator(a.snapshotSource(), services.AggregatorOptions{
		FallbackLatestVersion: a.cfg.Scoring.FallbackLatestVersion,
		MinSupported:          a.cfg.Scoring.MinSupported,
		Deprecated:            a.cfg.Scoring.Deprecated,
		Metrics:               m,
		Logger:                a.logger,
	})
}

func writeOutput(cmd *cobra.Command, path, content string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
