package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"popstats/internal/analytics"
	"popstats/internal/gateway"
	"popstats/internal/gateway/popapi"
	"popstats/internal/profile"
	"popstats/internal/store/sqlite"
	"popstats/internal/telemetry"
)

var (
	verbose     bool
	profilePath string
	dbPath      string
	outDir      string

	logger   *zap.Logger
	settings *profile.Profile
	source   gateway.Gateway
	closers  []func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "popview",
	Short: "Population statistics views on the command line",
	Long: `popview renders the population dashboard, comparison and country views
as JSON, reading from the population API or from a local database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		settings, err = profile.Load(profilePath)
		if err != nil {
			return err
		}
		if outDir == "" {
			outDir = settings.OutputDir
		}

		otelConfig, err := telemetry.ConfigFromEnv()
		if err != nil {
			return err
		}
		shutdown, err := telemetry.Setup(cmd.Context(), "popview", otelConfig)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			closers = append(closers, shutdown)
		}

		source, err = openSource(dbPath)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return cleanup(context.Background())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "popview.yaml", "View profile (YAML); missing file means defaults")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Read from a local sqlite database instead of the API")
	rootCmd.PersistentFlags().StringVar(&outDir, "out", "", "Write <command>.json into this directory instead of stdout")

	rootCmd.AddCommand(countriesCmd, compareCmd, dashboardCmd, trendsCmd)
}

// openSource returns the API client, or an in-process service over a
// sqlite file when path is set.
func openSource(path string) (gateway.Gateway, error) {
	if strings.TrimSpace(path) == "" {
		cfg, err := popapi.ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return popapi.NewWithConfig(cfg, popapi.WithLogger(logger))
	}

	st, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func(context.Context) error { return st.Close() })
	return analytics.NewService(st, logger), nil
}

func cleanup(ctx context.Context) error {
	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closers = nil
	if logger != nil {
		_ = logger.Sync()
	}
	return firstErr
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		_ = cleanup(context.Background())
		fmt.Fprintln(os.Stderr, "popview:", err)
		os.Exit(1)
	}
}
