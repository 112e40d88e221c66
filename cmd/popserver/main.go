package main

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
	"go.uber.org/zap/zapcore"

	"popstats/internal/analytics"
	"popstats/internal/dataset"
	"popstats/internal/server"
	"popstats/internal/store"
	"popstats/internal/store/sqlite"
	"popstats/internal/telemetry"
)

var (
	verbose  bool
	dbPath   string
	dataFile string

	logger *zap.Logger
	config server.Config
)

var rootCmd = &cobra.Command{
	Use:          "popserver",
	Short:        "Population API backed by the World Bank export",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		config, err = server.ConfigFromEnv()
		if err != nil {
			return err
		}
		if dbPath != "" {
			config.DBPath = dbPath
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a tab-separated population export into the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(config.DBPath) == "" {
			return errors.New("import needs a database (--db or POPSTATS_DB_PATH)")
		}
		st, err := openStore(config.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := dataset.Import(cmd.Context(), st, dataFile, logger)
		if err != nil {
			return err
		}
		fmt.Printf("import complete (countries=%d observations=%d)\n", stats.Countries, stats.Observations)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the population API",
	Long: `serve answers the population API from the database. Without a database
the data is held in memory and --file is loaded at startup.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		otelConfig, err := telemetry.ConfigFromEnv()
		if err != nil {
			return err
		}
		shutdown, err := telemetry.Setup(ctx, "popserver", otelConfig)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("tracing shutdown", zap.Error(err))
			}
		}()

		st, err := openStore(config.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		if dataFile != "" {
			if _, err := dataset.Import(ctx, st, dataFile, logger); err != nil {
				return err
			}
		} else if config.DBPath == "" {
			logger.Warn("serving an empty in-memory store; pass --file to load data")
		}

		srv, err := server.New(analytics.NewService(st, logger), config, logger)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite database path (default: POPSTATS_DB_PATH, empty keeps data in memory)")

	importCmd.Flags().StringVar(&dataFile, "file", "", "Tab-separated population export")
	_ = importCmd.MarkFlagRequired("file")
	serveCmd.Flags().StringVar(&dataFile, "file", "", "Export to load before serving")

	rootCmd.AddCommand(importCmd, serveCmd)
}

func openStore(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return store.NewMemoryStore(), nil
	}
	return sqlite.New(path)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "popserver:", err)
		os.Exit(1)
	}
}
