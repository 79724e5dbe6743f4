package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/kthreads/internal/config"
	"github.com/me/kthreads/internal/logging"
	"github.com/me/kthreads/internal/store"
)

var (
	flagConfig    string
	flagServer    string
	flagDB        string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.SimConfig
	logger *slog.Logger
	client *Client
)

// defaultServer returns the default trace API URL, checking KTHREADS_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("KTHREADS_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the kthreads CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kthreads",
		Short: "Single-CPU kernel thread scheduler simulator",
		Long: `kthreads runs scripted scenarios on a simulated single-CPU kernel with
priority scheduling, priority donation, semaphores, locks and condition
variables, records every scheduling event, and serves the recordings.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(flagConfig); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("db") {
				cfg.DBPath = flagDB
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Trace API URL (or KTHREADS_SERVER env)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "Trace database path (default ~/.kthreads/kthreads.db)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "Log format (text, json, auto)")

	root.AddCommand(
		newRunCmd(),
		newSelfTestCmd(),
		newServeCmd(),
		newSessionsCmd(),
		newEventsCmd(),
	)

	return root
}

// openStore opens and migrates the trace database named by the config.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Debug("database ready", "path", dbPath)
	return st, nil
}
