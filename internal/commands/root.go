package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"marketstructure/config"
	"marketstructure/internal/history"
	"marketstructure/logger"
	"marketstructure/pkg/storage/postgres"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "analyzer",
	Short: "Market-structure analyzer",
	Long: `Tracks trading sessions, swing key levels and fair value gaps over a stream of
one-minute bars, composing 5m/15m/1h/4h/1d bars in process.

Bars come from a DAT_ASCII CSV file or Postgres (replay), or from the Bybit
public websocket (stream). The accumulated history is written as a JSON
document when the run ends.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// setup loads the configuration and builds the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// connectPostgres opens and migrates the database when it is enabled.
func connectPostgres(cfg *config.Config, log *zap.Logger) (*postgres.PostgresClient, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	log.Info("postgres connected", zap.String("dbname", cfg.Postgres.DBName))
	return client, nil
}

// historyStore writes to the history file and, with a database, also to the
// history table under the run id.
func historyStore(cfg *config.Config, db *postgres.PostgresClient) history.Store {
	file := history.FileStore{Path: cfg.Engine.HistoryFile}
	if db == nil {
		return file
	}
	return history.MultiStore{file, history.DBStore{DB: db, RunID: cfg.Engine.RunID}}
}
