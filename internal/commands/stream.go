package commands

import (
	"context"

	"marketstructure/internal/collector"
	"marketstructure/internal/engine"
	"marketstructure/internal/stream"
	"marketstructure/pkg/bybit"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var streamResume bool

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Analyze live Bybit one-minute klines",
	Long: `Backfill recent klines over REST, then follow the Bybit public websocket.
The history is saved when the process receives SIGINT or SIGTERM.`,
	RunE: runStream,
}

func init() {
	streamCmd.Flags().BoolVar(&streamResume, "resume", false, "start from the previously saved history")
	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := connectPostgres(cfg, log)
	if err != nil {
		return err
	}
	var recorder stream.BarRecorder
	if db != nil {
		defer db.Close()
		recorder = db
	}
	store := historyStore(cfg, db)

	eng, err := engine.New(cfg.Engine, log)
	if err != nil {
		return err
	}
	if streamResume {
		if err := eng.LoadHistory(context.Background(), store); err != nil {
			log.Warn("starting with an empty history", zap.Error(err))
		}
	}

	rest := bybit.NewRESTClient(cfg.Bybit.REST.BaseURL, cfg.Bybit.REST.Timeout)
	c := collector.New(cfg.Bybit, eng, rest, recorder, log)

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("stream started", zap.String("symbol", cfg.Bybit.Symbol), zap.String("instrument", eng.Registry().Instrument()))
	runErr := c.Run(ctx)
	if runErr != nil {
		log.Error("collector stopped", zap.Error(runErr))
	}

	if err := eng.Shutdown(context.Background(), store); err != nil {
		return err
	}
	return runErr
}
