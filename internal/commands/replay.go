package commands

import (
	"context"
	"fmt"

	"marketstructure/internal/aggregation"
	"marketstructure/internal/bar"
	"marketstructure/internal/engine"
	"marketstructure/internal/feed"
	"marketstructure/internal/stream"
	"marketstructure/internal/timeframe"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	replayCSV     string
	replayFromDB  bool
	replayHistory string
	replayStart   string
	replayEnd     string
	replayResume  bool
	replayRecord  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay historical one-minute bars through the engine",
	Long: `Replay historical one-minute bars through the engine and write the history.

Examples:
  # Replay a histdata.com export
  analyzer replay --csv data/DAT_ASCII_GBPUSD_M1_2000.csv --history out/history.json

  # Replay one month of bars stored in Postgres
  analyzer replay --from-db --start 2000-06-01 --end 2000-07-01

  # Load bars into Postgres while replaying a CSV
  analyzer replay --csv data/DAT_ASCII_GBPUSD_M1_2000.csv --record`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayCSV, "csv", "", "DAT_ASCII one-minute file (overrides feed.csv_path)")
	replayCmd.Flags().BoolVar(&replayFromDB, "from-db", false, "read bars from Postgres instead of a CSV file")
	replayCmd.Flags().StringVar(&replayHistory, "history", "", "history output file (overrides engine.history_file)")
	replayCmd.Flags().StringVar(&replayStart, "start", "", "first bar close time, inclusive (RFC3339 or YYYY-MM-DD)")
	replayCmd.Flags().StringVar(&replayEnd, "end", "", "last bar close time, exclusive (RFC3339 or YYYY-MM-DD)")
	replayCmd.Flags().BoolVar(&replayResume, "resume", false, "start from the previously saved history")
	replayCmd.Flags().BoolVar(&replayRecord, "record", false, "store replayed one-minute bars in Postgres")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if replayCSV != "" {
		cfg.Feed.CSVPath = replayCSV
	}
	if replayFromDB {
		cfg.Feed.Source = "postgres"
		cfg.Postgres.Enabled = true
	}
	if replayRecord {
		cfg.Postgres.Enabled = true
	}
	if replayHistory != "" {
		cfg.Engine.HistoryFile = replayHistory
	}
	if replayStart != "" {
		cfg.Feed.Start = replayStart
	}
	if replayEnd != "" {
		cfg.Feed.End = replayEnd
	}

	start, end, err := cfg.Feed.Bounds()
	if err != nil {
		return err
	}

	db, err := connectPostgres(cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	store := historyStore(cfg, db)

	eng, err := engine.New(cfg.Engine, log)
	if err != nil {
		return err
	}
	if replayResume {
		if err := eng.LoadHistory(context.Background(), store); err != nil {
			log.Warn("starting with an empty history", zap.Error(err))
		}
	}

	reg := eng.Registry()
	baseType := reg.BarType(timeframe.Base)

	var src feed.Source
	switch cfg.Feed.Source {
	case "csv":
		if cfg.Feed.CSVPath == "" {
			return fmt.Errorf("no csv file: set feed.csv_path or --csv")
		}
		csvSrc, err := feed.NewCSVSource(cfg.Feed.CSVPath, baseType, log)
		if err != nil {
			return err
		}
		defer func() {
			if n := csvSrc.Skipped(); n > 0 {
				log.Warn("malformed rows skipped", zap.Int("rows", n))
			}
		}()
		src = csvSrc
	case "postgres":
		if db == nil {
			return fmt.Errorf("feed.source postgres requires postgres.enabled")
		}
		src = feed.NewDBSource(db, reg.Instrument(), timeframe.Base.String(), baseType, start, end)
	default:
		return fmt.Errorf("unknown feed.source %q", cfg.Feed.Source)
	}
	defer src.Close()

	var sink feed.Sink = eng
	if replayRecord && cfg.Feed.Source != "postgres" {
		sink = feed.SinkFunc(func(b bar.Bar) error {
			if b.Type == baseType {
				stream.Record(log, db, reg.Instrument(), timeframe.Base.String(), b)
			}
			return eng.OnBar(b)
		})
	}

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("replay started",
		zap.String("source", cfg.Feed.Source),
		zap.String("instrument", reg.Instrument()),
		zap.Time("start", start),
		zap.Time("end", end))

	_, replayErr := feed.Replay(ctx, src, aggregation.NewComposer(reg), sink, feed.Bounds{Start: start, End: end}, log)
	if replayErr != nil && ctx.Err() == nil {
		return replayErr
	}
	if replayErr != nil {
		log.Info("replay interrupted")
	}

	return eng.Shutdown(context.Background(), store)
}
