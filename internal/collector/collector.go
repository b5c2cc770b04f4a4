package collector

import (
	"context"
	"fmt"
	"time"

	"marketstructure/config"
	"marketstructure/internal/aggregation"
	"marketstructure/internal/bar"
	"marketstructure/internal/engine"
	"marketstructure/internal/stream"
	"marketstructure/internal/timeframe"
	"marketstructure/pkg/bybit"

	"go.uber.org/zap"
)

const statusInterval = time.Minute

// KlineFetcher is the REST call used for the backfill.
type KlineFetcher interface {
	GetKlines(ctx context.Context, category, symbol string, interval bybit.KlineInterval,
		start, end time.Time) ([]bybit.Kline, error)
}

// Collector feeds live Bybit one-minute klines through the composer into the
// engine. Only the goroutine running Run touches the engine.
type Collector struct {
	cfg      config.BybitConfig
	engine   *engine.Engine
	composer *aggregation.Composer
	rest     KlineFetcher
	recorder stream.BarRecorder
	logger   *zap.Logger

	instrument string
	baseType   string
	bars       chan bar.Bar
	last       int64
}

// New builds a collector for eng. recorder may be nil.
func New(cfg config.BybitConfig, eng *engine.Engine, rest KlineFetcher, recorder stream.BarRecorder,
	logger *zap.Logger) *Collector {
	reg := eng.Registry()
	return &Collector{
		cfg:        cfg,
		engine:     eng,
		composer:   aggregation.NewComposer(reg),
		rest:       rest,
		recorder:   recorder,
		logger:     logger.Named("collector"),
		instrument: reg.Instrument(),
		baseType:   reg.BarType(timeframe.Base),
		bars:       make(chan bar.Bar, 256),
	}
}

// Run backfills recent history over REST, then streams until ctx is cancelled.
// It returns nil on cancellation and the first engine error otherwise.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.Backfill(ctx, time.Now()); err != nil {
		return err
	}

	topic := bybit.Interval1Min.Topic(c.cfg.Symbol)
	ws := bybit.NewWSClient(c.cfg.WS.URL, []string{topic}, c.cfg.WS.Timeout, c.logger)
	ws.SetMessageHandler(stream.MakeMessageHandler(c.logger, stream.Options{
		Instrument: c.instrument,
		BarType:    c.baseType,
		Timeframe:  timeframe.Base.String(),
		Recorder:   c.recorder,
		Emit: func(b bar.Bar) {
			select {
			case c.bars <- b:
			case <-ctx.Done():
			}
		},
	}))
	if err := ws.Connect(ctx); err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	go ws.Listen(ctx)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-c.bars:
			if err := c.ingest(b); err != nil {
				return err
			}
		case <-ticker.C:
			c.logger.Info("current bars in window", zap.Int("count", c.engine.BarCount()))
		}
	}
}

// Backfill replays the configured duration of closed klines ending at now.
func (c *Collector) Backfill(ctx context.Context, now time.Time) error {
	if c.cfg.Backfill <= 0 {
		return nil
	}
	end := now.UTC().Truncate(time.Minute)
	start := end.Add(-c.cfg.Backfill)

	klines, err := c.rest.GetKlines(ctx, c.cfg.Category, c.cfg.Symbol, bybit.Interval1Min, start, end)
	if err != nil {
		return fmt.Errorf("backfill klines: %w", err)
	}

	var n int
	for _, k := range klines {
		if !k.Confirm {
			continue
		}
		b, err := stream.ToBar(k, c.baseType)
		if err != nil {
			c.logger.Warn("skipping backfill kline", zap.Error(err))
			continue
		}
		if c.recorder != nil {
			stream.Record(c.logger, c.recorder, c.instrument, timeframe.Base.String(), b)
		}
		if err := c.ingest(b); err != nil {
			return err
		}
		n++
	}
	c.logger.Info("backfill completed", zap.Int("bars", n), zap.Time("from", start), zap.Time("to", end))
	return nil
}

// ingest drops bars already seen, which happens where the backfill and the
// stream overlap, and routes the rest through the composer into the engine.
func (c *Collector) ingest(b bar.Bar) error {
	if b.Timestamp <= c.last {
		return nil
	}
	c.last = b.Timestamp

	out, err := c.composer.Add(b)
	if err != nil {
		return err
	}
	for _, ob := range out {
		if err := c.engine.OnBar(ob); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	}
	return nil
}
