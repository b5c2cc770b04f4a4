package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"marketstructure/internal/aggregation"

	"go.uber.org/zap"
)

// Bounds restricts a replay to base bars closing within [Start, End). A zero
// bound is open.
type Bounds struct {
	Start time.Time
	End   time.Time
}

func (b Bounds) contains(ts int64) (before, after bool) {
	if !b.Start.IsZero() && ts < b.Start.UnixNano() {
		return true, false
	}
	if !b.End.IsZero() && ts >= b.End.UnixNano() {
		return false, true
	}
	return false, false
}

// Stats summarizes a replay.
type Stats struct {
	BaseBars int // base bars taken from the source
	Bars     int // bars delivered to the sink, composites included
}

// Replay pulls base bars from src, composes coarser bars and delivers all of
// them to sink in order. It stops at the end of the source, at the first bar
// past the upper bound, on a sink error, or when ctx is cancelled.
func Replay(ctx context.Context, src Source, composer *aggregation.Composer, sink Sink,
	bounds Bounds, logger *zap.Logger) (Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var stats Stats

	for {
		b, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}

		before, after := bounds.contains(b.Timestamp)
		if before {
			continue
		}
		if after {
			break
		}
		stats.BaseBars++

		out, err := composer.Add(b)
		if err != nil {
			return stats, err
		}
		for _, ob := range out {
			if err := sink.OnBar(ob); err != nil {
				return stats, fmt.Errorf("deliver %s at %s: %w", ob.Type, ob.Time(), err)
			}
			stats.Bars++
		}

		if stats.BaseBars%100000 == 0 {
			logger.Info("replay progress", zap.Int("base_bars", stats.BaseBars), zap.Time("at", b.Time()))
		}
	}

	logger.Info("replay finished", zap.Int("base_bars", stats.BaseBars), zap.Int("bars", stats.Bars))
	return stats, nil
}
