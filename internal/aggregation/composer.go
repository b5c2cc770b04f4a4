package aggregation

import (
	"fmt"

	"marketstructure/internal/bar"
	"marketstructure/internal/timeframe"

	"github.com/shopspring/decimal"
)

// Composer builds coarser bars from base 1-minute bars. Bar timestamps are
// close times; buckets are aligned to the UTC epoch, so daily bars close at
// midnight UTC.
type Composer struct {
	registry *timeframe.Registry
	targets  []timeframe.Timeframe
	builders map[timeframe.Timeframe]*builder
}

type builder struct {
	active bool
	end    int64
	open   decimal.Decimal
	high   decimal.Decimal
	low    decimal.Decimal
	close  decimal.Decimal
	volume decimal.Decimal
}

func NewComposer(registry *timeframe.Registry) *Composer {
	c := &Composer{
		registry: registry,
		builders: make(map[timeframe.Timeframe]*builder),
	}
	for _, tf := range timeframe.All() {
		if tf == timeframe.Base {
			continue
		}
		c.targets = append(c.targets, tf)
		c.builders[tf] = &builder{}
	}
	return c
}

// Add consumes one base bar and returns the bars now closed: buckets left
// behind by a gap in the feed first, then the base bar itself, then every
// composite that closes exactly at its timestamp, finest first.
func (c *Composer) Add(b bar.Bar) ([]bar.Bar, error) {
	if want := c.registry.BarType(timeframe.Base); b.Type != want {
		return nil, fmt.Errorf("composer accepts %s bars, got %s", want, b.Type)
	}

	var out []bar.Bar
	for _, tf := range c.targets {
		bl := c.builders[tf]
		if bl.active && bucketEnd(b.Timestamp, tf) != bl.end {
			out = append(out, bl.emit(c.registry.BarType(tf)))
		}
	}

	out = append(out, b)

	for _, tf := range c.targets {
		bl := c.builders[tf]
		end := bucketEnd(b.Timestamp, tf)
		if !bl.active {
			bl.start(b, end)
		} else {
			bl.update(b)
		}
		if b.Timestamp == end {
			out = append(out, bl.emit(c.registry.BarType(tf)))
		}
	}
	return out, nil
}

// bucketEnd rounds a close time up to the end of its tf bucket.
func bucketEnd(ts int64, tf timeframe.Timeframe) int64 {
	d := tf.Duration().Nanoseconds()
	q := ts / d
	if ts%d != 0 {
		q++
	}
	return q * d
}

func (bl *builder) start(b bar.Bar, end int64) {
	bl.active = true
	bl.end = end
	bl.open = b.Open
	bl.high = b.High
	bl.low = b.Low
	bl.close = b.Close
	bl.volume = b.Volume
}

func (bl *builder) update(b bar.Bar) {
	if b.High.GreaterThan(bl.high) {
		bl.high = b.High
	}
	if b.Low.LessThan(bl.low) {
		bl.low = b.Low
	}
	bl.close = b.Close
	bl.volume = bl.volume.Add(b.Volume)
}

func (bl *builder) emit(barType string) bar.Bar {
	bl.active = false
	return bar.Bar{
		Type:      barType,
		Open:      bl.open,
		High:      bl.high,
		Low:       bl.low,
		Close:     bl.close,
		Volume:    bl.volume,
		Timestamp: bl.end,
	}
}
