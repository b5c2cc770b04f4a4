package keylevel

import (
	"marketstructure/internal/bar"
	"marketstructure/internal/timeframe"
)

// Detector recognizes swing highs and lows from the last two closed bars of a
// timeframe and accumulates them into the current day's Levels.
type Detector struct {
	prev   map[timeframe.Timeframe]bar.Bar
	levels *Levels
}

func NewDetector() *Detector {
	return &Detector{
		prev:   make(map[timeframe.Timeframe]bar.Bar),
		levels: NewLevels(),
	}
}

// Levels returns the live working set. Callers must not retain it across Rollover.
func (d *Detector) Levels() *Levels {
	return d.levels
}

// Observe feeds a closed 1-hour or 4-hour bar and returns the levels it produced.
// The first bar of a timeframe only primes the comparison.
func (d *Detector) Observe(tf timeframe.Timeframe, b bar.Bar) []KeyLevel {
	prev, ok := d.prev[tf]
	d.prev[tf] = b
	if !ok {
		return nil
	}

	var highs, lows *[]KeyLevel
	var highName, lowName string
	switch tf {
	case timeframe.OneHour:
		highs, lows = &d.levels.Hour1High, &d.levels.Hour1Low
		highName, lowName = NameHour1High, NameHour1Low
	case timeframe.FourHour:
		highs, lows = &d.levels.Hour4High, &d.levels.Hour4Low
		highName, lowName = NameHour4High, NameHour4Low
	default:
		return nil
	}

	var out []KeyLevel
	if bar.IsSwingHigh(prev, b) {
		src := bar.MaxHigh(prev, b)
		lvl := KeyLevel{Price: src.High, Name: highName, Timestamp: src.Timestamp, ObservedTimeframe: tf}
		*highs = append(*highs, lvl)
		out = append(out, lvl)
	}
	if bar.IsSwingLow(prev, b) {
		src := bar.MinLow(prev, b)
		lvl := KeyLevel{Price: src.Low, Name: lowName, Timestamp: src.Timestamp, ObservedTimeframe: tf}
		*lows = append(*lows, lvl)
		out = append(out, lvl)
	}
	return out
}

// Rollover closes the current day on a daily bar. It returns the finished
// day's Levels and starts a fresh set whose PDH and PDL come from daily, the
// bar that just closed the previous day.
func (d *Detector) Rollover(daily bar.Bar) *Levels {
	finished := d.levels
	d.levels = &Levels{
		PrevDayHigh: &KeyLevel{
			Price:             daily.High,
			Name:              NamePrevDayHigh,
			Timestamp:         daily.Timestamp,
			ObservedTimeframe: timeframe.OneDay,
		},
		PrevDayLow: &KeyLevel{
			Price:             daily.Low,
			Name:              NamePrevDayLow,
			Timestamp:         daily.Timestamp,
			ObservedTimeframe: timeframe.OneDay,
		},
	}

	return finished
}
