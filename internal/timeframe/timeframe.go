package timeframe

import (
	"fmt"
	"time"
)

// Timeframe is a supported bar granularity, identified by its label (e.g. "1-HOUR").
type Timeframe string

// Source tells whether bars of a timeframe come from the feed or are composed in-process.
type Source string

const (
	SourceExternal Source = "EXTERNAL"
	SourceInternal Source = "INTERNAL"
)

const (
	OneMinute     Timeframe = "1-MINUTE"
	FiveMinute    Timeframe = "5-MINUTE"
	FifteenMinute Timeframe = "15-MINUTE"
	OneHour       Timeframe = "1-HOUR"
	FourHour      Timeframe = "4-HOUR"
	OneDay        Timeframe = "1-DAY"
)

// Base is the granularity every composite timeframe is built from.
const Base = OneMinute

// Meta holds the derived attributes of a timeframe.
type Meta struct {
	Label    string
	Short    string
	Duration time.Duration
	Source   Source
}

var ordered = []Timeframe{OneMinute, FiveMinute, FifteenMinute, OneHour, FourHour, OneDay}

var validTimeframes = map[Timeframe]Meta{
	OneMinute:     {Label: "1-MINUTE", Short: "1m", Duration: time.Minute, Source: SourceExternal},
	FiveMinute:    {Label: "5-MINUTE", Short: "5m", Duration: 5 * time.Minute, Source: SourceInternal},
	FifteenMinute: {Label: "15-MINUTE", Short: "15m", Duration: 15 * time.Minute, Source: SourceInternal},
	OneHour:       {Label: "1-HOUR", Short: "1h", Duration: time.Hour, Source: SourceInternal},
	FourHour:      {Label: "4-HOUR", Short: "4h", Duration: 4 * time.Hour, Source: SourceInternal},
	OneDay:        {Label: "1-DAY", Short: "1d", Duration: 24 * time.Hour, Source: SourceInternal},
}

// All returns every supported timeframe, finest first.
func All() []Timeframe {
	out := make([]Timeframe, len(ordered))
	copy(out, ordered)
	return out
}

// IsValid checks if the Timeframe is one of the predefined granularities
func (t Timeframe) IsValid() bool {
	_, ok := validTimeframes[t]
	return ok
}

func (t Timeframe) Duration() time.Duration {
	return validTimeframes[t].Duration
}

func (t Timeframe) String() string {
	return string(t)
}

// Parse accepts either the label ("1-HOUR") or the short form ("1h").
func Parse(s string) (Timeframe, error) {
	if tf := Timeframe(s); tf.IsValid() {
		return tf, nil
	}
	for _, tf := range ordered {
		if validTimeframes[tf].Short == s {
			return tf, nil
		}
	}
	return "", fmt.Errorf("invalid timeframe: %s", s)
}

// BarType returns the canonical identity for bars of this timeframe, e.g.
// "GBP/USD.SIM-1-HOUR-LAST-INTERNAL".
func (t Timeframe) BarType(instrument string) string {
	return fmt.Sprintf("%s-%s-LAST-%s", instrument, t, validTimeframes[t].Source)
}

// CompositeBarType returns the identity of the subscription that composes this
// timeframe from the base granularity.
func (t Timeframe) CompositeBarType(instrument string) string {
	return fmt.Sprintf("%s-%s-LAST-%s@%s-%s", instrument, t, SourceInternal, Base, SourceExternal)
}
