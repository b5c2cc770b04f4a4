package confluence

import (
	"marketstructure/internal/bar"
	"marketstructure/internal/timeframe"

	"github.com/shopspring/decimal"
)

// GapType is the direction of a fair value gap.
type GapType string

const (
	Bullish GapType = "BULLISH"
	Bearish GapType = "BEARISH"
)

// FVGName is the confluence name carried by every fair value gap.
const FVGName = "FVG"

// PriceRange is a closed price interval with Min <= Max.
type PriceRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// FairValueGap is an untraded interval between the outer bars of a 3-bar window.
// Two gaps are the same entity iff their RelatedTimestamps are equal.
type FairValueGap struct {
	ObservedTimeframe timeframe.Timeframe
	Range             PriceRange
	Type              GapType
	RelatedTimestamps [3]int64 // older, middle, newer
}

// Detect scans every 3-bar window of bars (oldest first) and returns the gaps found.
// It keeps no state; callers re-run it as bars arrive and rely on Registry to drop repeats.
func Detect(bars []bar.Bar, tf timeframe.Timeframe) []FairValueGap {
	if len(bars) < 3 {
		return nil
	}

	var out []FairValueGap
	for i := 1; i < len(bars)-1; i++ {
		prev, curr, next := bars[i-1], bars[i], bars[i+1]
		related := [3]int64{prev.Timestamp, curr.Timestamp, next.Timestamp}

		if prev.High.LessThan(next.Low) {
			out = append(out, FairValueGap{
				ObservedTimeframe: tf,
				Range:             PriceRange{Min: prev.High, Max: next.Low},
				Type:              Bullish,
				RelatedTimestamps: related,
			})
		}

		if prev.Low.GreaterThan(next.High) {
			out = append(out, FairValueGap{
				ObservedTimeframe: tf,
				Range:             PriceRange{Min: next.High, Max: prev.Low},
				Type:              Bearish,
				RelatedTimestamps: related,
			})
		}
	}
	return out
}
