package bar

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one closed OHLC candle. Timestamp is the close time in UTC epoch nanoseconds.
type Bar struct {
	Type      string          // bar identity, e.g. "GBP/USD.SIM-1-HOUR-LAST-INTERNAL"
	Open      decimal.Decimal // Opening price
	High      decimal.Decimal // Highest price during the interval
	Low       decimal.Decimal // Lowest price during the interval
	Close     decimal.Decimal // Closing price
	Volume    decimal.Decimal // Traded volume, zero when the source has none
	Timestamp int64
}

// Time returns the bar timestamp as a UTC time.
func (b Bar) Time() time.Time {
	return time.Unix(0, b.Timestamp).UTC()
}

// IsUp reports a bar that closed above its open.
func IsUp(b Bar) bool {
	return b.Close.GreaterThan(b.Open)
}

// IsDown reports a bar that closed below its open.
func IsDown(b Bar) bool {
	return b.Close.LessThan(b.Open)
}

// IsSwingHigh reports an up bar followed by a down bar.
func IsSwingHigh(prev, curr Bar) bool {
	return IsUp(prev) && IsDown(curr)
}

// IsSwingLow reports a down bar followed by an up bar.
func IsSwingLow(prev, curr Bar) bool {
	return IsDown(prev) && IsUp(curr)
}

// MaxHigh returns the bar holding the higher high. On a tie prev wins, since
// that is where the price printed first.
func MaxHigh(prev, curr Bar) Bar {
	if curr.High.GreaterThan(prev.High) {
		return curr
	}
	return prev
}

// MinLow returns the bar holding the lower low, prev on a tie.
func MinLow(prev, curr Bar) Bar {
	if curr.Low.LessThan(prev.Low) {
		return curr
	}
	return prev
}
