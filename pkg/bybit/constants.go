package bybit

import (
	"fmt"
	"time"
)

// KlineInterval is the interval type used for API requests
type KlineInterval string

// KlineIntervalMeta holds the API value and the bar timeframe label for a kline interval.
type KlineIntervalMeta struct {
	APIValue  string
	Timeframe string
	Minutes   int
}

const (
	Interval1Min   KlineInterval = "1"
	Interval5Min   KlineInterval = "5"
	Interval15Min  KlineInterval = "15"
	Interval60Min  KlineInterval = "60"
	Interval240Min KlineInterval = "240"
	IntervalDaily  KlineInterval = "D"
)

// MaxKlineLimit is the largest page the kline endpoint returns.
const MaxKlineLimit = 1000

var validKlineIntervals = map[KlineInterval]KlineIntervalMeta{
	Interval1Min:   {APIValue: "1", Timeframe: "1-MINUTE", Minutes: 1},
	Interval5Min:   {APIValue: "5", Timeframe: "5-MINUTE", Minutes: 5},
	Interval15Min:  {APIValue: "15", Timeframe: "15-MINUTE", Minutes: 15},
	Interval60Min:  {APIValue: "60", Timeframe: "1-HOUR", Minutes: 60},
	Interval240Min: {APIValue: "240", Timeframe: "4-HOUR", Minutes: 240},
	IntervalDaily:  {APIValue: "D", Timeframe: "1-DAY", Minutes: 1440},
}

// IsValid checks if the KlineInterval is a valid predefined interval
func (k KlineInterval) IsValid() bool {
	_, ok := validKlineIntervals[k]
	return ok
}

// Duration is the length of one kline of this interval.
func (k KlineInterval) Duration() time.Duration {
	return time.Duration(validKlineIntervals[k].Minutes) * time.Minute
}

// Topic returns the public websocket topic, e.g. "kline.1.BTCUSDT".
func (k KlineInterval) Topic(symbol string) string {
	return fmt.Sprintf("kline.%s.%s", k, symbol)
}

// ParseKlineInterval parses a string into a valid KlineIntervalMeta
func ParseKlineInterval(s string) (KlineIntervalMeta, error) {
	interval := KlineInterval(s)
	meta, ok := validKlineIntervals[interval]
	if !ok {
		return KlineIntervalMeta{}, fmt.Errorf("invalid KlineInterval: %s", s)
	}
	return meta, nil
}
