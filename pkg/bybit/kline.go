package bybit

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ParseKlineList converts REST kline rows into Klines sorted by start time.
// Rows that are incomplete or carry unparsable numbers are skipped. REST rows
// only describe closed intervals, except possibly the newest one, which is
// marked unconfirmed when its end lies after now.
func ParseKlineList(interval KlineInterval, raw [][]string, now time.Time) []Kline {
	out := make([]Kline, 0, len(raw))
	span := interval.Duration()

	for _, row := range raw {
		if len(row) < 7 {
			continue // skip incomplete row
		}

		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		if !validNumbers(row[1:7]) {
			continue
		}

		end := time.UnixMilli(start).Add(span).UnixMilli() - 1
		out = append(out, Kline{
			Start:     start,
			End:       end,
			Interval:  string(interval),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
			Turnover:  row[6],
			Confirm:   end < now.UnixMilli(),
			Timestamp: now.UnixMilli(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func validNumbers(fields []string) bool {
	for _, f := range fields {
		if _, err := decimal.NewFromString(f); err != nil {
			return false
		}
	}
	return true
}

// CloseTime returns the bar close time in nanoseconds: the instant right after
// the last millisecond the kline covers.
func (k Kline) CloseTime() int64 {
	return time.UnixMilli(k.End + 1).UnixNano()
}
