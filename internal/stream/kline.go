package stream

import (
	"fmt"

	"marketstructure/internal/bar"
	"marketstructure/pkg/bybit"

	"github.com/shopspring/decimal"
)

// ToBar converts a closed kline into a bar of barType stamped with its close time.
func ToBar(k bybit.Kline, barType string) (bar.Bar, error) {
	fields := [...]struct {
		name string
		raw  string
	}{
		{"open", k.Open}, {"high", k.High}, {"low", k.Low}, {"close", k.Close}, {"volume", k.Volume},
	}
	var vals [len(fields)]decimal.Decimal
	for i, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return bar.Bar{}, fmt.Errorf("kline %d %s: %w", k.Start, f.name, err)
		}
		vals[i] = d
	}

	return bar.Bar{
		Type:      barType,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Timestamp: k.CloseTime(),
	}, nil
}
