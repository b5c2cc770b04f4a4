package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketstructure/internal/bar"
	"marketstructure/pkg/bybit"
	"marketstructure/pkg/storage/postgres"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// BarRecorder persists bars as they arrive.
type BarRecorder interface {
	InsertBar(ctx context.Context, record *postgres.BarRecord) error
}

// Options configures MakeMessageHandler.
type Options struct {
	Instrument string        // instrument id bars are stored under
	BarType    string        // identity given to the emitted base bars
	Timeframe  string        // timeframe label stored with each record
	Recorder   BarRecorder   // optional
	Emit       func(bar.Bar) // receives every confirmed kline as a bar
}

// MakeMessageHandler returns a function that handles incoming WebSocket messages:
// confirmed klines become bars handed to opts.Emit, and are recorded when a
// recorder is configured.
func MakeMessageHandler(logger *zap.Logger, opts Options) func(msg []byte) {
	return func(msg []byte) {
		// Peek at the topic before decoding the whole payload
		topic := gjson.GetBytes(msg, "topic").String()
		if !isKlineTopic(topic) {
			if op := gjson.GetBytes(msg, "op"); op.Exists() && !gjson.GetBytes(msg, "success").Bool() {
				logger.Warn("websocket request rejected", zap.String("op", op.String()),
					zap.String("ret_msg", gjson.GetBytes(msg, "ret_msg").String()))
			}
			return // subscription acks, pongs
		}

		var parsed bybit.KlineMessage
		if err := sonic.Unmarshal(msg, &parsed); err != nil {
			logger.Warn("failed to parse kline payload", zap.Error(err))
			return
		}
		symbol := extractSymbolFromTopic(parsed.Topic) // e.g., "kline.1.BTCUSDT" → "BTCUSDT"

		for _, d := range parsed.Data {
			if !d.Confirm {
				continue
			}

			b, err := ToBar(d, opts.BarType)
			if err != nil {
				logger.Warn("failed to convert kline", zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			opts.Emit(b)

			if opts.Recorder != nil {
				Record(logger, opts.Recorder, opts.Instrument, opts.Timeframe, b)
			}
		}
	}
}

// Record stores one bar, treating an already stored bar as success.
func Record(logger *zap.Logger, rec BarRecorder, instrument, timeframe string, b bar.Bar) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := rec.InsertBar(ctx, postgres.ToBarRecord(instrument, timeframe, b))
	switch {
	case err == nil:
	case errors.Is(err, postgres.ErrDuplicateBar):
		logger.Debug("bar already stored", zap.Time("close", b.Time()))
	default:
		logger.Warn("failed to insert bar record", zap.Time("close", b.Time()), zap.Error(err))
	}
}

// isKlineTopic returns true if the topic string indicates a kline stream.
func isKlineTopic(topic string) bool {
	return strings.HasPrefix(topic, "kline.")
}

// extractSymbolFromTopic parses the symbol from a topic like "kline.1.BTCUSDT".
func extractSymbolFromTopic(topic string) string {
	parts := strings.Split(topic, ".")
	if len(parts) == 3 {
		return parts[2]
	}
	return ""
}
