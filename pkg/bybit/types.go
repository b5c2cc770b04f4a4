package bybit

import "encoding/json"

// BybitResponse represents a generic response from Bybit's V5 REST API.
type BybitResponse struct {
	RetCode    int                    `json:"retCode"` // 0 means success
	RetMsg     string                 `json:"retMsg"`
	Result     json.RawMessage        `json:"result"` // decoded per endpoint
	RetExtInfo map[string]interface{} `json:"retExtInfo"`
	Time       int64                  `json:"time"` // server time, ms
}

// KlinesResponse is the result payload of /v5/market/kline. Rows are
// [start, open, high, low, close, volume, turnover], newest first.
type KlinesResponse struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// Kline represents a single candlestick, from either the REST or the websocket API.
// Prices stay strings until they are converted into bars.
type Kline struct {
	Start     int64  `json:"start"`     // open time, ms since epoch
	End       int64  `json:"end"`       // last millisecond of the interval
	Interval  string `json:"interval"`  // e.g. "1", "5", "D"
	Open      string `json:"open"`
	Close     string `json:"close"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Volume    string `json:"volume"`
	Turnover  string `json:"turnover"`
	Confirm   bool   `json:"confirm"`   // true once the interval has closed
	Timestamp int64  `json:"timestamp"` // event time, ms since epoch
}

// KlineMessage represents a WebSocket push for a kline topic.
type KlineMessage struct {
	Topic string  `json:"topic"` // e.g. "kline.1.BTCUSDT"
	Data  []Kline `json:"data"`
	Ts    int64   `json:"ts"`
	Type  string  `json:"type"` // "snapshot" or "delta"
}
