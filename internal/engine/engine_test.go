package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"marketstructure/config"
	"marketstructure/internal/bar"
	"marketstructure/internal/confluence"
	"marketstructure/internal/history"
	"marketstructure/internal/keylevel"
	"marketstructure/internal/timeframe"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const instrument = "GBP/USD.SIM"

func newEngine(t *testing.T, source string) *Engine {
	t.Helper()
	e, err := New(config.EngineConfig{
		Instrument:    instrument,
		FVGWindow:     5,
		SessionSource: source,
	}, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func at(h, m int) time.Time {
	return time.Date(2000, 6, 19, h, m, 0, 0, time.UTC)
}

func mk(tf timeframe.Timeframe, ts time.Time, o, h, l, c string) bar.Bar {
	return bar.Bar{
		Type:      tf.BarType(instrument),
		Open:      d(o),
		High:      d(h),
		Low:       d(l),
		Close:     d(c),
		Timestamp: ts.UnixNano(),
	}
}

func feed(t *testing.T, e *Engine, bars ...bar.Bar) {
	t.Helper()
	for _, b := range bars {
		if err := e.OnBar(b); err != nil {
			t.Fatalf("OnBar(%s @ %s): %v", b.Type, b.Time(), err)
		}
	}
}

// go test -v --run TestRejectsUnknownBarType
func TestRejectsUnknownBarType(t *testing.T) {
	e := newEngine(t, config.SessionSourceMinute)

	b := mk(timeframe.OneHour, at(1, 0), "1", "1", "1", "1")
	b.Type = "EUR/USD.SIM-1-HOUR-LAST-INTERNAL"
	if err := e.OnBar(b); !errors.Is(err, ErrUnknownBarType) {
		t.Errorf("expected ErrUnknownBarType, got %v", err)
	}
}

// go test -v --run TestRejectsOutOfOrder
func TestRejectsOutOfOrder(t *testing.T) {
	e := newEngine(t, config.SessionSourceMinute)
	feed(t, e, mk(timeframe.OneMinute, at(1, 1), "1", "1", "1", "1"))

	if err := e.OnBar(mk(timeframe.OneMinute, at(1, 0), "1", "1", "1", "1")); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("expected ErrOutOfOrder, got %v", err)
	}
	// equal timestamps on another timeframe are fine
	feed(t, e, mk(timeframe.FiveMinute, at(1, 0), "1", "1", "1", "1"))
}

// go test -v --run TestHourlyFairValueGap
func TestHourlyFairValueGap(t *testing.T) {
	e := newEngine(t, config.SessionSourceMinute)

	prev := mk(timeframe.OneHour, at(1, 0), "1.05", "1.10", "1.05", "1.09")
	mid := mk(timeframe.OneHour, at(2, 0), "1.09", "1.18", "1.08", "1.17")
	next := mk(timeframe.OneHour, at(3, 0), "1.17", "1.20", "1.15", "1.19")
	feed(t, e, prev, mid, next)

	fvgs := e.Live().Confluences[timeframe.OneHour].FVGs()
	if len(fvgs) != 1 {
		t.Fatalf("expected exactly 1 gap, got %d", len(fvgs))
	}
	g := fvgs[0]
	if g.Type != confluence.Bullish || !g.Range.Min.Equal(d("1.10")) || !g.Range.Max.Equal(d("1.15")) {
		t.Errorf("unexpected gap: %+v", g)
	}
	if g.RelatedTimestamps != [3]int64{prev.Timestamp, mid.Timestamp, next.Timestamp} {
		t.Errorf("unexpected related timestamps: %v", g.RelatedTimestamps)
	}

	// the same window is rescanned on the next bar without duplicating the gap
	feed(t, e, mk(timeframe.OneHour, at(4, 0), "1.19", "1.19", "1.16", "1.18"))
	if n := e.Live().Confluences[timeframe.OneHour].Len(); n != 1 {
		t.Errorf("expected the gap to be recorded once, got %d", n)
	}
}

// go test -v --run TestHourlySwingHigh
func TestHourlySwingHigh(t *testing.T) {
	e := newEngine(t, config.SessionSourceMinute)

	prev := mk(timeframe.OneHour, at(1, 0), "1.00", "1.06", "0.99", "1.05")
	curr := mk(timeframe.OneHour, at(2, 0), "1.05", "1.07", "1.01", "1.02")
	feed(t, e, prev, curr)

	levels := e.Live().KeyLevels
	if len(levels.Hour1High) != 1 {
		t.Fatalf("expected one H1H, got %+v", levels.Hour1High)
	}
	l := levels.Hour1High[0]
	if l.Name != keylevel.NameHour1High || !l.Price.Equal(d("1.07")) || l.Timestamp != curr.Timestamp {
		t.Errorf("unexpected level: %+v", l)
	}
}

// go test -v --run TestFourHourSwing
func TestFourHourSwing(t *testing.T) {
	e := newEngine(t, config.SessionSourceMinute)
	feed(t, e,
		mk(timeframe.FourHour, at(4, 0), "1.10", "1.11", "1.01", "1.02"),
		mk(timeframe.FourHour, at(8, 0), "1.02", "1.08", "1.03", "1.07"),
	)
	if got := e.Live().KeyLevels.Hour4Low; len(got) != 1 || got[0].Name != keylevel.NameHour4Low {
		t.Errorf("expected one H4L, got %+v", got)
	}
}

// go test -v --run TestDayBoundary
func TestDayBoundary(t *testing.T) {
	e := newEngine(t, config.SessionSourceMinute)

	feed(t, e,
		mk(timeframe.OneHour, at(1, 0), "1.05", "1.10", "1.05", "1.09"),
		mk(timeframe.OneHour, at(2, 0), "1.09", "1.18", "1.08", "1.07"),
		mk(timeframe.OneHour, at(3, 0), "1.07", "1.20", "1.15", "1.19"),
	)
	before := e.Live()
	if before.Confluences.Count() != 1 || before.KeyLevels.Count() == 0 {
		t.Fatalf("expected live detections before the boundary: %d fvgs, %d levels",
			before.Confluences.Count(), before.KeyLevels.Count())
	}

	day1 := mk(timeframe.OneDay, time.Date(2000, 6, 20, 0, 0, 0, 0, time.UTC), "1.05", "1.25", "1.00", "1.19")
	feed(t, e, day1)

	h := e.History()
	if len(h.DailyKeyLevels) != 1 || len(h.DailyConfluences) != 1 {
		t.Fatalf("expected one archived day, got %d/%d", len(h.DailyKeyLevels), len(h.DailyConfluences))
	}
	if h.DailyConfluences[0].Count() != 1 || h.DailyKeyLevels[0].Count() != before.KeyLevels.Count() {
		t.Errorf("archived day does not match the live state before the boundary")
	}
	if h.DailyKeyLevels[0].PrevDayHigh != nil {
		t.Errorf("first archived day has no previous-day levels")
	}

	live := e.Live()
	if live.Confluences.Count() != 0 {
		t.Errorf("confluences must reset at the boundary")
	}
	if len(live.KeyLevels.Hour1High)+len(live.KeyLevels.Hour1Low) != 0 {
		t.Errorf("swing levels must reset at the boundary")
	}
	if live.KeyLevels.PrevDayHigh == nil || !live.KeyLevels.PrevDayHigh.Price.Equal(d("1.25")) {
		t.Errorf("new day should carry PDH from the closing daily bar: %+v", live.KeyLevels.PrevDayHigh)
	}
	if live.KeyLevels.PrevDayLow == nil || !live.KeyLevels.PrevDayLow.Price.Equal(d("1.00")) {
		t.Errorf("new day should carry PDL from the closing daily bar: %+v", live.KeyLevels.PrevDayLow)
	}
	for _, tf := range timeframe.All() {
		if _, ok := live.Confluences[tf]; !ok {
			t.Errorf("registry for %s missing after reset", tf)
		}
	}

	feed(t, e, mk(timeframe.OneDay, time.Date(2000, 6, 21, 0, 0, 0, 0, time.UTC), "1.19", "1.30", "1.10", "1.20"))
	if len(h.DailyKeyLevels) != 2 || len(h.DailyConfluences) != 2 {
		t.Fatalf("expected two archived days, got %d/%d", len(h.DailyKeyLevels), len(h.DailyConfluences))
	}
	if pdh := h.DailyKeyLevels[1].PrevDayHigh; pdh == nil || pdh.Timestamp != day1.Timestamp {
		t.Errorf("second day should describe the first daily bar: %+v", pdh)
	}
}

// go test -v --run TestSessionsFromMinuteBars
func TestSessionsFromMinuteBars(t *testing.T) {
	e := newEngine(t, config.SessionSourceMinute)

	// 00:00 UTC is 09:00 in Tokyo
	feed(t, e, mk(timeframe.OneHour, at(0, 0), "1.00", "1.00", "1.00", "1.00"))
	active := e.Live().ActiveSessions
	if len(active) != 1 || active[0].Metadata.Name != "Tokyo" {
		t.Fatalf("expected Tokyo active, got %+v", active)
	}
	if !active[0].State.OpenUTC.Equal(at(0, 0)) {
		t.Errorf("unexpected open_utc: %s", active[0].State.OpenUTC)
	}

	feed(t, e,
		mk(timeframe.OneMinute, at(0, 1), "1.00", "1.30", "0.95", "1.10"),
		mk(timeframe.OneMinute, at(0, 2), "1.10", "1.20", "0.90", "1.00"),
	)
	// hourly bars never widen the session when minute bars feed it
	feed(t, e, mk(timeframe.OneHour, at(1, 0), "1.00", "5.00", "0.10", "1.00"))

	// 09:00 UTC is 18:00 in Tokyo: finalize
	feed(t, e, mk(timeframe.OneHour, at(9, 0), "1.00", "1.00", "1.00", "1.00"))

	h := e.History()
	if len(h.Sessions) != 1 {
		t.Fatalf("expected one finalized session, got %d", len(h.Sessions))
	}
	s := h.Sessions[0]
	if s.Metadata.Name != "Tokyo" || !s.State.CloseUTC.Equal(at(9, 0)) {
		t.Errorf("unexpected finalized session: %+v", s)
	}
	if !s.State.High.Decimal.Equal(d("1.30")) || !s.State.Low.Decimal.Equal(d("0.90")) {
		t.Errorf("unexpected extremes: high=%s low=%s", s.State.High.Decimal, s.State.Low.Decimal)
	}

	// London (07:00-15:00 UTC in June) opened on the same refresh
	if active := e.Live().ActiveSessions; len(active) != 1 || active[0].Metadata.Name != "London" {
		t.Errorf("expected London active, got %+v", active)
	}
}

// go test -v --run TestSessionsFromHourlyBars
func TestSessionsFromHourlyBars(t *testing.T) {
	e := newEngine(t, config.SessionSourceHour)

	feed(t, e,
		mk(timeframe.OneHour, at(0, 0), "1.00", "1.10", "0.95", "1.05"),
		mk(timeframe.OneMinute, at(0, 1), "1.00", "9.00", "0.01", "1.00"),
		mk(timeframe.OneHour, at(1, 0), "1.05", "1.20", "1.00", "1.10"),
	)

	st := e.Live().ActiveSessions[0].State
	if !st.High.Decimal.Equal(d("1.20")) || !st.Low.Decimal.Equal(d("0.95")) {
		t.Errorf("unexpected hourly-fed extremes: high=%s low=%s", st.High.Decimal, st.Low.Decimal)
	}
}

// go test -v --run TestRefreshWithoutBars
func TestRefreshWithoutBars(t *testing.T) {
	e := newEngine(t, config.SessionSourceMinute)
	if err := e.Refresh(time.Time{}); err == nil {
		t.Error("expected refresh with a zero time to fail")
	}
}

// go test -v --run TestCustomClock
func TestCustomClock(t *testing.T) {
	now := at(0, 30)
	e, err := New(config.EngineConfig{Instrument: instrument, FVGWindow: 5, SessionSource: config.SessionSourceMinute},
		nil, WithClock(ClockFunc(func() time.Time { return now })))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	feed(t, e, mk(timeframe.OneHour, at(0, 0), "1", "1", "1", "1"))
	if active := e.Live().ActiveSessions; len(active) != 1 || !active[0].State.OpenUTC.Equal(now) {
		t.Errorf("expected session opened at the injected clock time, got %+v", active)
	}
}

// go test -v --run TestShutdownAndLoad
func TestShutdownAndLoad(t *testing.T) {
	ctx := context.Background()
	store := history.FileStore{Path: filepath.Join(t.TempDir(), "history.json")}

	e := newEngine(t, config.SessionSourceMinute)
	feed(t, e,
		mk(timeframe.OneHour, at(0, 0), "1.00", "1.10", "0.95", "1.05"),
		mk(timeframe.OneHour, at(9, 0), "1.05", "1.20", "1.00", "1.10"),
		mk(timeframe.OneDay, time.Date(2000, 6, 20, 0, 0, 0, 0, time.UTC), "1.00", "1.20", "0.95", "1.10"),
	)
	if err := e.Shutdown(ctx, store); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	restored := newEngine(t, config.SessionSourceMinute)
	if err := restored.LoadHistory(ctx, store); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got, want := restored.History().Summary(), e.History().Summary(); got != want {
		t.Errorf("restored summary %+v, want %+v", got, want)
	}

	failed := newEngine(t, config.SessionSourceMinute)
	missing := history.FileStore{Path: filepath.Join(t.TempDir(), "missing.json")}
	if err := failed.LoadHistory(ctx, missing); err == nil {
		t.Fatal("expected load of a missing document to fail")
	}
	if sum := failed.History().Summary(); sum != (history.Summary{}) {
		t.Errorf("failed load must leave an empty history, got %+v", sum)
	}
}

// go test -v --run TestFailedLoadResetsHistory
func TestFailedLoadResetsHistory(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, config.SessionSourceMinute)
	feed(t, e,
		mk(timeframe.OneHour, at(0, 0), "1.00", "1.10", "0.95", "1.05"),
		mk(timeframe.OneHour, at(9, 0), "1.05", "1.20", "1.00", "1.10"),
		mk(timeframe.OneDay, time.Date(2000, 6, 20, 0, 0, 0, 0, time.UTC), "1.00", "1.20", "0.95", "1.10"),
	)
	if sum := e.History().Summary(); sum.Days == 0 || sum.Sessions == 0 {
		t.Fatalf("expected a populated history before the load, got %+v", sum)
	}

	missing := history.FileStore{Path: filepath.Join(t.TempDir(), "missing.json")}
	if err := e.LoadHistory(ctx, missing); err == nil {
		t.Fatal("expected load of a missing document to fail")
	}
	if sum := e.History().Summary(); sum != (history.Summary{}) {
		t.Errorf("failed load must leave an empty history, got %+v", sum)
	}
}

// go test -v --run TestSessionClosedLogWithoutBars
func TestSessionClosedLogWithoutBars(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e, err := New(config.EngineConfig{Instrument: instrument, FVGWindow: 5, SessionSource: config.SessionSourceMinute},
		zap.New(core))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// Tokyo opens at 00:00 UTC and closes at 09:00 UTC; no bar is observed in between
	if err := e.Refresh(at(0, 0)); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := e.Refresh(at(9, 0)); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	closed := logs.FilterMessage("session closed").All()
	if len(closed) == 0 {
		t.Fatal("expected a session closed log entry")
	}
	for _, entry := range closed {
		fields := entry.ContextMap()
		if observed, _ := fields["observed"].(bool); observed {
			t.Errorf("session without bars logged as observed: %v", fields)
		}
		if _, ok := fields["high"]; ok {
			t.Errorf("unset high must not be logged: %v", fields)
		}
	}
}

// go test -v --run TestNewValidatesConfig
func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(config.EngineConfig{FVGWindow: 5, SessionSource: config.SessionSourceMinute}, nil); err == nil {
		t.Error("expected error for missing instrument")
	}
}
