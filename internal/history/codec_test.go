package history

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"marketstructure/internal/confluence"
	"marketstructure/internal/keylevel"
	"marketstructure/internal/session"
	"marketstructure/internal/timeframe"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleHistory() *History {
	h := New()

	openUTC := time.Date(2000, 6, 19, 0, 0, 0, 0, time.UTC)
	closeUTC := time.Date(2000, 6, 19, 9, 0, 0, 0, time.UTC)
	h.AddSession(&session.Entity{
		ID:       uuid.MustParse("3f1b6c1e-8c47-4d5e-9a51-2b0c7e6f1a10"),
		Metadata: session.Tokyo,
		State: session.State{
			High:     decimal.NewNullDecimal(d("1.5123")),
			Low:      decimal.NewNullDecimal(d("1.4980")),
			OpenUTC:  &openUTC,
			CloseUTC: &closeUTC,
		},
	})

	levels := keylevel.NewLevels()
	levels.Hour1High = append(levels.Hour1High, keylevel.KeyLevel{
		Price: d("1.07"), Name: keylevel.NameHour1High, Timestamp: 7200, ObservedTimeframe: timeframe.OneHour,
	})
	levels.Hour4Low = append(levels.Hour4Low, keylevel.KeyLevel{
		Price: d("1.01"), Name: keylevel.NameHour4Low, Timestamp: 14400, ObservedTimeframe: timeframe.FourHour,
	})
	levels.PrevDayHigh = &keylevel.KeyLevel{
		Price: d("1.20"), Name: keylevel.NamePrevDayHigh, Timestamp: 86400, ObservedTimeframe: timeframe.OneDay,
	}

	book := confluence.NewBook()
	book[timeframe.OneHour].Add(confluence.FairValueGap{
		ObservedTimeframe: timeframe.OneHour,
		Range:             confluence.PriceRange{Min: d("1.10"), Max: d("1.15")},
		Type:              confluence.Bullish,
		RelatedTimestamps: [3]int64{100, 200, 300},
	})

	h.AppendDay(levels, book)
	return h
}

// go test -v --run TestRoundTrip
func TestRoundTrip(t *testing.T) {
	h := sampleHistory()

	first, err := Encode(h)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := Decode(first)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	second, err := Encode(got)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("round trip changed the document:\n%s\n---\n%s", first, second)
	}

	if len(got.Sessions) != 1 || got.Sessions[0].ID != h.Sessions[0].ID {
		t.Fatalf("sessions not restored: %+v", got.Sessions)
	}
	s := got.Sessions[0]
	if s.Metadata != session.Tokyo {
		t.Errorf("unexpected metadata: %+v", s.Metadata)
	}
	if !s.State.High.Decimal.Equal(d("1.5123")) || !s.State.CloseUTC.Equal(*h.Sessions[0].State.CloseUTC) {
		t.Errorf("unexpected state: %+v", s.State)
	}

	if len(got.DailyKeyLevels) != 1 || len(got.DailyConfluences) != 1 {
		t.Fatalf("expected one day, got %d/%d", len(got.DailyKeyLevels), len(got.DailyConfluences))
	}
	l := got.DailyKeyLevels[0]
	if len(l.Hour1High) != 1 || !l.Hour1High[0].Price.Equal(d("1.07")) || l.Hour1High[0].Timestamp != 7200 {
		t.Errorf("unexpected hour_1_high: %+v", l.Hour1High)
	}
	if l.PrevDayHigh == nil || l.PrevDayLow != nil {
		t.Errorf("unexpected previous-day levels: %+v / %+v", l.PrevDayHigh, l.PrevDayLow)
	}
	fvgs := got.DailyConfluences[0][timeframe.OneHour].FVGs()
	if len(fvgs) != 1 || fvgs[0].RelatedTimestamps != [3]int64{100, 200, 300} || fvgs[0].Type != confluence.Bullish {
		t.Errorf("unexpected fvgs: %+v", fvgs)
	}
}

// go test -v --run TestEncodeUsesDecimalStrings
func TestEncodeUsesDecimalStrings(t *testing.T) {
	out, err := Encode(sampleHistory())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	for _, want := range []string{`"price": "1.07"`, `"min": "1.10"`, `"price": "1.20"`, `"high": "1.5123"`, `"version": 2`, `"1-HOUR"`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("document missing %s:\n%s", want, out)
		}
	}
}

// go test -v --run TestRoundTripKeepsScale
func TestRoundTripKeepsScale(t *testing.T) {
	h := sampleHistory()
	out, err := Encode(h)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := Decode(out)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	want := h.DailyKeyLevels[0]
	if !reflect.DeepEqual(got.DailyKeyLevels[0], want) {
		t.Errorf("key levels changed:\n got %+v\nwant %+v", got.DailyKeyLevels[0], want)
	}
	if exp := got.DailyKeyLevels[0].PrevDayHigh.Price.Exponent(); exp != -2 {
		t.Errorf("expected 1.20 to keep two decimal places, got exponent %d", exp)
	}
	fvg := got.DailyConfluences[0][timeframe.OneHour].FVGs()[0]
	if !reflect.DeepEqual(fvg.Range, confluence.PriceRange{Min: d("1.10"), Max: d("1.15")}) {
		t.Errorf("fvg range changed: %+v", fvg.Range)
	}
	if !reflect.DeepEqual(got.Sessions[0].State.High, h.Sessions[0].State.High) {
		t.Errorf("session high changed: %+v", got.Sessions[0].State.High)
	}
}

// go test -v --run TestDecodeSessionsOnly
func TestDecodeSessionsOnly(t *testing.T) {
	doc := `{"sessions": [{"metadata": {"name": "London", "tz": "Europe/London", "open_time": "08:00:00", "close_time": "16:00:00"},
		"state": {"high": "1.2", "low": null, "open_utc": "2000-06-19T07:00:00+00:00", "close_utc": null}}]}`

	h, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(h.Sessions) != 1 || h.Sessions[0].Metadata != session.London {
		t.Fatalf("unexpected sessions: %+v", h.Sessions)
	}
	if h.Sessions[0].ID == uuid.Nil {
		t.Error("missing id should be replaced with a fresh one")
	}
	if h.Sessions[0].State.Low.Valid || h.Sessions[0].State.CloseUTC != nil {
		t.Error("null fields must stay unset")
	}
	if len(h.DailyKeyLevels) != 0 || len(h.DailyConfluences) != 0 {
		t.Error("absent fields must decode as empty")
	}
}

// go test -v --run TestDecodeLegacyList
func TestDecodeLegacyList(t *testing.T) {
	doc := `[{"metadata": {"name": "Tokyo", "tz": "Asia/Tokyo", "open_time": "09:00:00", "close_time": "18:00:00"},
		"state": {"high": null, "low": null, "open_utc": null, "close_utc": null}}]`

	h, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(h.Sessions) != 1 || len(h.DailyKeyLevels) != 0 || len(h.DailyConfluences) != 0 {
		t.Errorf("unexpected legacy decode: %+v", h.Summary())
	}
}

// go test -v --run TestDecodeMalformed
func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":             ``,
		"syntax":            `{"sessions": [`,
		"missing metadata":  `{"sessions": [{"state": {}}]}`,
		"missing list":      `{"daily_key_levels": [{"hour_4_high": [], "hour_4_low": [], "hour_1_high": []}]}`,
		"bad price":         `{"daily_key_levels": [{"hour_4_high": [{"price": "abc", "name": "H4H", "timestamp": 1, "observed_timeframe": "4-HOUR"}], "hour_4_low": [], "hour_1_high": [], "hour_1_low": []}]}`,
		"missing timestamp": `{"daily_key_levels": [{"hour_4_high": [{"price": "1.1", "name": "H4H", "observed_timeframe": "4-HOUR"}], "hour_4_low": [], "hour_1_high": [], "hour_1_low": []}]}`,
		"bad timeframe":     `{"daily_confluences": [{"2-HOUR": {"fvgs": []}}]}`,
		"short triple":      `{"daily_confluences": [{"1-HOUR": {"fvgs": [{"name": "FVG", "observed_timeframe": "1-HOUR", "range": {"min": "1", "max": "2"}, "type": "BULLISH", "related_timestamps": [1, 2]}]}}]}`,
		"bad type":          `{"daily_confluences": [{"1-HOUR": {"fvgs": [{"name": "FVG", "observed_timeframe": "1-HOUR", "range": {"min": "1", "max": "2"}, "type": "SIDEWAYS", "related_timestamps": [1, 2, 3]}]}}]}`,
		"future version":    `{"version": 9}`,
		"duplicate id": `{"version": 2, "sessions": [
			{"id": "3f1b6c1e-9a41-4c59-8c2e-0d7b1f2a6e10", "metadata": {"name": "Tokyo", "tz": "Asia/Tokyo", "open_time": "09:00:00", "close_time": "18:00:00"}, "state": {}},
			{"id": "3f1b6c1e-9a41-4c59-8c2e-0d7b1f2a6e10", "metadata": {"name": "London", "tz": "Europe/London", "open_time": "08:00:00", "close_time": "16:00:00"}, "state": {}}]}`,
	}
	for name, doc := range cases {
		if _, err := Decode([]byte(doc)); !errors.Is(err, ErrMalformedDocument) {
			t.Errorf("%s: expected ErrMalformedDocument, got %v", name, err)
		}
	}
}

// go test -v --run TestAddSessionDeduplicates
func TestAddSessionDeduplicates(t *testing.T) {
	h := New()
	e := &session.Entity{ID: uuid.New(), Metadata: session.NewYork}
	if !h.AddSession(e) {
		t.Fatal("first add should succeed")
	}
	if h.AddSession(e) {
		t.Error("second add of the same entity should be ignored")
	}
	if len(h.Sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(h.Sessions))
	}
}

// go test -v --run TestFileStore
func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "history.json")
	store := FileStore{Path: path}
	ctx := context.Background()

	if err := store.Save(ctx, sampleHistory()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if sum := got.Summary(); sum.Sessions != 1 || sum.Days != 1 || sum.KeyLevels != 3 || sum.FVGs != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}

	if _, err := (FileStore{Path: filepath.Join(t.TempDir(), "missing.json")}).Load(ctx); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

type memoryDocs struct {
	docs map[string][]byte
}

func (m *memoryDocs) SaveHistoryDocument(_ context.Context, runID string, doc []byte) error {
	m.docs[runID] = append([]byte(nil), doc...)
	return nil
}

func (m *memoryDocs) LatestHistoryDocument(_ context.Context, runID string) ([]byte, error) {
	doc, ok := m.docs[runID]
	if !ok {
		return nil, errors.New("not found")
	}
	return doc, nil
}

// go test -v --run TestDBStore
func TestDBStore(t *testing.T) {
	ctx := context.Background()
	db := &memoryDocs{docs: map[string][]byte{}}
	store := MultiStore{DBStore{DB: db, RunID: "run-1"}}

	if err := store.Save(ctx, sampleHistory()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got.Sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(got.Sessions))
	}

	if _, err := (DBStore{DB: db, RunID: "other"}).Load(ctx); err == nil {
		t.Error("expected error for unknown run")
	}
}
