package history

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"marketstructure/internal/confluence"
	"marketstructure/internal/keylevel"
	"marketstructure/internal/session"
	"marketstructure/internal/timeframe"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Document versions:
//
//	0: a bare list of sessions
//	1: an object with any subset of sessions, daily_key_levels, daily_confluences
//	2: version 1 plus an explicit "version" field and session ids
const CurrentVersion = 2

var ErrMalformedDocument = errors.New("history: malformed document")

type document struct {
	Version          int                      `json:"version"`
	Sessions         []sessionDoc             `json:"sessions"`
	DailyKeyLevels   []keyLevelsDoc           `json:"daily_key_levels"`
	DailyConfluences []map[string]registryDoc `json:"daily_confluences"`
}

type sessionDoc struct {
	ID       string       `json:"id,omitempty"`
	Metadata *metadataDoc `json:"metadata"`
	State    *stateDoc    `json:"state"`
}

type metadataDoc struct {
	Name      *string `json:"name"`
	TZ        *string `json:"tz"`
	OpenTime  *string `json:"open_time"`
	CloseTime *string `json:"close_time"`
}

type stateDoc struct {
	High     nullPrice  `json:"high"`
	Low      nullPrice  `json:"low"`
	OpenUTC  *time.Time `json:"open_utc"`
	CloseUTC *time.Time `json:"close_utc"`
}

type keyLevelDoc struct {
	Price             *price  `json:"price"`
	Name              *string `json:"name"`
	Timestamp         *int64  `json:"timestamp"`
	ObservedTimeframe *string `json:"observed_timeframe"`
	Touched           bool    `json:"touched"`
}

type keyLevelsDoc struct {
	Hour4High   *[]keyLevelDoc `json:"hour_4_high"`
	Hour4Low    *[]keyLevelDoc `json:"hour_4_low"`
	Hour1High   *[]keyLevelDoc `json:"hour_1_high"`
	Hour1Low    *[]keyLevelDoc `json:"hour_1_low"`
	PrevDayHigh *keyLevelDoc   `json:"prev_day_high"`
	PrevDayLow  *keyLevelDoc   `json:"prev_day_low"`
}

type registryDoc struct {
	FVGs *[]fvgDoc `json:"fvgs"`
}

type rangeDoc struct {
	Min *price `json:"min"`
	Max *price `json:"max"`
}

// price writes a decimal with its scale, so 1.20 stays "1.20" rather than "1.2".
type price struct {
	decimal.Decimal
}

func (p price) MarshalJSON() ([]byte, error) {
	return []byte(`"` + fixedString(p.Decimal) + `"`), nil
}

func (p *price) UnmarshalJSON(b []byte) error {
	return p.Decimal.UnmarshalJSON(b)
}

type nullPrice struct {
	decimal.NullDecimal
}

func (p nullPrice) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return price{p.Decimal}.MarshalJSON()
}

func (p *nullPrice) UnmarshalJSON(b []byte) error {
	return p.NullDecimal.UnmarshalJSON(b)
}

func fixedString(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

type fvgDoc struct {
	Name              string    `json:"name"`
	ObservedTimeframe *string   `json:"observed_timeframe"`
	Range             *rangeDoc `json:"range"`
	Type              *string   `json:"type"`
	RelatedTimestamps []int64   `json:"related_timestamps"`
}

// Encode serializes h into the current document format.
func Encode(h *History) ([]byte, error) {
	doc := document{
		Version:          CurrentVersion,
		Sessions:         make([]sessionDoc, 0, len(h.Sessions)),
		DailyKeyLevels:   make([]keyLevelsDoc, 0, len(h.DailyKeyLevels)),
		DailyConfluences: make([]map[string]registryDoc, 0, len(h.DailyConfluences)),
	}
	for _, e := range h.Sessions {
		doc.Sessions = append(doc.Sessions, encodeSession(e))
	}
	for _, l := range h.DailyKeyLevels {
		doc.DailyKeyLevels = append(doc.DailyKeyLevels, encodeLevels(l))
	}
	for _, b := range h.DailyConfluences {
		day := make(map[string]registryDoc, len(b))
		for tf, reg := range b {
			fvgs := make([]fvgDoc, 0, reg.Len())
			for _, g := range reg.FVGs() {
				fvgs = append(fvgs, encodeFVG(g))
			}
			day[tf.String()] = registryDoc{FVGs: &fvgs}
		}
		doc.DailyConfluences = append(doc.DailyConfluences, day)
	}

	out, err := sonic.ConfigStd.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return out, nil
}

// Decode parses any known document version. Absent top-level fields are empty;
// anything else missing or undecodable fails the whole load.
func Decode(data []byte) (*History, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}

	var doc document
	if trimmed[0] == '[' {
		if err := sonic.ConfigStd.Unmarshal(trimmed, &doc.Sessions); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
	} else {
		if err := sonic.ConfigStd.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		if doc.Version > CurrentVersion {
			return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedDocument, doc.Version)
		}
	}

	h := New()
	for i, sd := range doc.Sessions {
		e, err := decodeSession(sd)
		if err != nil {
			return nil, fmt.Errorf("%w: sessions[%d]: %v", ErrMalformedDocument, i, err)
		}
		if !h.AddSession(e) {
			return nil, fmt.Errorf("%w: sessions[%d]: duplicate id %s", ErrMalformedDocument, i, e.ID)
		}
	}
	for i, ld := range doc.DailyKeyLevels {
		l, err := decodeLevels(ld)
		if err != nil {
			return nil, fmt.Errorf("%w: daily_key_levels[%d]: %v", ErrMalformedDocument, i, err)
		}
		h.DailyKeyLevels = append(h.DailyKeyLevels, l)
	}
	for i, day := range doc.DailyConfluences {
		b, err := decodeBook(day)
		if err != nil {
			return nil, fmt.Errorf("%w: daily_confluences[%d]: %v", ErrMalformedDocument, i, err)
		}
		h.DailyConfluences = append(h.DailyConfluences, b)
	}
	return h, nil
}

func encodeSession(e *session.Entity) sessionDoc {
	name, tz := e.Metadata.Name, e.Metadata.TZ
	openTime, closeTime := e.Metadata.Open.String(), e.Metadata.Close.String()
	return sessionDoc{
		ID:       e.ID.String(),
		Metadata: &metadataDoc{Name: &name, TZ: &tz, OpenTime: &openTime, CloseTime: &closeTime},
		State: &stateDoc{
			High:     nullPrice{e.State.High},
			Low:      nullPrice{e.State.Low},
			OpenUTC:  utcPtr(e.State.OpenUTC),
			CloseUTC: utcPtr(e.State.CloseUTC),
		},
	}
}

func decodeSession(sd sessionDoc) (*session.Entity, error) {
	if sd.Metadata == nil {
		return nil, errors.New("missing metadata")
	}
	if sd.State == nil {
		return nil, errors.New("missing state")
	}
	md := sd.Metadata
	if md.Name == nil || md.TZ == nil || md.OpenTime == nil || md.CloseTime == nil {
		return nil, errors.New("metadata requires name, tz, open_time and close_time")
	}
	openTime, err := session.ParseTimeOfDay(*md.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("open_time: %w", err)
	}
	closeTime, err := session.ParseTimeOfDay(*md.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("close_time: %w", err)
	}

	id := uuid.New()
	if sd.ID != "" {
		if id, err = uuid.Parse(sd.ID); err != nil {
			return nil, fmt.Errorf("id: %w", err)
		}
	}

	return &session.Entity{
		ID:       id,
		Metadata: session.Metadata{Name: *md.Name, TZ: *md.TZ, Open: openTime, Close: closeTime},
		State: session.State{
			High:     sd.State.High.NullDecimal,
			Low:      sd.State.Low.NullDecimal,
			OpenUTC:  utcPtr(sd.State.OpenUTC),
			CloseUTC: utcPtr(sd.State.CloseUTC),
		},
	}, nil
}

func encodeLevel(l keylevel.KeyLevel) keyLevelDoc {
	p, name, ts, tf := price{l.Price}, l.Name, l.Timestamp, l.ObservedTimeframe.String()
	return keyLevelDoc{Price: &p, Name: &name, Timestamp: &ts, ObservedTimeframe: &tf, Touched: l.Touched}
}

func encodeLevelList(in []keylevel.KeyLevel) *[]keyLevelDoc {
	out := make([]keyLevelDoc, 0, len(in))
	for _, l := range in {
		out = append(out, encodeLevel(l))
	}
	return &out
}

func encodeLevels(l *keylevel.Levels) keyLevelsDoc {
	doc := keyLevelsDoc{
		Hour4High: encodeLevelList(l.Hour4High),
		Hour4Low:  encodeLevelList(l.Hour4Low),
		Hour1High: encodeLevelList(l.Hour1High),
		Hour1Low:  encodeLevelList(l.Hour1Low),
	}
	if l.PrevDayHigh != nil {
		v := encodeLevel(*l.PrevDayHigh)
		doc.PrevDayHigh = &v
	}
	if l.PrevDayLow != nil {
		v := encodeLevel(*l.PrevDayLow)
		doc.PrevDayLow = &v
	}
	return doc
}

func decodeLevel(d keyLevelDoc) (keylevel.KeyLevel, error) {
	if d.Price == nil || d.Name == nil || d.Timestamp == nil || d.ObservedTimeframe == nil {
		return keylevel.KeyLevel{}, errors.New("key level requires price, name, timestamp and observed_timeframe")
	}
	tf, err := timeframe.Parse(*d.ObservedTimeframe)
	if err != nil {
		return keylevel.KeyLevel{}, err
	}
	return keylevel.KeyLevel{
		Price:             d.Price.Decimal,
		Name:              *d.Name,
		Timestamp:         *d.Timestamp,
		ObservedTimeframe: tf,
		Touched:           d.Touched,
	}, nil
}

func decodeLevelList(field string, in *[]keyLevelDoc) ([]keylevel.KeyLevel, error) {
	if in == nil {
		return nil, fmt.Errorf("missing %s", field)
	}
	var out []keylevel.KeyLevel
	for i, d := range *in {
		l, err := decodeLevel(d)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func decodeLevels(d keyLevelsDoc) (*keylevel.Levels, error) {
	var (
		l   = keylevel.NewLevels()
		err error
	)
	if l.Hour4High, err = decodeLevelList("hour_4_high", d.Hour4High); err != nil {
		return nil, err
	}
	if l.Hour4Low, err = decodeLevelList("hour_4_low", d.Hour4Low); err != nil {
		return nil, err
	}
	if l.Hour1High, err = decodeLevelList("hour_1_high", d.Hour1High); err != nil {
		return nil, err
	}
	if l.Hour1Low, err = decodeLevelList("hour_1_low", d.Hour1Low); err != nil {
		return nil, err
	}
	if d.PrevDayHigh != nil {
		v, err := decodeLevel(*d.PrevDayHigh)
		if err != nil {
			return nil, fmt.Errorf("prev_day_high: %w", err)
		}
		l.PrevDayHigh = &v
	}
	if d.PrevDayLow != nil {
		v, err := decodeLevel(*d.PrevDayLow)
		if err != nil {
			return nil, fmt.Errorf("prev_day_low: %w", err)
		}
		l.PrevDayLow = &v
	}
	return l, nil
}

func encodeFVG(g confluence.FairValueGap) fvgDoc {
	tf, typ := g.ObservedTimeframe.String(), string(g.Type)
	lo, hi := price{g.Range.Min}, price{g.Range.Max}
	return fvgDoc{
		Name:              confluence.FVGName,
		ObservedTimeframe: &tf,
		Range:             &rangeDoc{Min: &lo, Max: &hi},
		Type:              &typ,
		RelatedTimestamps: []int64{g.RelatedTimestamps[0], g.RelatedTimestamps[1], g.RelatedTimestamps[2]},
	}
}

func decodeFVG(d fvgDoc) (confluence.FairValueGap, error) {
	if d.ObservedTimeframe == nil || d.Range == nil || d.Type == nil {
		return confluence.FairValueGap{}, errors.New("fvg requires observed_timeframe, range and type")
	}
	if d.Range.Min == nil || d.Range.Max == nil {
		return confluence.FairValueGap{}, errors.New("range requires min and max")
	}
	if len(d.RelatedTimestamps) != 3 {
		return confluence.FairValueGap{}, fmt.Errorf("related_timestamps must hold 3 entries, got %d", len(d.RelatedTimestamps))
	}
	tf, err := timeframe.Parse(*d.ObservedTimeframe)
	if err != nil {
		return confluence.FairValueGap{}, err
	}
	typ := confluence.GapType(*d.Type)
	if typ != confluence.Bullish && typ != confluence.Bearish {
		return confluence.FairValueGap{}, fmt.Errorf("unknown fvg type %q", *d.Type)
	}
	return confluence.FairValueGap{
		ObservedTimeframe: tf,
		Range:             confluence.PriceRange{Min: d.Range.Min.Decimal, Max: d.Range.Max.Decimal},
		Type:              typ,
		RelatedTimestamps: [3]int64{d.RelatedTimestamps[0], d.RelatedTimestamps[1], d.RelatedTimestamps[2]},
	}, nil
}

func decodeBook(day map[string]registryDoc) (confluence.Book, error) {
	b := make(confluence.Book, len(day))
	for label, rd := range day {
		tf, err := timeframe.Parse(label)
		if err != nil {
			return nil, err
		}
		if rd.FVGs == nil {
			return nil, fmt.Errorf("%s: missing fvgs", label)
		}
		reg := confluence.NewRegistry()
		for i, fd := range *rd.FVGs {
			g, err := decodeFVG(fd)
			if err != nil {
				return nil, fmt.Errorf("%s.fvgs[%d]: %w", label, i, err)
			}
			reg.Add(g)
		}
		b[tf] = reg
	}
	return b, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
