package keylevel

import (
	"marketstructure/internal/timeframe"

	"github.com/shopspring/decimal"
)

const (
	NameHour1High   = "H1H"
	NameHour1Low    = "H1L"
	NameHour4High   = "H4H"
	NameHour4Low    = "H4L"
	NamePrevDayHigh = "PDH"
	NamePrevDayLow  = "PDL"
)

// KeyLevel is a notable price recorded for later reference.
// Touched is reserved: no detector sets it yet.
type KeyLevel struct {
	Price             decimal.Decimal
	Name              string
	Timestamp         int64 // origin bar, UTC epoch nanoseconds
	ObservedTimeframe timeframe.Timeframe
	Touched           bool
}

// Levels is the working set of one trading day. The four slices only grow
// within a day; the previous-day levels are overwritten.
type Levels struct {
	Hour4High   []KeyLevel
	Hour4Low    []KeyLevel
	Hour1High   []KeyLevel
	Hour1Low    []KeyLevel
	PrevDayHigh *KeyLevel
	PrevDayLow  *KeyLevel
}

func NewLevels() *Levels {
	return &Levels{}
}

// Clone returns a deep copy.
func (l *Levels) Clone() *Levels {
	c := &Levels{
		Hour4High: append([]KeyLevel(nil), l.Hour4High...),
		Hour4Low:  append([]KeyLevel(nil), l.Hour4Low...),
		Hour1High: append([]KeyLevel(nil), l.Hour1High...),
		Hour1Low:  append([]KeyLevel(nil), l.Hour1Low...),
	}
	if l.PrevDayHigh != nil {
		v := *l.PrevDayHigh
		c.PrevDayHigh = &v
	}
	if l.PrevDayLow != nil {
		v := *l.PrevDayLow
		c.PrevDayLow = &v
	}
	return c
}

// Count returns the number of recorded levels, previous-day levels included.
func (l *Levels) Count() int {
	n := len(l.Hour4High) + len(l.Hour4Low) + len(l.Hour1High) + len(l.Hour1Low)
	if l.PrevDayHigh != nil {
		n++
	}
	if l.PrevDayLow != nil {
		n++
	}
	return n
}
