package session

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

// TimeOfDay is a local wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseTimeOfDay accepts "HH:MM:SS" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if v, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: v.Hour(), Minute: v.Minute(), Second: v.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day: %q", s)
}

// Metadata is the static definition of a trading session.
type Metadata struct {
	Name  string
	TZ    string
	Open  TimeOfDay
	Close TimeOfDay
}

var (
	Tokyo   = Metadata{Name: "Tokyo", TZ: "Asia/Tokyo", Open: TimeOfDay{Hour: 9}, Close: TimeOfDay{Hour: 18}}
	London  = Metadata{Name: "London", TZ: "Europe/London", Open: TimeOfDay{Hour: 8}, Close: TimeOfDay{Hour: 16}}
	NewYork = Metadata{Name: "New York", TZ: "America/New_York", Open: TimeOfDay{Hour: 8}, Close: TimeOfDay{Hour: 17}}
)

// Catalog returns the fixed session definitions.
func Catalog() []Metadata {
	return []Metadata{Tokyo, London, NewYork}
}

var (
	locMu sync.Mutex
	locs  = map[string]*time.Location{}
)

func location(name string) (*time.Location, error) {
	locMu.Lock()
	defer locMu.Unlock()

	if loc, ok := locs[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %s: %w", name, err)
	}
	locs[name] = loc
	return loc, nil
}

// OpenCloseFor returns the session's open and close in UTC for the local
// calendar day that now falls on in the session's timezone.
func (m Metadata) OpenCloseFor(now time.Time) (time.Time, time.Time, error) {
	if now.IsZero() {
		return time.Time{}, time.Time{}, ErrNaiveTimestamp
	}
	loc, err := location(m.TZ)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	local := now.In(loc)
	y, mo, d := local.Date()
	openLocal := time.Date(y, mo, d, m.Open.Hour, m.Open.Minute, m.Open.Second, 0, loc)
	closeLocal := time.Date(y, mo, d, m.Close.Hour, m.Close.Minute, m.Close.Second, 0, loc)
	return openLocal.UTC(), closeLocal.UTC(), nil
}

// IsActive reports whether open <= now < close for today's window.
func (m Metadata) IsActive(now time.Time) (bool, error) {
	openUTC, closeUTC, err := m.OpenCloseFor(now)
	if err != nil {
		return false, err
	}
	return !now.Before(openUTC) && now.Before(closeUTC), nil
}
