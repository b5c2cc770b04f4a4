package session

import (
	"errors"
	"fmt"
	"time"

	"marketstructure/internal/bar"
)

// ErrNaiveTimestamp is returned when a refresh is asked for without an absolute instant.
var ErrNaiveTimestamp = errors.New("session: timestamp must be an absolute UTC instant")

// Tracker keeps at most one live Entity per session definition.
type Tracker struct {
	catalog []Metadata
	active  map[string]*Entity
}

// NewTracker tracks the given definitions, or the fixed catalog when none are given.
func NewTracker(catalog ...Metadata) *Tracker {
	if len(catalog) == 0 {
		catalog = Catalog()
	}
	return &Tracker{
		catalog: catalog,
		active:  make(map[string]*Entity, len(catalog)),
	}
}

// Refresh opens sessions that became active at now and finalizes the ones that
// stopped being active. It returns the finalized entities in catalog order.
func (t *Tracker) Refresh(now time.Time) (opened, closed []*Entity, err error) {
	if now.IsZero() {
		return nil, nil, ErrNaiveTimestamp
	}
	now = now.UTC()

	for _, meta := range t.catalog {
		active, err := meta.IsActive(now)
		if err != nil {
			return opened, closed, fmt.Errorf("session %s: %w", meta.Name, err)
		}

		entity, live := t.active[meta.Name]
		switch {
		case active && !live:
			entity = newEntity(meta, now)
			t.active[meta.Name] = entity
			opened = append(opened, entity)
		case !active && live:
			closeUTC := now
			entity.State.CloseUTC = &closeUTC
			delete(t.active, meta.Name)
			closed = append(closed, entity)
		}
	}
	return opened, closed, nil
}

// Observe updates the running extremes of every active session.
func (t *Tracker) Observe(b bar.Bar) {
	for _, entity := range t.active {
		entity.Observe(b.High, b.Low)
	}
}

// Active returns the live entities in catalog order.
func (t *Tracker) Active() []*Entity {
	out := make([]*Entity, 0, len(t.active))
	for _, meta := range t.catalog {
		if e, ok := t.active[meta.Name]; ok {
			out = append(out, e)
		}
	}
	return out
}
