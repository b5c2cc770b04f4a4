package history

import (
	"github.com/google/uuid"

	"marketstructure/internal/confluence"
	"marketstructure/internal/keylevel"
	"marketstructure/internal/session"
)

// History is the run-long record: finalized sessions plus one key-level and one
// confluence snapshot per day boundary. All three sequences only grow.
type History struct {
	Sessions         []*session.Entity
	DailyKeyLevels   []*keylevel.Levels
	DailyConfluences []confluence.Book

	ids map[uuid.UUID]struct{}
}

func New() *History {
	return &History{ids: make(map[uuid.UUID]struct{})}
}

// AddSession appends a finalized session unless one with the same ID is already recorded.
func (h *History) AddSession(e *session.Entity) bool {
	if h.ids == nil {
		h.reindex()
	}
	if _, ok := h.ids[e.ID]; ok {
		return false
	}
	h.ids[e.ID] = struct{}{}
	h.Sessions = append(h.Sessions, e)
	return true
}

// AppendDay archives one finished day.
func (h *History) AppendDay(levels *keylevel.Levels, book confluence.Book) {
	h.DailyKeyLevels = append(h.DailyKeyLevels, levels)
	h.DailyConfluences = append(h.DailyConfluences, book)
}

func (h *History) reindex() {
	h.ids = make(map[uuid.UUID]struct{}, len(h.Sessions))
	for _, e := range h.Sessions {
		h.ids[e.ID] = struct{}{}
	}
}

// Summary counts what the history holds.
type Summary struct {
	Sessions  int
	Days      int
	KeyLevels int
	FVGs      int
}

func (h *History) Summary() Summary {
	s := Summary{Sessions: len(h.Sessions), Days: len(h.DailyKeyLevels)}
	for _, l := range h.DailyKeyLevels {
		s.KeyLevels += l.Count()
	}
	for _, b := range h.DailyConfluences {
		s.FVGs += b.Count()
	}
	return s
}
