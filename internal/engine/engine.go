package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketstructure/config"
	"marketstructure/internal/bar"
	"marketstructure/internal/confluence"
	"marketstructure/internal/history"
	"marketstructure/internal/keylevel"
	"marketstructure/internal/memorystore"
	"marketstructure/internal/session"
	"marketstructure/internal/timeframe"

	"go.uber.org/zap"
)

var (
	ErrUnknownBarType = errors.New("engine: bar type not configured")
	ErrOutOfOrder     = errors.New("engine: bar timestamp older than the previous bar")
)

// Clock supplies the current UTC time for session refreshes.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type Option func(*Engine)

// WithClock replaces the default clock, which reports the close time of the
// bar being processed.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// Engine routes bars by timeframe into the session tracker, the swing detector
// and the gap detector, and archives one snapshot per day boundary.
// It is not safe for concurrent use; a single caller owns it.
type Engine struct {
	cfg    config.EngineConfig
	logger *zap.Logger
	clock  Clock

	registry *timeframe.Registry
	bars     *memorystore.MemoryBarStore
	lastTs   map[string]int64
	current  int64

	sessions *session.Tracker
	detector *keylevel.Detector
	book     confluence.Book
	history  *history.History
}

func New(cfg config.EngineConfig, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger.Named("engine"),
		registry: timeframe.NewRegistry(cfg.Instrument),
		bars:     memorystore.NewBarStore(cfg.BarCapacity),
		lastTs:   make(map[string]int64),
		sessions: session.NewTracker(),
		detector: keylevel.NewDetector(),
		book:     confluence.NewBook(),
		history:  history.New(),
	}
	e.clock = ClockFunc(func() time.Time {
		if e.current == 0 {
			return time.Time{}
		}
		return time.Unix(0, e.current).UTC()
	})
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Registry exposes the bar identities the engine accepts.
func (e *Engine) Registry() *timeframe.Registry {
	return e.registry
}

// OnBar ingests one closed bar. Bars must arrive in non-decreasing timestamp
// order per bar type and belong to the configured instrument.
func (e *Engine) OnBar(b bar.Bar) error {
	tf, ok := e.registry.Lookup(b.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBarType, b.Type)
	}
	if last, seen := e.lastTs[b.Type]; seen && b.Timestamp < last {
		return fmt.Errorf("%w: %s at %d after %d", ErrOutOfOrder, b.Type, b.Timestamp, last)
	}
	e.lastTs[b.Type] = b.Timestamp
	e.current = b.Timestamp
	e.bars.Add(b)

	switch tf {
	case timeframe.OneMinute:
		if e.cfg.SessionSource == config.SessionSourceMinute {
			e.sessions.Observe(b)
		}
	case timeframe.OneHour:
		return e.onHourly(b)
	case timeframe.FourHour:
		e.recordLevels(e.detector.Observe(tf, b))
	case timeframe.OneDay:
		e.AdvanceDay(b)
	}
	return nil
}

func (e *Engine) onHourly(b bar.Bar) error {
	if err := e.Refresh(e.clock.Now()); err != nil {
		return err
	}
	if e.cfg.SessionSource == config.SessionSourceHour {
		e.sessions.Observe(b)
	}

	window := e.bars.Last(b.Type, e.cfg.FVGWindow)
	if n := e.book.Detect(timeframe.OneHour, window); n > 0 {
		e.logger.Debug("fair value gaps detected",
			zap.String("timeframe", timeframe.OneHour.String()),
			zap.Int("new", n),
			zap.Int("total", e.book[timeframe.OneHour].Len()))
	}

	e.recordLevels(e.detector.Observe(timeframe.OneHour, b))
	return nil
}

func (e *Engine) recordLevels(levels []keylevel.KeyLevel) {
	for _, l := range levels {
		e.logger.Debug("key level detected",
			zap.String("name", l.Name),
			zap.String("price", l.Price.String()),
			zap.Time("origin", time.Unix(0, l.Timestamp).UTC()))
	}
}

// Refresh opens and finalizes sessions for now. Finalized sessions move into the history.
func (e *Engine) Refresh(now time.Time) error {
	opened, closed, err := e.sessions.Refresh(now)
	if err != nil {
		return fmt.Errorf("refresh sessions: %w", err)
	}
	for _, s := range opened {
		e.logger.Info("session opened", zap.String("session", s.Metadata.Name), zap.Time("open_utc", *s.State.OpenUTC))
	}
	for _, s := range closed {
		if e.history.AddSession(s) {
			fields := []zap.Field{
				zap.String("session", s.Metadata.Name),
				zap.Time("close_utc", *s.State.CloseUTC),
				zap.Bool("observed", s.State.High.Valid),
			}
			if s.State.High.Valid {
				fields = append(fields,
					zap.String("high", s.State.High.Decimal.String()),
					zap.String("low", s.State.Low.Decimal.String()))
			}
			e.logger.Info("session closed", fields...)
		}
	}
	return nil
}

// AdvanceDay archives today's key levels and confluences together and starts a
// new day. The daily bar that triggered it supplies the new day's PDH and PDL.
func (e *Engine) AdvanceDay(daily bar.Bar) {
	finished := e.detector.Rollover(daily)
	book := e.book
	e.book = confluence.NewBook()
	e.history.AppendDay(finished, book)

	e.logger.Info("day archived",
		zap.Time("daily_bar", daily.Time()),
		zap.Int("key_levels", finished.Count()),
		zap.Int("fvgs", book.Count()),
		zap.Int("days", len(e.history.DailyKeyLevels)))
}

// Snapshot is a copy of the live "today" state.
type Snapshot struct {
	KeyLevels      *keylevel.Levels
	Confluences    confluence.Book
	ActiveSessions []session.Entity
}

func (e *Engine) Live() Snapshot {
	active := e.sessions.Active()
	s := Snapshot{
		KeyLevels:      e.detector.Levels().Clone(),
		Confluences:    e.book.Snapshot(),
		ActiveSessions: make([]session.Entity, 0, len(active)),
	}
	for _, a := range active {
		s.ActiveSessions = append(s.ActiveSessions, *a)
	}
	return s
}

func (e *Engine) History() *history.History {
	return e.history
}

// BarCount returns the number of bars held in the engine's window.
func (e *Engine) BarCount() int {
	return e.bars.CountAll()
}

// LoadHistory replaces the history with the stored one. On failure the engine
// is left with an empty history.
func (e *Engine) LoadHistory(ctx context.Context, store history.Store) error {
	h, err := store.Load(ctx)
	if err != nil {
		e.history = history.New()
		return err
	}
	e.history = h
	sum := h.Summary()
	e.logger.Info("history loaded", zap.Int("sessions", sum.Sessions), zap.Int("days", sum.Days))
	return nil
}

// Shutdown persists the history. Active sessions are not finalized.
func (e *Engine) Shutdown(ctx context.Context, store history.Store) error {
	if err := store.Save(ctx, e.history); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	sum := e.history.Summary()
	e.logger.Info("history persisted",
		zap.Int("sessions", sum.Sessions),
		zap.Int("days", sum.Days),
		zap.Int("key_levels", sum.KeyLevels),
		zap.Int("fvgs", sum.FVGs))
	return nil
}
