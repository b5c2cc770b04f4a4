package feed

import (
	"context"
	"fmt"
	"io"
	"time"

	"marketstructure/internal/bar"
	"marketstructure/pkg/storage/postgres"
)

// BarLister is the part of the Postgres client a DBSource reads from.
type BarLister interface {
	ListBars(ctx context.Context, instrument, timeframe string, start, end time.Time) ([]postgres.BarRecord, error)
}

// DBSource replays bars previously stored for an instrument, oldest first.
type DBSource struct {
	db         BarLister
	instrument string
	timeframe  string
	barType    string
	start, end time.Time

	records []postgres.BarRecord
	loaded  bool
	pos     int
}

func NewDBSource(db BarLister, instrument, timeframe, barType string, start, end time.Time) *DBSource {
	return &DBSource{
		db:         db,
		instrument: instrument,
		timeframe:  timeframe,
		barType:    barType,
		start:      start,
		end:        end,
	}
}

func (s *DBSource) Next(ctx context.Context) (bar.Bar, error) {
	if err := ctx.Err(); err != nil {
		return bar.Bar{}, err
	}
	if !s.loaded {
		records, err := s.db.ListBars(ctx, s.instrument, s.timeframe, s.start, s.end)
		if err != nil {
			return bar.Bar{}, fmt.Errorf("list stored bars: %w", err)
		}
		s.records = records
		s.loaded = true
	}
	if s.pos >= len(s.records) {
		return bar.Bar{}, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec.ToBar(s.barType), nil
}

func (s *DBSource) Close() error { return nil }
