package feed

import (
	"context"
	"io"

	"marketstructure/internal/bar"
)

// Source yields base bars in timestamp order. Next returns io.EOF once the
// source is exhausted.
type Source interface {
	Next(ctx context.Context) (bar.Bar, error)
	Close() error
}

// Sink consumes closed bars, base and composite alike.
type Sink interface {
	OnBar(b bar.Bar) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(bar.Bar) error

func (f SinkFunc) OnBar(b bar.Bar) error { return f(b) }

// SliceSource replays bars already held in memory.
type SliceSource struct {
	bars []bar.Bar
	pos  int
}

func NewSliceSource(bars []bar.Bar) *SliceSource {
	return &SliceSource{bars: bars}
}

func (s *SliceSource) Next(ctx context.Context) (bar.Bar, error) {
	if err := ctx.Err(); err != nil {
		return bar.Bar{}, err
	}
	if s.pos >= len(s.bars) {
		return bar.Bar{}, io.EOF
	}
	b := s.bars[s.pos]
	s.pos++
	return b, nil
}

func (s *SliceSource) Close() error { return nil }
