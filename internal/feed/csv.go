package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"marketstructure/internal/bar"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CSVSource reads DAT_ASCII one-minute files:
//
//	20000619 000100;1.510200;1.510400;1.509900;1.510000;0
//
// The timestamp is the bar open time in UTC; bars are emitted with their close
// time (open + 1m). Rows that do not parse, or that do not advance in time, are
// logged and skipped.
type CSVSource struct {
	file    *os.File
	reader  *csv.Reader
	barType string
	logger  *zap.Logger

	line    int
	last    int64
	skipped int
}

func NewCSVSource(path, barType string, logger *zap.Logger) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv feed: %w", err)
	}
	return newCSVSource(f, barType, logger), nil
}

func newCSVSource(f *os.File, barType string, logger *zap.Logger) *CSVSource {
	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{
		file:    f,
		reader:  r,
		barType: barType,
		logger:  logger.Named("csv"),
	}
}

// Skipped returns the number of rows dropped so far.
func (s *CSVSource) Skipped() int {
	return s.skipped
}

func (s *CSVSource) Next(ctx context.Context) (bar.Bar, error) {
	for {
		if err := ctx.Err(); err != nil {
			return bar.Bar{}, err
		}
		rec, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			return bar.Bar{}, io.EOF
		}
		s.line++
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return bar.Bar{}, fmt.Errorf("read csv feed: %w", err)
			}
			s.skip("unreadable row", err)
			continue
		}

		b, err := parseRow(rec, s.barType)
		if err != nil {
			s.skip("malformed row", err)
			continue
		}
		if b.Timestamp <= s.last {
			s.skip("row does not advance in time", fmt.Errorf("close %s", b.Time()))
			continue
		}
		s.last = b.Timestamp
		return b, nil
	}
}

func (s *CSVSource) skip(reason string, err error) {
	s.skipped++
	s.logger.Warn(reason, zap.Int("line", s.line), zap.Error(err))
}

func (s *CSVSource) Close() error {
	return s.file.Close()
}

func parseRow(rec []string, barType string) (bar.Bar, error) {
	if len(rec) < 5 {
		return bar.Bar{}, fmt.Errorf("expected at least 5 fields, got %d", len(rec))
	}
	openTime, err := parseTimestamp(rec[0])
	if err != nil {
		return bar.Bar{}, err
	}

	var px [4]decimal.Decimal
	for i := range px {
		px[i], err = decimal.NewFromString(strings.TrimSpace(rec[i+1]))
		if err != nil {
			return bar.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	volume := decimal.Zero
	if len(rec) > 5 && strings.TrimSpace(rec[5]) != "" {
		if volume, err = decimal.NewFromString(strings.TrimSpace(rec[5])); err != nil {
			return bar.Bar{}, fmt.Errorf("volume: %w", err)
		}
	}

	b := bar.Bar{
		Type:      barType,
		Open:      px[0],
		High:      px[1],
		Low:       px[2],
		Close:     px[3],
		Volume:    volume,
		Timestamp: openTime.Add(time.Minute).UnixNano(),
	}
	if b.High.LessThan(b.Low) {
		return bar.Bar{}, fmt.Errorf("high %s below low %s", b.High, b.Low)
	}
	return b, nil
}

// parseTimestamp reads "YYYYMMDD HHMMSS" with optional trailing milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	date, clock, ok := strings.Cut(s, " ")
	if !ok || len(date) != 8 || len(clock) < 6 {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	t, err := time.Parse("20060102 150405", date+" "+clock[:6])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	if frac := clock[6:]; frac != "" {
		d, err := time.ParseDuration("0." + frac + "s")
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t = t.Add(d)
	}
	return t.UTC(), nil
}
