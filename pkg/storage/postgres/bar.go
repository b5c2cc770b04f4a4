package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketstructure/internal/bar"

	"gorm.io/gorm/clause"
)

// ErrDuplicateBar is returned by InsertBar when the row already exists.
var ErrDuplicateBar = errors.New("duplicate bar skipped")

func (p *PostgresClient) InsertBar(ctx context.Context, record *BarRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "instrument"},
			{Name: "timeframe"},
			{Name: "timestamp"},
		},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: instrument=%s timeframe=%s timestamp=%s",
			ErrDuplicateBar, record.Instrument, record.Timeframe, record.Timestamp.Format(time.RFC3339))
	}

	return nil
}

// ListBars returns the bars of one instrument and timeframe closing within
// [start, end), oldest first. A zero bound is open.
func (p *PostgresClient) ListBars(ctx context.Context, instrument, timeframe string, start, end time.Time) ([]BarRecord, error) {
	q := p.DB.WithContext(ctx).
		Where("instrument = ? AND timeframe = ?", instrument, timeframe)
	if !start.IsZero() {
		q = q.Where("timestamp >= ?", start)
	}
	if !end.IsZero() {
		q = q.Where("timestamp < ?", end)
	}

	var records []BarRecord
	if err := q.Order("timestamp asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ToBarRecord converts a bar of the given instrument and timeframe for DB insertion.
func ToBarRecord(instrument, timeframe string, b bar.Bar) *BarRecord {
	return &BarRecord{
		Instrument: instrument,
		Timeframe:  timeframe,
		Timestamp:  b.Time(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
	}
}

// ToBar converts a stored record back into a bar of barType.
func (r BarRecord) ToBar(barType string) bar.Bar {
	return bar.Bar{
		Type:      barType,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		Timestamp: r.Timestamp.UTC().UnixNano(),
	}
}
