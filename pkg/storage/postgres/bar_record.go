package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// BarRecord represents a closed bar stored in the database.
type BarRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Instrument string    `gorm:"type:text;not null;index:idx_instrument_timeframe_ts,unique"`
	Timeframe  string    `gorm:"type:varchar(16);not null;index:idx_instrument_timeframe_ts,unique"`
	Timestamp  time.Time `gorm:"not null;index:idx_instrument_timeframe_ts,unique"` // bar close time

	Open   decimal.Decimal `gorm:"type:numeric;not null"`
	High   decimal.Decimal `gorm:"type:numeric;not null"`
	Low    decimal.Decimal `gorm:"type:numeric;not null"`
	Close  decimal.Decimal `gorm:"type:numeric;not null"`
	Volume decimal.Decimal `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (BarRecord) TableName() string {
	return "bar_record"
}

// HistoryRecord is one saved history document of a run.
type HistoryRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     string    `gorm:"type:text;not null;index:idx_history_run_created"`
	CreatedAt time.Time `gorm:"not null;index:idx_history_run_created"`
	Document  string    `gorm:"type:text;not null"`
}

func (HistoryRecord) TableName() string {
	return "history_record"
}
