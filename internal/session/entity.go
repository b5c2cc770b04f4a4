package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the mutable part of a session; every field is unset until observed.
type State struct {
	High     decimal.NullDecimal
	Low      decimal.NullDecimal
	OpenUTC  *time.Time
	CloseUTC *time.Time
}

// Entity is one occurrence of a session on one local calendar day.
type Entity struct {
	ID       uuid.UUID
	Metadata Metadata
	State    State
}

func newEntity(meta Metadata, openUTC time.Time) *Entity {
	return &Entity{
		ID:       uuid.New(),
		Metadata: meta,
		State:    State{OpenUTC: &openUTC},
	}
}

// Observe widens the running high/low with the bar extremes.
func (e *Entity) Observe(high, low decimal.Decimal) {
	if !e.State.High.Valid || high.GreaterThan(e.State.High.Decimal) {
		e.State.High = decimal.NewNullDecimal(high)
	}
	if !e.State.Low.Valid || low.LessThan(e.State.Low.Decimal) {
		e.State.Low = decimal.NewNullDecimal(low)
	}
}
