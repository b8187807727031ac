package booking

import (
	"context"

	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/conflict"
	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

// Calculator derives availability from the active reservation set.
// It only reads.
type Calculator struct {
	ledger store.Ledger
}

// NewCalculator creates a calculator over the ledger.
func NewCalculator(ledger store.Ledger) *Calculator {
	return &Calculator{ledger: ledger}
}

// EquipmentAvailability returns total and free units per type for (date, shift).
func (c *Calculator) EquipmentAvailability(ctx context.Context, date datatypes.Date, shift model.Shift) (map[model.EquipmentType]model.UnitCount, error) {
	return c.ledger.EquipmentAvailability(ctx, date, shift)
}

// SpaceAvailability is the coarse daily flag: a space is unavailable once any
// active reservation exists for it on date.
func (c *Calculator) SpaceAvailability(ctx context.Context, date datatypes.Date) (map[model.SpaceType]bool, error) {
	active, err := c.ledger.ActiveSpaceReservations(ctx, date, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[model.SpaceType]bool, len(model.SpaceTypes))
	for _, s := range model.SpaceTypes {
		out[s] = true
	}
	for _, r := range active {
		out[r.SpaceType] = false
	}
	return out, nil
}

// SpaceRangeAvailable reports whether [start, end) overlaps no active booking.
func (c *Calculator) SpaceRangeAvailable(ctx context.Context, space model.SpaceType, date datatypes.Date, start, end datatypes.Time) (bool, error) {
	active, err := c.ledger.ActiveSpaceReservations(ctx, date, &space)
	if err != nil {
		return false, err
	}
	candidate := &model.SpaceReservation{
		SpaceType:       space,
		ReservationDate: date,
		StartTime:       start,
		EndTime:         end,
		Status:          model.StatusPending,
	}
	return conflict.FindOverlap(candidate, active) == nil, nil
}
