// Package conflict decides whether two reservations compete for the same resource.
// All ranges are half-open, so back-to-back bookings never conflict.
package conflict

import (
	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
)

// Overlap reports whether [s1, e1) and [s2, e2) share any instant.
func Overlap(s1, e1, s2, e2 datatypes.Time) bool {
	return s1 < e2 && s2 < e1
}

// UnitsConflict reports whether two equipment reservations hold the same unit in the same shift.
// The store's free-unit query applies the same predicate in SQL.
func UnitsConflict(a, b *model.EquipmentReservation) bool {
	return a.EquipmentID == b.EquipmentID &&
		schedule.SameDate(a.ReservationDate, b.ReservationDate) &&
		a.Shift == b.Shift &&
		a.Status.IsActive() && b.Status.IsActive()
}

// RangesOverlap reports whether two space reservations overlap on the same space and date.
func RangesOverlap(a, b *model.SpaceReservation) bool {
	return a.SpaceType == b.SpaceType &&
		schedule.SameDate(a.ReservationDate, b.ReservationDate) &&
		a.Status.IsActive() && b.Status.IsActive() &&
		Overlap(a.StartTime, a.EndTime, b.StartTime, b.EndTime)
}

// FindOverlap returns the first existing reservation that overlaps candidate, or nil.
func FindOverlap(candidate *model.SpaceReservation, existing []model.SpaceReservation) *model.SpaceReservation {
	for i := range existing {
		if existing[i].ID == candidate.ID {
			continue
		}
		if RangesOverlap(candidate, &existing[i]) {
			return &existing[i]
		}
	}
	return nil
}
