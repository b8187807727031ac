package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/flplemos/senac-agenda-central/internal/model"
)

type typeCount struct {
	Type model.EquipmentType
	N    int
}

// EquipmentAvailability counts in-service units and their active
// reservations for one (date, shift). Every type is present in the result.
func (s *GormStore) EquipmentAvailability(ctx context.Context, date datatypes.Date, shift model.Shift) (map[model.EquipmentType]model.UnitCount, error) {
	counts, err := countUnits(s.db.WithContext(ctx), date, shift)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count equipment: %v", model.ErrStore, err)
	}
	return counts, nil
}

func countUnits(tx *gorm.DB, date datatypes.Date, shift model.Shift) (map[model.EquipmentType]model.UnitCount, error) {
	var totals []typeCount
	if err := tx.Model(&model.EquipmentUnit{}).
		Select("type AS type, COUNT(*) AS n").
		Where("available_for_service = ?", true).
		Group("type").
		Scan(&totals).Error; err != nil {
		return nil, err
	}

	// Units taken out of service drop out of both sides of the subtraction.
	var reserved []typeCount
	if err := tx.Table("equipment_reservations AS r").
		Select("e.type AS type, COUNT(*) AS n").
		Joins("JOIN equipment AS e ON e.id = r.equipment_id").
		Where("r.reservation_date = ? AND r.shift = ? AND r.status IN ? AND e.available_for_service = ?",
			date, shift, model.ActiveStatuses, true).
		Group("e.type").
		Scan(&reserved).Error; err != nil {
		return nil, err
	}

	out := make(map[model.EquipmentType]model.UnitCount, len(model.EquipmentTypes))
	for _, t := range model.EquipmentTypes {
		out[t] = model.UnitCount{}
	}
	for _, row := range totals {
		c := out[row.Type]
		c.Total = row.N
		out[row.Type] = c
	}
	for _, row := range reserved {
		c := out[row.Type]
		c.Available = -row.N
		out[row.Type] = c
	}
	for t, c := range out {
		c.Available += c.Total
		if c.Available < 0 {
			c.Available = 0
		}
		out[t] = c
	}
	return out, nil
}

// pickFreeUnit returns the lowest-id in-service unit of type t with no active
// reservation for (date, shift), or nil when every unit is taken.
// The subquery is the set form of conflict.UnitsConflict: a unit is busy when
// an active reservation holds it on the same date and shift.
func pickFreeUnit(tx *gorm.DB, t model.EquipmentType, date datatypes.Date, shift model.Shift) (*model.EquipmentUnit, error) {
	busy := tx.Model(&model.EquipmentReservation{}).
		Select("equipment_id").
		Where("reservation_date = ? AND shift = ? AND status IN ?", date, shift, model.ActiveStatuses)

	var units []model.EquipmentUnit
	if err := tx.Where("type = ? AND available_for_service = ?", t, true).
		Where("id NOT IN (?)", busy).
		Order("id ASC").
		Limit(1).
		Find(&units).Error; err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, nil
	}
	return &units[0], nil
}

// ActiveSpaceReservations lists pending and confirmed bookings on date,
// optionally for one space, ordered by start time.
func (s *GormStore) ActiveSpaceReservations(ctx context.Context, date datatypes.Date, space *model.SpaceType) ([]model.SpaceReservation, error) {
	out, err := activeSpace(s.db.WithContext(ctx), date, space)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load space reservations: %v", model.ErrStore, err)
	}
	return out, nil
}

func activeSpace(tx *gorm.DB, date datatypes.Date, space *model.SpaceType) ([]model.SpaceReservation, error) {
	q := tx.Where("reservation_date = ? AND status IN ?", date, model.ActiveStatuses)
	if space != nil {
		q = q.Where("space_type = ?", *space)
	}
	var out []model.SpaceReservation
	if err := q.Order("start_time ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Stats summarizes reservations overall and for one date.
func (s *GormStore) Stats(ctx context.Context, date datatypes.Date) (Stats, error) {
	db := s.db.WithContext(ctx)
	var st Stats

	var equipmentTotal, spaceTotal int64
	if err := db.Model(&model.EquipmentReservation{}).Count(&equipmentTotal).Error; err != nil {
		return st, fmt.Errorf("%w: failed to count reservations: %v", model.ErrStore, err)
	}
	if err := db.Model(&model.SpaceReservation{}).Count(&spaceTotal).Error; err != nil {
		return st, fmt.Errorf("%w: failed to count reservations: %v", model.ErrStore, err)
	}
	st.TotalReservations = equipmentTotal + spaceTotal

	var equipment []model.EquipmentReservation
	if err := db.Where("reservation_date = ? AND status IN ?", date, model.ActiveStatuses).
		Find(&equipment).Error; err != nil {
		return st, fmt.Errorf("%w: failed to load reservations: %v", model.ErrStore, err)
	}
	spaces, err := activeSpace(db, date, nil)
	if err != nil {
		return st, fmt.Errorf("%w: failed to load reservations: %v", model.ErrStore, err)
	}

	var booked time.Duration
	for _, r := range equipment {
		booked += time.Duration(r.ReturnTime - r.PickupTime)
	}
	for i := range spaces {
		booked += spaces[i].Duration()
	}

	st.EquipmentInUse = int64(len(equipment))
	st.ActiveReservations = int64(len(equipment) + len(spaces))
	st.HoursReserved = booked.Hours()
	return st, nil
}
