package model

import (
	"time"

	"gorm.io/datatypes"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
)

// ActiveStatuses are the statuses that hold a resource.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusConfirmed}

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the reservation still holds its resource.
func (s ReservationStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// AllowedSources returns the statuses from which target may be reached.
//
//	pending -> confirmed -> completed
//	pending | confirmed -> cancelled
func AllowedSources(target ReservationStatus) []ReservationStatus {
	switch target {
	case StatusConfirmed:
		return []ReservationStatus{StatusPending}
	case StatusCompleted:
		return []ReservationStatus{StatusConfirmed}
	case StatusCancelled:
		return []ReservationStatus{StatusPending, StatusConfirmed}
	}
	return nil
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to ReservationStatus) bool {
	for _, s := range AllowedSources(to) {
		if s == from {
			return true
		}
	}
	return false
}

// Shift is one of the three fixed daily lending windows.
type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftNight     Shift = "night"
)

// Shifts lists every shift in chronological order.
var Shifts = []Shift{ShiftMorning, ShiftAfternoon, ShiftNight}

// Valid reports whether s is a known shift.
func (s Shift) Valid() bool {
	return s == ShiftMorning || s == ShiftAfternoon || s == ShiftNight
}

// EquipmentReservation claims one unit for one shift on one date.
// The partial unique index enforces a single active claim per (unit, date, shift).
type EquipmentReservation struct {
	ID              string            `gorm:"primaryKey;size:36"`
	EquipmentID     string            `gorm:"size:64;not null;uniqueIndex:idx_equipment_slot_active,where:status <> 'cancelled' AND status <> 'completed'"`
	UserID          string            `gorm:"size:64;not null;index"`
	ReservationDate datatypes.Date    `gorm:"not null;index;uniqueIndex:idx_equipment_slot_active,where:status <> 'cancelled' AND status <> 'completed'"`
	Shift           Shift             `gorm:"type:varchar(16);not null;uniqueIndex:idx_equipment_slot_active,where:status <> 'cancelled' AND status <> 'completed'"`
	PickupTime      datatypes.Time    `gorm:"not null"`
	ReturnTime      datatypes.Time    `gorm:"not null"`
	Purpose         string            `gorm:"size:255;not null"`
	Status          ReservationStatus `gorm:"type:varchar(16);not null;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Associations
	Equipment *EquipmentUnit `gorm:"foreignKey:EquipmentID;constraint:OnDelete:RESTRICT"`
}

// SpaceReservation claims a space for a wall-clock range on one date.
type SpaceReservation struct {
	ID              string                      `gorm:"primaryKey;size:36"`
	SpaceType       SpaceType                   `gorm:"type:varchar(16);not null;index:idx_space_day"`
	UserID          string                      `gorm:"size:64;not null;index"`
	ReservationDate datatypes.Date              `gorm:"not null;index:idx_space_day"`
	StartTime       datatypes.Time              `gorm:"not null"`
	EndTime         datatypes.Time              `gorm:"not null"`
	GroupSize       int                         `gorm:"not null"`
	GroupMembers    datatypes.JSONSlice[string] `gorm:"not null"`
	Purpose         string                      `gorm:"size:255;not null"`
	Status          ReservationStatus           `gorm:"type:varchar(16);not null;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration is the booked length of the space.
func (r *SpaceReservation) Duration() time.Duration {
	return time.Duration(r.EndTime - r.StartTime)
}

// IdempotencyKey remembers which reservation a client token produced.
type IdempotencyKey struct {
	Token         string    `gorm:"primaryKey;size:128"`
	UserID        string    `gorm:"size:64;not null"`
	Kind          string    `gorm:"size:16;not null"`
	RequestHash   string    `gorm:"size:64;not null"`
	ReservationID string    `gorm:"size:36;not null"`
	CreatedAt     time.Time `gorm:"not null;index"`
}
