package model

import "time"

// EquipmentType is the category of a lendable unit.
type EquipmentType string

const (
	EquipmentTablet    EquipmentType = "tablet"
	EquipmentNotebook  EquipmentType = "notebook"
	EquipmentVRHeadset EquipmentType = "vr_headset"
)

// EquipmentTypes lists every known type in display order.
var EquipmentTypes = []EquipmentType{EquipmentTablet, EquipmentNotebook, EquipmentVRHeadset}

// Valid reports whether t is a known equipment type.
func (t EquipmentType) Valid() bool {
	switch t {
	case EquipmentTablet, EquipmentNotebook, EquipmentVRHeadset:
		return true
	}
	return false
}

// EquipmentUnit represents a physical, individually tracked item.
type EquipmentUnit struct {
	ID                  string        `gorm:"primaryKey;size:64"` // Upstream inventory ID
	Identifier          string        `gorm:"uniqueIndex;size:64;not null"`
	Type                EquipmentType `gorm:"type:varchar(16);index;not null"`
	AvailableForService bool          `gorm:"not null"`
	LastMaintenanceAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName keeps the inventory table name stable.
func (EquipmentUnit) TableName() string {
	return "equipment"
}

// UnitCount is the availability of one equipment type for one (date, shift).
type UnitCount struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}
