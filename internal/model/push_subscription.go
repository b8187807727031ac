package model

import (
	"time"

	"gorm.io/datatypes"
)

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	UserID    string    `gorm:"size:64;index"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Watches []SlotWatch `gorm:"foreignKey:Endpoint;references:Endpoint;constraint:OnDelete:CASCADE"`
}

// SlotWatch asks for a push message once a slot frees up.
// Shift is empty for space watches.
type SlotWatch struct {
	ID              int64          `gorm:"primaryKey"`
	Endpoint        string         `gorm:"index;not null"`
	Kind            ResourceKind   `gorm:"type:varchar(16);not null;index:idx_watch_slot"`
	Resource        string         `gorm:"size:16;not null;index:idx_watch_slot"`
	ReservationDate datatypes.Date `gorm:"not null;index:idx_watch_slot"`
	Shift           Shift          `gorm:"type:varchar(16)"`
	CreatedAt       time.Time      `gorm:"not null"`
}

// ResourceKind separates equipment slots from space slots.
type ResourceKind string

const (
	KindEquipment ResourceKind = "equipment"
	KindSpace     ResourceKind = "space"
)

// SlotKey names a resource slot that became free.
type SlotKey struct {
	Kind     ResourceKind
	Resource string
	Date     datatypes.Date
	Shift    Shift
}

// String renders the key as used in locks and logs.
func (k SlotKey) String() string {
	s := string(k.Kind) + ":" + k.Resource + ":" + time.Time(k.Date).Format("2006-01-02")
	if k.Shift != "" {
		s += ":" + string(k.Shift)
	}
	return s
}
