package model

// Tables lists every model managed by AutoMigrate, parents first.
func Tables() []any {
	return []any{
		&EquipmentUnit{},
		&EquipmentReservation{},
		&SpaceReservation{},
		&IdempotencyKey{},
		&PushSubscription{},
		&SlotWatch{},
	}
}
