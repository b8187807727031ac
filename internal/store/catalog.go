package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/parse"
)

// ListEquipmentUnits returns all units, optionally of a single type, ordered by id.
func (s *GormStore) ListEquipmentUnits(ctx context.Context, t *model.EquipmentType) ([]model.EquipmentUnit, error) {
	q := s.db.WithContext(ctx).Order("id ASC")
	if t != nil {
		q = q.Where("type = ?", *t)
	}
	var units []model.EquipmentUnit
	if err := q.Find(&units).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to list equipment: %v", model.ErrStore, err)
	}
	return units, nil
}

// IsSpaceDefined reports whether the space exists. Spaces are fixed singletons.
func (s *GormStore) IsSpaceDefined(space model.SpaceType) bool {
	return space.Valid()
}

// UpsertInventory applies an upstream inventory snapshot and returns the
// number of units written. Unit types never change once stored.
func (s *GormStore) UpsertInventory(ctx context.Context, items []InventoryItem) (int, error) {
	existing, err := s.fetchAllUnits(ctx)
	if err != nil {
		s.log.Warn("could not pre-fetch equipment", zap.Error(err))
		existing = make(map[string]model.EquipmentUnit)
	}

	var unitsToUpsert []model.EquipmentUnit
	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			s.log.Warn("skipping inventory item without id", zap.String("identifier", item.Identifier))
			continue
		}
		unitType, err := parse.EquipmentType(item.Type, item.Identifier)
		if err != nil {
			s.log.Warn("skipping inventory item", zap.String("id", item.ID), zap.Error(err))
			continue
		}

		unit, needsUpsert := prepareUnit(item, unitType, existing)
		if old, ok := existing[unit.ID]; ok && old.Type != unitType {
			s.log.Warn("upstream changed equipment type; keeping stored type",
				zap.String("id", unit.ID), zap.String("stored", string(old.Type)), zap.String("upstream", string(unitType)))
		}
		if needsUpsert {
			unitsToUpsert = append(unitsToUpsert, unit)
		}
	}

	if len(unitsToUpsert) == 0 {
		return 0, nil
	}

	s.log.Info("batch upserting equipment", zap.Int("count", len(unitsToUpsert)))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return batchUpsertUnits(tx, unitsToUpsert)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: batch upsert equipment failed: %v", model.ErrStore, err)
	}
	return len(unitsToUpsert), nil
}

func (s *GormStore) fetchAllUnits(ctx context.Context) (map[string]model.EquipmentUnit, error) {
	var units []model.EquipmentUnit
	if err := s.db.WithContext(ctx).Find(&units).Error; err != nil {
		return nil, err
	}
	unitMap := make(map[string]model.EquipmentUnit, len(units))
	for _, u := range units {
		unitMap[u.ID] = u
	}
	return unitMap, nil
}

func prepareUnit(item InventoryItem, unitType model.EquipmentType, existing map[string]model.EquipmentUnit) (model.EquipmentUnit, bool) {
	identifier := strings.TrimSpace(item.Identifier)
	if parsed, err := parse.ParseIdentifier(identifier); err == nil {
		identifier = parsed.String()
	}
	available := true
	if item.IsAvailable != nil {
		available = *item.IsAvailable
	}

	newUnit := model.EquipmentUnit{
		ID:                  item.ID,
		Identifier:          identifier,
		Type:                unitType,
		AvailableForService: available,
		LastMaintenanceAt:   item.LastMaintenanceParsed,
	}

	if oldUnit, exists := existing[newUnit.ID]; exists {
		newUnit.Type = oldUnit.Type
		if oldUnit.Identifier == newUnit.Identifier &&
			oldUnit.AvailableForService == newUnit.AvailableForService &&
			sameInstant(oldUnit.LastMaintenanceAt, newUnit.LastMaintenanceAt) {
			return newUnit, false
		}
	}
	return newUnit, true
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func batchUpsertUnits(tx *gorm.DB, units []model.EquipmentUnit) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"identifier", "available_for_service", "last_maintenance_at", "updated_at"}),
	}).Create(&units).Error
}
