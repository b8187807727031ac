package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/flplemos/senac-agenda-central/internal/conflict"
	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
)

const maxCommitAttempts = 3

// commit runs fn as the critical section for key: in-process key lock,
// database transaction, then a cross-process advisory lock inside it.
// The whole section is bounded by the commit timeout.
func (s *GormStore) commit(ctx context.Context, key string, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.commitTimeout)
	defer cancel()

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: waiting for %s: %v", model.ErrStore, key, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := advisoryLock(tx, key); err != nil {
				return err
			}
			return fn(tx)
		})
		if err == nil {
			return nil
		}
		if attempt < maxCommitAttempts && ctx.Err() == nil && isRetryable(err) {
			s.log.Warn("retrying reservation commit", zap.String("key", key), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		return classify(err)
	}
}

// ReserveEquipment atomically assigns the lowest-id free unit of the requested
// type for (date, shift), or fails with ErrNoUnitsAvailable.
func (s *GormStore) ReserveEquipment(ctx context.Context, req EquipmentCommit) (*model.EquipmentReservation, error) {
	window, err := schedule.ShiftWindow(req.Shift)
	if err != nil {
		return nil, err
	}

	var out *model.EquipmentReservation
	err = s.commit(ctx, req.Slot().String(), func(tx *gorm.DB) error {
		if req.Token != "" {
			id, err := replayToken(tx, req.Token, req.UserID, model.KindEquipment, req.Hash())
			if err != nil {
				return err
			}
			if id != "" {
				var existing model.EquipmentReservation
				if err := tx.Preload("Equipment").Take(&existing, "id = ?", id).Error; err != nil {
					return err
				}
				out = &existing
				return nil
			}
		}

		counts, err := countUnits(tx, req.Date, req.Shift)
		if err != nil {
			return err
		}
		if counts[req.Type].Available <= 0 {
			return model.ErrNoUnitsAvailable
		}

		unit, err := pickFreeUnit(tx, req.Type, req.Date, req.Shift)
		if err != nil {
			return err
		}
		if unit == nil {
			return model.ErrNoUnitsAvailable
		}

		res := &model.EquipmentReservation{
			ID:              uuid.NewString(),
			EquipmentID:     unit.ID,
			UserID:          req.UserID,
			ReservationDate: req.Date,
			Shift:           req.Shift,
			PickupTime:      window.Start,
			ReturnTime:      window.End,
			Purpose:         strings.TrimSpace(req.Purpose),
			Status:          s.initialStatus,
		}
		if err := tx.Create(res).Error; err != nil {
			if isConstraintViolation(err) {
				return model.Race(model.ErrNoUnitsAvailable)
			}
			return err
		}
		if req.Token != "" {
			if err := rememberToken(tx, req.Token, req.UserID, model.KindEquipment, req.Hash(), res.ID); err != nil {
				return err
			}
		}
		res.Equipment = unit
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("equipment reserved",
		zap.String("reservation_id", out.ID),
		zap.String("equipment_id", out.EquipmentID),
		zap.String("user_id", out.UserID),
		zap.String("slot", req.Slot().String()))
	return out, nil
}

// ReserveSpace atomically books a space range that overlaps no active booking.
func (s *GormStore) ReserveSpace(ctx context.Context, req SpaceCommit) (*model.SpaceReservation, error) {
	var out *model.SpaceReservation
	err := s.commit(ctx, req.Slot().String(), func(tx *gorm.DB) error {
		if req.Token != "" {
			id, err := replayToken(tx, req.Token, req.UserID, model.KindSpace, req.Hash())
			if err != nil {
				return err
			}
			if id != "" {
				var existing model.SpaceReservation
				if err := tx.Take(&existing, "id = ?", id).Error; err != nil {
					return err
				}
				out = &existing
				return nil
			}
		}

		res := &model.SpaceReservation{
			ID:              uuid.NewString(),
			SpaceType:       req.Space,
			UserID:          req.UserID,
			ReservationDate: req.Date,
			StartTime:       req.Start,
			EndTime:         req.End,
			GroupSize:       req.GroupSize,
			GroupMembers:    datatypes.JSONSlice[string](req.GroupMembers),
			Purpose:         strings.TrimSpace(req.Purpose),
			Status:          s.initialStatus,
		}

		existing, err := activeSpace(tx, req.Date, &req.Space)
		if err != nil {
			return err
		}
		if hit := conflict.FindOverlap(res, existing); hit != nil {
			return fmt.Errorf("%w (%s-%s)", model.ErrSpaceConflict, hit.StartTime, hit.EndTime)
		}

		if err := tx.Create(res).Error; err != nil {
			if isConstraintViolation(err) {
				return model.Race(model.ErrSpaceConflict)
			}
			return err
		}
		if req.Token != "" {
			if err := rememberToken(tx, req.Token, req.UserID, model.KindSpace, req.Hash(), res.ID); err != nil {
				return err
			}
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("space reserved",
		zap.String("reservation_id", out.ID),
		zap.String("user_id", out.UserID),
		zap.String("slot", req.Slot().String()))
	return out, nil
}

func replayToken(tx *gorm.DB, token, userID string, kind model.ResourceKind, hash string) (string, error) {
	var rec model.IdempotencyKey
	err := tx.Where(&model.IdempotencyKey{Token: token}).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if rec.UserID != userID || rec.Kind != string(kind) || rec.RequestHash != hash {
		return "", model.Validationf("idempotency key %q was already used for a different request", token)
	}
	return rec.ReservationID, nil
}

func rememberToken(tx *gorm.DB, token, userID string, kind model.ResourceKind, hash, reservationID string) error {
	err := tx.Create(&model.IdempotencyKey{
		Token:         token,
		UserID:        userID,
		Kind:          string(kind),
		RequestHash:   hash,
		ReservationID: reservationID,
	}).Error
	if err != nil && isConstraintViolation(err) {
		return model.Validationf("idempotency key %q is already in use", token)
	}
	return err
}

// LookupIdempotent returns the reservation a token already produced, or nil.
func (s *GormStore) LookupIdempotent(ctx context.Context, token, userID string, kind model.ResourceKind, hash string) (*Reservation, error) {
	if token == "" {
		return nil, nil
	}
	db := s.db.WithContext(ctx)
	id, err := replayToken(db, token, userID, kind, hash)
	if err != nil {
		return nil, classify(err)
	}
	if id == "" {
		return nil, nil
	}
	r, err := findReservation(db, id)
	if err != nil {
		return nil, classify(err)
	}
	return r, nil
}

// Transition moves a reservation along the status machine. The update is
// guarded on the current status so concurrent transitions cannot both win.
func (s *GormStore) Transition(ctx context.Context, id string, target model.ReservationStatus) (*Reservation, error) {
	if len(model.AllowedSources(target)) == 0 {
		return nil, fmt.Errorf("%w: nothing moves to %q", model.ErrInvalidTransition, target)
	}

	var out *Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := findReservation(tx, id)
		if err != nil {
			return err
		}
		if err := updateStatus(tx, current, target); err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	s.log.Info("reservation status changed",
		zap.String("reservation_id", id),
		zap.String("kind", string(out.Kind)),
		zap.String("status", string(target)))
	return out, nil
}

func updateStatus(tx *gorm.DB, r *Reservation, target model.ReservationStatus) error {
	from := r.Status()
	if !model.CanTransition(from, target) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, target)
	}
	result := tx.Model(r.stub()).
		Where("status IN ?", model.AllowedSources(target)).
		Updates(map[string]any{"status": target})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: reservation %s changed concurrently", model.ErrInvalidTransition, r.ID())
	}
	r.setStatus(target)
	return nil
}

// GetReservation loads a reservation of either kind.
func (s *GormStore) GetReservation(ctx context.Context, id string) (*Reservation, error) {
	r, err := findReservation(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, classify(err)
	}
	return r, nil
}

func findReservation(tx *gorm.DB, id string) (*Reservation, error) {
	var equipment []model.EquipmentReservation
	if err := tx.Preload("Equipment").Where("id = ?", id).Limit(1).Find(&equipment).Error; err != nil {
		return nil, err
	}
	if len(equipment) == 1 {
		return &Reservation{Kind: model.KindEquipment, Equipment: &equipment[0]}, nil
	}

	var spaces []model.SpaceReservation
	if err := tx.Where("id = ?", id).Limit(1).Find(&spaces).Error; err != nil {
		return nil, err
	}
	if len(spaces) == 1 {
		return &Reservation{Kind: model.KindSpace, Space: &spaces[0]}, nil
	}
	return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
}

// ListByUser returns every reservation owned by userID, newest first.
func (s *GormStore) ListByUser(ctx context.Context, userID string) ([]Reservation, error) {
	db := s.db.WithContext(ctx)

	var equipment []model.EquipmentReservation
	if err := db.Preload("Equipment").Where("user_id = ?", userID).Find(&equipment).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to list reservations: %v", model.ErrStore, err)
	}
	var spaces []model.SpaceReservation
	if err := db.Where("user_id = ?", userID).Find(&spaces).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to list reservations: %v", model.ErrStore, err)
	}

	out := make([]Reservation, 0, len(equipment)+len(spaces))
	for i := range equipment {
		out = append(out, Reservation{Kind: model.KindEquipment, Equipment: &equipment[i]})
	}
	for i := range spaces {
		out = append(out, Reservation{Kind: model.KindSpace, Space: &spaces[i]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	return out, nil
}

// SweepEnded closes active reservations whose window is over: confirmed ones
// become completed, pending ones are cancelled.
func (s *GormStore) SweepEnded(ctx context.Context, today datatypes.Date, now datatypes.Time) ([]Reservation, error) {
	var swept []Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var equipment []model.EquipmentReservation
		if err := tx.Preload("Equipment").
			Where("reservation_date <= ? AND status IN ?", today, model.ActiveStatuses).
			Find(&equipment).Error; err != nil {
			return err
		}
		var spaces []model.SpaceReservation
		if err := tx.Where("reservation_date <= ? AND status IN ?", today, model.ActiveStatuses).
			Find(&spaces).Error; err != nil {
			return err
		}

		var candidates []Reservation
		for i := range equipment {
			if ended(equipment[i].ReservationDate, equipment[i].ReturnTime, today, now) {
				candidates = append(candidates, Reservation{Kind: model.KindEquipment, Equipment: &equipment[i]})
			}
		}
		for i := range spaces {
			if ended(spaces[i].ReservationDate, spaces[i].EndTime, today, now) {
				candidates = append(candidates, Reservation{Kind: model.KindSpace, Space: &spaces[i]})
			}
		}

		for i := range candidates {
			target := model.StatusCompleted
			if candidates[i].Status() == model.StatusPending {
				target = model.StatusCancelled
			}
			err := updateStatus(tx, &candidates[i], target)
			if errors.Is(err, model.ErrInvalidTransition) {
				continue
			}
			if err != nil {
				return err
			}
			swept = append(swept, candidates[i])
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return swept, nil
}

func ended(date datatypes.Date, end datatypes.Time, today datatypes.Date, now datatypes.Time) bool {
	if schedule.SameDate(date, today) {
		return end <= now
	}
	return time.Time(date).Before(time.Time(today))
}

// PurgeIdempotencyKeys deletes tokens created before the cut-off.
func (s *GormStore) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&model.IdempotencyKey{})
	if result.Error != nil {
		return 0, fmt.Errorf("%w: failed to purge idempotency keys: %v", model.ErrStore, result.Error)
	}
	return result.RowsAffected, nil
}
