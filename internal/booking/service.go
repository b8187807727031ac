package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

// SlotNotifier is told when a slot frees up.
type SlotNotifier interface {
	Dispatch(key model.SlotKey)
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(model.SlotKey) {}

// Options configures a Service.
type Options struct {
	HorizonDays int
	Notifier    SlotNotifier
	Logger      *zap.Logger
	Now         func() time.Time
}

// Service is the entry point of the reservation engine.
type Service struct {
	store     store.Store
	policy    *schedule.Policy
	calc      *Calculator
	validator *Validator
	notifier  SlotNotifier
	log       *zap.Logger
	now       func() time.Time
}

// NewService wires the calculator and validator around st.
func NewService(st store.Store, policy *schedule.Policy, opts Options) *Service {
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	calc := NewCalculator(st)
	return &Service{
		store:     st,
		policy:    policy,
		calc:      calc,
		validator: NewValidator(policy, calc, opts.HorizonDays, opts.Now),
		notifier:  opts.Notifier,
		log:       opts.Logger,
		now:       opts.Now,
	}
}

// Policy exposes the facility time policy.
func (s *Service) Policy() *schedule.Policy {
	return s.policy
}

// Today returns the facility-local date.
func (s *Service) Today() datatypes.Date {
	return s.policy.Today(s.now())
}

// EquipmentAvailability returns {total, available} per equipment type.
func (s *Service) EquipmentAvailability(ctx context.Context, date datatypes.Date, shift model.Shift) (map[model.EquipmentType]model.UnitCount, error) {
	if !shift.Valid() {
		return nil, model.Validationf("unknown shift %q", shift)
	}
	return s.calc.EquipmentAvailability(ctx, date, shift)
}

// SpaceAvailability returns the daily availability flag per space.
func (s *Service) SpaceAvailability(ctx context.Context, date datatypes.Date) (map[model.SpaceType]bool, error) {
	return s.calc.SpaceAvailability(ctx, date)
}

// SpaceRangeAvailable checks one space and range precisely.
func (s *Service) SpaceRangeAvailable(ctx context.Context, space model.SpaceType, date datatypes.Date, start, end datatypes.Time) (bool, error) {
	if !s.store.IsSpaceDefined(space) {
		return false, model.Validationf("unknown space %q", space)
	}
	if start >= end {
		return false, model.Validationf("start time must be before end time")
	}
	return s.calc.SpaceRangeAvailable(ctx, space, date, start, end)
}

// SubmitEquipmentReservation validates and commits an equipment request.
// A request whose token already produced a reservation returns that reservation.
func (s *Service) SubmitEquipmentReservation(ctx context.Context, id Identity, req EquipmentRequest) (*model.EquipmentReservation, error) {
	commit := req.commit(id.UserID)
	if id.Authenticated() && req.Token != "" {
		prior, err := s.store.LookupIdempotent(ctx, req.Token, id.UserID, model.KindEquipment, commit.Hash())
		if err != nil {
			return nil, err
		}
		if prior != nil {
			s.log.Info("replayed equipment reservation", zap.String("reservation_id", prior.ID()))
			return prior.Equipment, nil
		}
	}

	if err := s.validator.ValidateEquipmentRequest(ctx, id, req); err != nil {
		return nil, err
	}

	res, err := s.store.ReserveEquipment(ctx, commit)
	if err != nil {
		err = lostRace(err)
		s.log.Info("equipment reservation rejected",
			zap.String("user_id", id.UserID),
			zap.String("slot", commit.Slot().String()),
			zap.Error(err))
		return nil, err
	}
	return res, nil
}

// SubmitSpaceReservation validates and commits a space request.
func (s *Service) SubmitSpaceReservation(ctx context.Context, id Identity, req SpaceRequest) (*model.SpaceReservation, error) {
	commit := req.commit(id.UserID)
	if id.Authenticated() && req.Token != "" {
		prior, err := s.store.LookupIdempotent(ctx, req.Token, id.UserID, model.KindSpace, commit.Hash())
		if err != nil {
			return nil, err
		}
		if prior != nil {
			s.log.Info("replayed space reservation", zap.String("reservation_id", prior.ID()))
			return prior.Space, nil
		}
	}

	if err := s.validator.ValidateSpaceRequest(ctx, id, req); err != nil {
		return nil, err
	}
	free, err := s.calc.SpaceRangeAvailable(ctx, req.Space, req.Date, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, model.ErrSpaceConflict
	}

	res, err := s.store.ReserveSpace(ctx, commit)
	if err != nil {
		err = lostRace(err)
		s.log.Info("space reservation rejected",
			zap.String("user_id", id.UserID),
			zap.String("slot", commit.Slot().String()),
			zap.Error(err))
		return nil, err
	}
	return res, nil
}

// lostRace marks an unavailable result as a race: the pre-check saw the slot free.
func lostRace(err error) error {
	if errors.Is(err, model.ErrResourceUnavailable) && !errors.Is(err, model.ErrConflictRace) {
		return model.Race(err)
	}
	return err
}

// CancelReservation cancels a reservation owned by the caller. Staff may
// cancel any reservation.
func (s *Service) CancelReservation(ctx context.Context, id Identity, reservationID string) (*store.Reservation, error) {
	if _, err := s.authorize(ctx, id, reservationID); err != nil {
		return nil, err
	}
	r, err := s.store.Transition(ctx, reservationID, model.StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.notifier.Dispatch(r.Slot())
	return r, nil
}

// ConfirmReservation moves a pending reservation to confirmed. Staff only.
func (s *Service) ConfirmReservation(ctx context.Context, id Identity, reservationID string) (*store.Reservation, error) {
	if err := requireStaff(id); err != nil {
		return nil, err
	}
	return s.store.Transition(ctx, reservationID, model.StatusConfirmed)
}

// CompleteReservation marks a confirmed reservation as returned. Staff only.
func (s *Service) CompleteReservation(ctx context.Context, id Identity, reservationID string) (*store.Reservation, error) {
	if err := requireStaff(id); err != nil {
		return nil, err
	}
	return s.store.Transition(ctx, reservationID, model.StatusCompleted)
}

// GetReservation returns one reservation visible to the caller.
func (s *Service) GetReservation(ctx context.Context, id Identity, reservationID string) (*store.Reservation, error) {
	return s.authorize(ctx, id, reservationID)
}

// ListMine returns the caller's reservations, newest first.
func (s *Service) ListMine(ctx context.Context, id Identity) ([]store.Reservation, error) {
	if !id.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	return s.store.ListByUser(ctx, id.UserID)
}

// ListEquipment lists the catalog, optionally for one type.
func (s *Service) ListEquipment(ctx context.Context, t *model.EquipmentType) ([]model.EquipmentUnit, error) {
	if t != nil && !t.Valid() {
		return nil, model.Validationf("unknown equipment type %q", *t)
	}
	return s.store.ListEquipmentUnits(ctx, t)
}

// Stats summarizes reservations for date.
func (s *Service) Stats(ctx context.Context, date datatypes.Date) (store.Stats, error) {
	return s.store.Stats(ctx, date)
}

func (s *Service) authorize(ctx context.Context, id Identity, reservationID string) (*store.Reservation, error) {
	if !id.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	r, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.UserID() != id.UserID && !id.IsStaff() {
		return nil, fmt.Errorf("%w: reservation %s belongs to another user", model.ErrForbidden, reservationID)
	}
	return r, nil
}

func requireStaff(id Identity) error {
	if !id.Authenticated() {
		return model.ErrUnauthenticated
	}
	if !id.IsStaff() {
		return fmt.Errorf("%w: staff role required", model.ErrForbidden)
	}
	return nil
}
