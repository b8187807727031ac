package booking

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/parse"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
)

const (
	minEquipmentPurpose = 10
	maxPurpose          = 255
)

// Validator runs the pre-flight checks on a request. Checks run in a fixed
// order and stop at the first failure. The availability check is advisory;
// the ledger makes the final call.
type Validator struct {
	policy      *schedule.Policy
	calc        *Calculator
	horizonDays int
	now         func() time.Time
}

// NewValidator creates a validator. A nil now uses time.Now.
func NewValidator(policy *schedule.Policy, calc *Calculator, horizonDays int, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{policy: policy, calc: calc, horizonDays: horizonDays, now: now}
}

// ValidateEquipmentRequest checks identity, date, shift, purpose and then
// whether any unit of the type is free.
func (v *Validator) ValidateEquipmentRequest(ctx context.Context, id Identity, req EquipmentRequest) error {
	if !id.Authenticated() {
		return model.ErrUnauthenticated
	}
	now := v.now()
	if err := v.checkDate(req.Date, now); err != nil {
		return err
	}
	if !req.Shift.Valid() {
		return model.Validationf("unknown shift %q", req.Shift)
	}
	if v.policy.IsPastPickup(req.Shift, now, req.Date) {
		return model.Validationf("the %s shift has already started today", schedule.FormatShift(req.Shift))
	}
	n := utf8.RuneCountInString(strings.TrimSpace(req.Purpose))
	if n < minEquipmentPurpose || n > maxPurpose {
		return model.Validationf("purpose must be between %d and %d characters", minEquipmentPurpose, maxPurpose)
	}
	if !req.Type.Valid() {
		return model.Validationf("unknown equipment type %q", req.Type)
	}

	counts, err := v.calc.EquipmentAvailability(ctx, req.Date, req.Shift)
	if err != nil {
		return err
	}
	if counts[req.Type].Available <= 0 {
		return model.ErrNoUnitsAvailable
	}
	return nil
}

// ValidateSpaceRequest checks identity, date, time window, group and purpose.
// Overlap with existing bookings is checked separately.
func (v *Validator) ValidateSpaceRequest(ctx context.Context, id Identity, req SpaceRequest) error {
	if !id.Authenticated() {
		return model.ErrUnauthenticated
	}
	now := v.now()
	if err := v.checkDate(req.Date, now); err != nil {
		return err
	}
	if !req.Space.Valid() {
		return model.Validationf("unknown space %q", req.Space)
	}
	if err := v.policy.CheckSpaceWindow(req.Space, req.Start, req.End); err != nil {
		return err
	}
	if schedule.SameDate(v.policy.Today(now), req.Date) && v.policy.ClockOf(now) > req.Start {
		return model.Validationf("start time %s has already passed", parse.FormatClock(req.Start))
	}
	if err := checkGroup(req.Space, req.GroupSize, req.GroupMembers); err != nil {
		return err
	}
	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		return model.Validationf("purpose is required")
	}
	if utf8.RuneCountInString(purpose) > maxPurpose {
		return model.Validationf("purpose must be at most %d characters", maxPurpose)
	}
	return nil
}

func (v *Validator) checkDate(date datatypes.Date, now time.Time) error {
	today := v.policy.Today(now)
	days := schedule.DaysBetween(today, date)
	if days < 0 {
		return model.Validationf("date %s is in the past", parse.FormatDate(date))
	}
	if v.horizonDays > 0 && days > v.horizonDays {
		return model.Validationf("date %s is more than %d days ahead", parse.FormatDate(date), v.horizonDays)
	}
	return nil
}

func checkGroup(space model.SpaceType, size int, members []string) error {
	min, max := space.GroupLimits()
	if size < min || size > max {
		return model.Validationf("group size for %s must be between %d and %d", space, min, max)
	}
	if len(members) != size {
		return model.Validationf("group size is %d but %d members were listed", size, len(members))
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		key := strings.ToLower(strings.TrimSpace(m))
		if key == "" {
			return model.Validationf("group members must not be blank")
		}
		if _, dup := seen[key]; dup {
			return model.Validationf("group member %q is listed twice", m)
		}
		seen[key] = struct{}{}
	}
	return nil
}
