// Package schedule holds the facility's wall-clock rules: shift windows,
// space opening hours and the "too late to book today" cut-off.
package schedule

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/model"
)

// Window is a half-open wall-clock range [Start, End).
type Window struct {
	Start datatypes.Time
	End   datatypes.Time
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return time.Duration(w.End - w.Start)
}

// Clock builds a wall-clock time of day.
func Clock(hour, min int) datatypes.Time {
	return datatypes.NewTime(hour, min, 0, 0)
}

var shiftWindows = map[model.Shift]Window{
	model.ShiftMorning:   {Start: Clock(8, 0), End: Clock(12, 0)},
	model.ShiftAfternoon: {Start: Clock(13, 30), End: Clock(17, 30)},
	model.ShiftNight:     {Start: Clock(18, 30), End: Clock(22, 30)},
}

// Study room opening hours and lunch blackout.
var (
	studyRoomOpen     = Window{Start: Clock(8, 0), End: Clock(20, 0)}
	studyRoomBlackout = Window{Start: Clock(12, 0), End: Clock(13, 0)}
)

const (
	studyRoomMinDuration    = 30 * time.Minute
	studyRoomMaxDuration    = 4 * time.Hour
	generalSpaceMinDuration = 2 * time.Hour
	generalSpaceMaxDuration = 4 * time.Hour
)

// ShiftWindow returns the pickup and return times of a shift.
func ShiftWindow(shift model.Shift) (Window, error) {
	w, ok := shiftWindows[shift]
	if !ok {
		return Window{}, model.Validationf("unknown shift %q", shift)
	}
	return w, nil
}

// Policy evaluates time rules in the facility's timezone.
type Policy struct {
	loc                 *time.Location
	strictGeneralSpaces bool
}

// NewPolicy creates a policy. A nil location means UTC.
// With strictGeneralSpaces set, general space bookings must match a shift window exactly.
func NewPolicy(loc *time.Location, strictGeneralSpaces bool) *Policy {
	if loc == nil {
		loc = time.UTC
	}
	return &Policy{loc: loc, strictGeneralSpaces: strictGeneralSpaces}
}

// Location returns the facility timezone. Timestamps from outside systems,
// such as the inventory's maintenance dates, are read in it.
func (p *Policy) Location() *time.Location {
	return p.loc
}

// Today returns the facility-local calendar date of now.
func (p *Policy) Today(now time.Time) datatypes.Date {
	return DateOf(now.In(p.loc))
}

// ClockOf returns the facility-local wall clock of now, truncated to the minute.
func (p *Policy) ClockOf(now time.Time) datatypes.Time {
	local := now.In(p.loc)
	return Clock(local.Hour(), local.Minute())
}

// IsPastPickup reports whether date is today and the shift's pickup time has gone by.
func (p *Policy) IsPastPickup(shift model.Shift, now time.Time, date datatypes.Date) bool {
	w, ok := shiftWindows[shift]
	if !ok {
		return false
	}
	if !SameDate(p.Today(now), date) {
		return false
	}
	return p.ClockOf(now) > w.Start
}

// IsWithinSpaceWindow reports whether [start, end) is bookable for the space.
func (p *Policy) IsWithinSpaceWindow(space model.SpaceType, start, end datatypes.Time) bool {
	return p.CheckSpaceWindow(space, start, end) == nil
}

// CheckSpaceWindow is IsWithinSpaceWindow with the rejection reason.
func (p *Policy) CheckSpaceWindow(space model.SpaceType, start, end datatypes.Time) error {
	if start >= end {
		return model.Validationf("start time %s must be before end time %s", start, end)
	}
	w := Window{Start: start, End: end}

	switch space {
	case model.SpaceStudyRoom:
		if start < studyRoomOpen.Start || end > studyRoomOpen.End {
			return model.Validationf("study room is open from %s to %s", studyRoomOpen.Start, studyRoomOpen.End)
		}
		// A range touching the blackout is rejected, never split.
		if start < studyRoomBlackout.End && end > studyRoomBlackout.Start {
			return model.Validationf("study room is closed from %s to %s", studyRoomBlackout.Start, studyRoomBlackout.End)
		}
		if d := w.Duration(); d < studyRoomMinDuration || d > studyRoomMaxDuration {
			return model.Validationf("study room bookings last between %s and %s", studyRoomMinDuration, studyRoomMaxDuration)
		}
		return nil

	case model.SpaceGeneralSpace:
		if p.strictGeneralSpaces {
			for _, sw := range shiftWindows {
				if sw == w {
					return nil
				}
			}
			return model.Validationf("general space must be booked for a whole shift")
		}
		first, last := shiftWindows[model.ShiftMorning], shiftWindows[model.ShiftNight]
		if start < first.Start || end > last.End {
			return model.Validationf("general space is open from %s to %s", first.Start, last.End)
		}
		if d := w.Duration(); d < generalSpaceMinDuration || d > generalSpaceMaxDuration {
			return model.Validationf("general space bookings last between %s and %s", generalSpaceMinDuration, generalSpaceMaxDuration)
		}
		return nil
	}
	return model.Validationf("unknown space %q", space)
}

// DateOf strips the wall clock from t, keeping its calendar day.
func DateOf(t time.Time) datatypes.Date {
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// SameDate compares two calendar dates.
func SameDate(a, b datatypes.Date) bool {
	ay, am, ad := time.Time(a).Date()
	by, bm, bd := time.Time(b).Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b datatypes.Date) int {
	return int(time.Time(DateOf(time.Time(b))).Sub(time.Time(DateOf(time.Time(a)))).Hours() / 24)
}

// FormatShift renders a shift with its window, e.g. "morning (08:00-12:00)".
func FormatShift(shift model.Shift) string {
	w, ok := shiftWindows[shift]
	if !ok {
		return string(shift)
	}
	return fmt.Sprintf("%s (%s-%s)", shift, hhmm(w.Start), hhmm(w.End))
}

func hhmm(t datatypes.Time) string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
