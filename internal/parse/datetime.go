package parse

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	dateLayout      = "2006-01-02"
	clockLayout     = "15:04"
	clockLongLayout = "15:04:05"
)

// ParseDate reads a YYYY-MM-DD calendar date.
func ParseDate(raw string) (datatypes.Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return datatypes.Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return datatypes.Date(t), nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d datatypes.Date) string {
	return time.Time(d).Format(dateLayout)
}

// ParseClock reads an HH:MM or HH:MM:SS wall-clock time.
func ParseClock(raw string) (datatypes.Time, error) {
	s := strings.TrimSpace(raw)
	layout := clockLayout
	if strings.Count(s, ":") == 2 {
		layout = clockLongLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	return datatypes.NewTime(t.Hour(), t.Minute(), t.Second(), 0), nil
}

// FormatClock renders a wall-clock time as HH:MM.
func FormatClock(c datatypes.Time) string {
	d := time.Duration(c)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// ParseTimestamp reads an upstream "2006-01-02 15:04:05" timestamp in loc.
// An empty or nil input yields nil.
func ParseTimestamp(raw *string, loc *time.Location) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", strings.TrimSpace(*raw), loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp %q: %w", *raw, err)
	}
	return &t, nil
}
