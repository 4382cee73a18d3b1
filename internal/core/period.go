package core

import (
	"fmt"
	"strconv"
	"time"
)

const (
	monthKeyLayout = "2006-01"

	PeriodMonth PeriodType = "month"
	PeriodWeek  PeriodType = "week"
)

type PeriodType string

func (p PeriodType) IsValid() bool { return p == PeriodMonth || p == PeriodWeek }

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// MonthKey derives the YYYY-MM key of t in t's own location.
func MonthKey(t time.Time) string {
	return t.Format(monthKeyLayout)
}

// ParseMonthKey returns the calendar month window for key in loc.
func ParseMonthKey(key string, loc *time.Location) (Window, error) {
	t, err := time.ParseInLocation(monthKeyLayout, key, loc)
	if err != nil || len(key) != len(monthKeyLayout) {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidMonthKey, key)
	}
	return Window{Start: t, End: t.AddDate(0, 1, 0)}, nil
}

// PreviousMonthKey returns the key of the month before key.
func PreviousMonthKey(key string) (string, error) {
	w, err := ParseMonthKey(key, time.UTC)
	if err != nil {
		return "", err
	}
	return MonthKey(w.Start.AddDate(0, -1, 0)), nil
}

// WeekStart returns Monday 00:00 of t's week in t's location.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

// WeekKey returns the ISO week key (YYYY-Www) of t.
func WeekKey(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// ParseWeekKey returns the Monday-start window of an ISO week key in loc.
func ParseWeekKey(key string, loc *time.Location) (Window, error) {
	if len(key) != 8 || key[4:6] != "-W" {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWeekKey, key)
	}
	year, yerr := strconv.Atoi(key[:4])
	week, werr := strconv.Atoi(key[6:])
	if yerr != nil || werr != nil || week < 1 || week > 53 {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWeekKey, key)
	}
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	start := WeekStart(jan4).AddDate(0, 0, 7*(week-1))
	if y, _ := start.ISOWeek(); y != year {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWeekKey, key)
	}
	return Window{Start: start, End: start.AddDate(0, 0, 7)}, nil
}

// PeriodKey returns the key of the period of kind p containing t.
func PeriodKey(p PeriodType, t time.Time) string {
	if p == PeriodWeek {
		return WeekKey(t)
	}
	return MonthKey(t)
}

// ParsePeriodKey dispatches to ParseMonthKey or ParseWeekKey.
func ParsePeriodKey(p PeriodType, key string, loc *time.Location) (Window, error) {
	switch p {
	case PeriodMonth:
		return ParseMonthKey(key, loc)
	case PeriodWeek:
		return ParseWeekKey(key, loc)
	}
	return Window{}, NewValidationError("period_type", fmt.Sprintf("unknown period type %q", p))
}

// PreviousPeriod returns the window directly before w for period kind p.
func PreviousPeriod(p PeriodType, w Window) Window {
	if p == PeriodWeek {
		return Window{Start: w.Start.AddDate(0, 0, -7), End: w.Start}
	}
	return Window{Start: w.Start.AddDate(0, -1, 0), End: w.Start}
}
