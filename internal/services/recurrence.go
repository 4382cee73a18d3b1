// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurrence stepping.
// Each interval kind (days, weeks, months, years) has its own stepper that
// encapsulates how a due date advances.
package services

import (
	"fmt"
	"time"

	"finanzapp/internal/core"
)

// IntervalStepper is the strategy interface for advancing a due date.
type IntervalStepper interface {
	// Step returns the due date that follows from by every intervals.
	// anchorDay is only meaningful for anchored kinds.
	Step(from time.Time, every, anchorDay int) time.Time
}

// DayStepper advances by calendar days.
type DayStepper struct{}

func (DayStepper) Step(from time.Time, every, _ int) time.Time {
	return core.AddDays(from, every)
}

// WeekStepper advances by whole weeks.
type WeekStepper struct{}

func (WeekStepper) Step(from time.Time, every, _ int) time.Time {
	return core.AddWeeks(from, every)
}

// MonthStepper advances by calendar months, landing on the anchor day
// clamped to the month's length.
type MonthStepper struct{}

func (MonthStepper) Step(from time.Time, every, anchorDay int) time.Time {
	return core.AddMonthsAnchor(from, every, anchorDay)
}

// YearStepper advances by years with the same clamping as MonthStepper.
type YearStepper struct{}

func (YearStepper) Step(from time.Time, every, anchorDay int) time.Time {
	return core.AddYearsAnchor(from, every, anchorDay)
}

// intervalSteppers maps interval kinds to their steppers.
var intervalSteppers = map[core.IntervalKind]IntervalStepper{
	core.IntervalDays:   DayStepper{},
	core.IntervalWeeks:  WeekStepper{},
	core.IntervalMonths: MonthStepper{},
	core.IntervalYears:  YearStepper{},
}

// GetIntervalStepper returns the stepper for an interval kind.
func GetIntervalStepper(kind core.IntervalKind) (IntervalStepper, error) {
	stepper, ok := intervalSteppers[kind]
	if !ok {
		return nil, core.NewValidationError("interval_kind", fmt.Sprintf("unknown interval %q", kind))
	}
	return stepper, nil
}

// NextDue computes the due date following from. One-off definitions have
// no next due date and report false.
func NextDue(def core.ExpenseDefinition, from time.Time) (time.Time, bool, error) {
	if !def.IsRecurring || def.IntervalKind == core.IntervalNone {
		return time.Time{}, false, nil
	}
	stepper, err := GetIntervalStepper(def.IntervalKind)
	if err != nil {
		return time.Time{}, false, err
	}
	if def.IntervalEvery < 1 {
		return time.Time{}, false, core.NewValidationError("interval_every", "must be a positive integer")
	}
	return stepper.Step(from, def.IntervalEvery, def.AnchorDay()), true, nil
}

// HasFutureCharge reports the next charge after the definition's cursor and
// whether it still lies strictly in the future.
func HasFutureCharge(def core.ExpenseDefinition, now time.Time) (time.Time, bool, error) {
	next, ok, err := NextDue(def, def.ChargeCursor())
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return next, next.After(now), nil
}
