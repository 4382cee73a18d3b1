package services

import (
	"testing"
	"time"

	"finanzapp/internal/core"
)

func TestNextDue(t *testing.T) {
	anchor31 := 31
	from := time.Date(2024, 1, 31, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		def    core.ExpenseDefinition
		want   time.Time
		wantOK bool
	}{
		{
			name: "one-off has no next due",
			def:  core.ExpenseDefinition{IntervalKind: core.IntervalNone, StartDate: from},
		},
		{
			name:   "every 3 days",
			def:    core.ExpenseDefinition{IsRecurring: true, IntervalKind: core.IntervalDays, IntervalEvery: 3, StartDate: from},
			want:   time.Date(2024, 2, 3, 8, 30, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "every 2 weeks",
			def:    core.ExpenseDefinition{IsRecurring: true, IntervalKind: core.IntervalWeeks, IntervalEvery: 2, StartDate: from},
			want:   time.Date(2024, 2, 14, 8, 30, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "monthly clamps to leap february",
			def:    core.ExpenseDefinition{IsRecurring: true, IntervalKind: core.IntervalMonths, IntervalEvery: 1, StartDate: from, AnchorDayOfMonth: &anchor31},
			want:   time.Date(2024, 2, 29, 8, 30, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "monthly without anchor uses start day",
			def:    core.ExpenseDefinition{IsRecurring: true, IntervalKind: core.IntervalMonths, IntervalEvery: 2, StartDate: from},
			want:   time.Date(2024, 3, 31, 8, 30, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "yearly",
			def:    core.ExpenseDefinition{IsRecurring: true, IntervalKind: core.IntervalYears, IntervalEvery: 1, StartDate: from, AnchorDayOfMonth: &anchor31},
			want:   time.Date(2025, 1, 31, 8, 30, 0, 0, time.UTC),
			wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := NextDue(tt.def, from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("NextDue() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNextDue_AnchorSurvivesShortMonths(t *testing.T) {
	anchor := 31
	def := core.ExpenseDefinition{IsRecurring: true, IntervalKind: core.IntervalMonths, IntervalEvery: 1,
		StartDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), AnchorDayOfMonth: &anchor}

	cursor := def.StartDate
	want := []int{29, 31, 30, 31}
	for i, day := range want {
		next, _, err := NextDue(def, cursor)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next.Day() != day {
			t.Fatalf("step %d landed on day %d, want %d", i, next.Day(), day)
		}
		cursor = next
	}
}

func TestNextDue_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  core.ExpenseDefinition
	}{
		{"unknown kind", core.ExpenseDefinition{IsRecurring: true, IntervalKind: "FORTNIGHTS", IntervalEvery: 1}},
		{"zero every", core.ExpenseDefinition{IsRecurring: true, IntervalKind: core.IntervalDays, IntervalEvery: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NextDue(tt.def, time.Now())
			if !core.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestHasFutureCharge(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	def := core.ExpenseDefinition{IsRecurring: true, IntervalKind: core.IntervalMonths, IntervalEvery: 1, StartDate: start, LastChargedAt: &last}

	next, future, err := HasFutureCharge(def, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	if err != nil || !future || !next.Equal(time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %s, %v, %v", next, future, err)
	}

	_, future, _ = HasFutureCharge(def, time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC))
	if future {
		t.Fatal("a charge due exactly now is not in the future")
	}

	def.IsRecurring = false
	if _, future, _ := HasFutureCharge(def, start); future {
		t.Fatal("one-off definitions have no future charge")
	}
}

func TestGetIntervalStepper(t *testing.T) {
	for _, kind := range []core.IntervalKind{core.IntervalDays, core.IntervalWeeks, core.IntervalMonths, core.IntervalYears} {
		if _, err := GetIntervalStepper(kind); err != nil {
			t.Errorf("%s: unexpected error %v", kind, err)
		}
	}
	if _, err := GetIntervalStepper(core.IntervalNone); err == nil {
		t.Error("NONE has no stepper")
	}
}
