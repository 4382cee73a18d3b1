package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseMonthKey(t *testing.T) {
	w, err := ParseMonthKey("2024-02", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Start.Equal(date(2024, 2, 1)) || !w.End.Equal(date(2024, 3, 1)) {
		t.Fatalf("got %s - %s", w.Start, w.End)
	}
	if !w.Contains(date(2024, 2, 29)) || w.Contains(date(2024, 3, 1)) {
		t.Fatal("window bounds are not half-open")
	}

	for _, bad := range []string{"", "2024-13", "2024-2", "24-02", "2024/02"} {
		if _, err := ParseMonthKey(bad, time.UTC); !errors.Is(err, ErrInvalidMonthKey) {
			t.Errorf("%q: expected ErrInvalidMonthKey, got %v", bad, err)
		}
	}
}

func TestPreviousMonthKey(t *testing.T) {
	tests := map[string]string{
		"2024-03": "2024-02",
		"2024-01": "2023-12",
	}
	for in, want := range tests {
		got, err := PreviousMonthKey(in)
		if err != nil || got != want {
			t.Errorf("PreviousMonthKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2024, 5, 15, 18, 0, 0, 0, time.UTC), date(2024, 5, 13)},  // Wednesday
		{date(2024, 5, 13), date(2024, 5, 13)},                              // Monday
		{time.Date(2024, 5, 19, 23, 59, 0, 0, time.UTC), date(2024, 5, 13)}, // Sunday
		{date(2025, 1, 1), date(2024, 12, 30)},
	}
	for _, tt := range tests {
		if got := WeekStart(tt.in); !got.Equal(tt.want) {
			t.Errorf("WeekStart(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWeekKeyRoundTrip(t *testing.T) {
	tests := []struct {
		key   string
		start time.Time
	}{
		{"2024-W01", date(2024, 1, 1)},
		{"2025-W01", date(2024, 12, 30)},
		{"2020-W53", date(2020, 12, 28)},
		{"2024-W20", date(2024, 5, 13)},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			w, err := ParseWeekKey(tt.key, time.UTC)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !w.Start.Equal(tt.start) || !w.End.Equal(tt.start.AddDate(0, 0, 7)) {
				t.Fatalf("got %s - %s", w.Start, w.End)
			}
			if got := WeekKey(w.Start); got != tt.key {
				t.Fatalf("WeekKey = %q", got)
			}
		})
	}

	for _, bad := range []string{"2024-W00", "2024-W54", "2023-W53", "2024W01", "abcd-W01"} {
		if _, err := ParseWeekKey(bad, time.UTC); !errors.Is(err, ErrInvalidWeekKey) {
			t.Errorf("%q: expected ErrInvalidWeekKey, got %v", bad, err)
		}
	}
}

func TestPreviousPeriod(t *testing.T) {
	m, _ := ParseMonthKey("2024-03", time.UTC)
	prev := PreviousPeriod(PeriodMonth, m)
	if !prev.Start.Equal(date(2024, 2, 1)) || !prev.End.Equal(date(2024, 3, 1)) {
		t.Fatalf("month: got %s - %s", prev.Start, prev.End)
	}
	w, _ := ParseWeekKey("2024-W01", time.UTC)
	prev = PreviousPeriod(PeriodWeek, w)
	if !prev.Start.Equal(date(2023, 12, 25)) || !prev.End.Equal(date(2024, 1, 1)) {
		t.Fatalf("week: got %s - %s", prev.Start, prev.End)
	}
	if _, err := ParsePeriodKey("year", "2024", time.UTC); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
