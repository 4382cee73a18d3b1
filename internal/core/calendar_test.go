package core

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLastDayOfMonth(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2024, time.February, 29},
		{2023, time.February, 28},
		{1900, time.February, 28},
		{2000, time.February, 29},
		{2024, time.April, 30},
		{2024, time.December, 31},
	}
	for _, tt := range tests {
		if got := LastDayOfMonth(tt.year, tt.month); got != tt.want {
			t.Errorf("LastDayOfMonth(%d, %s) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestAddMonthsAnchor(t *testing.T) {
	tests := []struct {
		name   string
		from   time.Time
		months int
		anchor int
		want   time.Time
	}{
		{"leap february clamp", date(2024, 1, 31), 1, 31, date(2024, 2, 29)},
		{"non leap february clamp", date(2023, 1, 31), 1, 31, date(2023, 2, 28)},
		{"anchor restored after short month", date(2024, 2, 29), 1, 31, date(2024, 3, 31)},
		{"april has thirty days", date(2024, 3, 31), 1, 31, date(2024, 4, 30)},
		{"year rollover", date(2024, 11, 15), 3, 15, date(2025, 2, 15)},
		{"negative months", date(2024, 1, 31), -2, 31, date(2023, 11, 30)},
		{"twelve months", date(2024, 2, 29), 12, 29, date(2025, 2, 28)},
		{"zero anchor uses day of from", date(2024, 1, 20), 1, 0, date(2024, 2, 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddMonthsAnchor(tt.from, tt.months, tt.anchor)
			if !got.Equal(tt.want) {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAddMonthsAnchorKeepsClockAndLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	from := time.Date(2024, 1, 31, 14, 30, 15, 42, loc)
	got := AddMonthsAnchor(from, 1, 31)
	if got.Location() != loc {
		t.Fatalf("location changed to %s", got.Location())
	}
	if got.Hour() != 14 || got.Minute() != 30 || got.Second() != 15 || got.Nanosecond() != 42 {
		t.Fatalf("clock fields changed: %s", got)
	}
	if got.Day() != 29 || got.Month() != time.February {
		t.Fatalf("got %s", got)
	}
}

func TestAddYearsAnchor(t *testing.T) {
	got := AddYearsAnchor(date(2024, 2, 29), 1, 29)
	if !got.Equal(date(2025, 2, 28)) {
		t.Fatalf("got %s", got)
	}
	got = AddYearsAnchor(date(2025, 2, 28), 3, 29)
	if !got.Equal(date(2028, 2, 29)) {
		t.Fatalf("got %s", got)
	}
}

func TestAddDaysAndWeeks(t *testing.T) {
	if got := AddDays(date(2024, 2, 28), 2); !got.Equal(date(2024, 3, 1)) {
		t.Fatalf("AddDays got %s", got)
	}
	if got := AddWeeks(date(2024, 12, 25), 1); !got.Equal(date(2025, 1, 1)) {
		t.Fatalf("AddWeeks got %s", got)
	}
	if got := AddDays(date(2024, 1, 1), 0); !got.Equal(date(2024, 1, 1)) {
		t.Fatalf("AddDays(0) got %s", got)
	}
}
