package core

import "time"

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

func AddWeeks(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, 7*n)
}

// AddMonthsAnchor moves t by n calendar months and lands on anchorDay,
// clamped to the last day of the target month. Clock fields and location
// are kept. A non-positive anchorDay falls back to t's day of month.
//
//	AddMonthsAnchor(2024-01-31, 1, 31) -> 2024-02-29
//	AddMonthsAnchor(2024-02-29, 1, 31) -> 2024-03-31
func AddMonthsAnchor(t time.Time, n, anchorDay int) time.Time {
	if anchorDay <= 0 {
		anchorDay = t.Day()
	}
	total := int(t.Month()) - 1 + n
	year := t.Year() + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)
	day := min(anchorDay, LastDayOfMonth(year, month))
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// AddYearsAnchor moves t by n years keeping the month, clamping anchorDay
// the same way AddMonthsAnchor does.
func AddYearsAnchor(t time.Time, n, anchorDay int) time.Time {
	return AddMonthsAnchor(t, 12*n, anchorDay)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
