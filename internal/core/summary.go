package core

// MonthSummary is the compact header shown for the current month.
type MonthSummary struct {
	MonthKey     string
	Total        Money
	CountUnrated int
}

// UnratedEntry is an entry waiting for a rating, joined with the running
// aggregates of its definition when that definition recurs.
type UnratedEntry struct {
	Entry        LedgerEntry
	TimesCharged *int
	TotalPaid    *Money
}
