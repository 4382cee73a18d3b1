package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	IntervalNone   IntervalKind = "NONE"
	IntervalDays   IntervalKind = "DAYS"
	IntervalWeeks  IntervalKind = "WEEKS"
	IntervalMonths IntervalKind = "MONTHS"
	IntervalYears  IntervalKind = "YEARS"
)

const (
	RatingUnrated    RatingStatus = "UNRATED"
	RatingRated      RatingStatus = "RATED"
	RatingLifesaving RatingStatus = "LIFESAVING"
)

const (
	// PlannedDeliberate marks a purchase that was thought through.
	PlannedDeliberate Planned = "DURCHDACHT"
	// PlannedImpulsive marks an affective (impulse) purchase.
	PlannedImpulsive Planned = "AFFEKTIV"
)

// MaxPurposeLength bounds the free-text purpose of a definition.
const MaxPurposeLength = 200

type (
	IntervalKind string
	RatingStatus string
	Planned      string

	// ExpenseDefinition is the template a user registers once. Recurring
	// definitions are materialized into ledger entries by the charge generator.
	ExpenseDefinition struct {
		ID               string
		UserID           string
		Purpose          string
		Amount           Money
		IsRecurring      bool
		IntervalKind     IntervalKind
		IntervalEvery    int
		StartDate        time.Time
		AnchorDayOfMonth *int // fixed at creation for MONTHS/YEARS
		TimesCharged     int
		TotalPaid        Money
		LastChargedAt    *time.Time
		CreatedAt        time.Time
	}

	// LedgerEntry is an immutable snapshot of one charge.
	LedgerEntry struct {
		ID               string
		UserID           string
		DefinitionID     string
		Purpose          string
		Amount           Money
		ChargedAt        time.Time
		MonthKey         string
		IsRecurring      bool
		IntervalSnapshot string
		Rating           Rating
		RatedAt          *time.Time
	}

	// Rating is the subjective judgement attached to a ledger entry.
	// Answers are only present for RatingRated.
	Rating struct {
		Status  RatingStatus
		Answers *RatingAnswers
		Score   *float64
	}

	RatingAnswers struct {
		Q1Happy         float64
		Q2Value         float64
		Q3RepeatNow     bool
		Q4NeedElsewhere bool
		Q5Planned       Planned
	}
)

func (k IntervalKind) IsValid() bool {
	switch k {
	case IntervalNone, IntervalDays, IntervalWeeks, IntervalMonths, IntervalYears:
		return true
	}
	return false
}

// Anchored reports whether the interval is computed against a day of month.
func (k IntervalKind) Anchored() bool {
	return k == IntervalMonths || k == IntervalYears
}

func (p Planned) IsValid() bool {
	return p == PlannedDeliberate || p == PlannedImpulsive
}

// RatedScore returns the score of a regularly rated entry. Lifesaving and
// unrated entries report false.
func (r Rating) RatedScore() (float64, bool) {
	if r.Status != RatingRated || r.Score == nil {
		return 0, false
	}
	return *r.Score, true
}

// IsImpulsive reports whether the entry was rated as an affective purchase.
func (e LedgerEntry) IsImpulsive() bool {
	return e.Rating.Status == RatingRated && e.Rating.Answers != nil &&
		e.Rating.Answers.Q5Planned == PlannedImpulsive
}

// ChargeCursor is the date the next due date is computed from.
func (d ExpenseDefinition) ChargeCursor() time.Time {
	if d.LastChargedAt != nil {
		return *d.LastChargedAt
	}
	return d.StartDate
}

// AnchorDay returns the configured anchor or the start date's day of month.
func (d ExpenseDefinition) AnchorDay() int {
	if d.AnchorDayOfMonth != nil {
		return *d.AnchorDayOfMonth
	}
	return d.StartDate.Day()
}

// IntervalSnapshot renders the recurrence the way it is frozen on entries.
func (d ExpenseDefinition) IntervalSnapshot() string {
	if !d.IsRecurring || d.IntervalKind == IntervalNone {
		return "once"
	}
	return fmt.Sprintf("every %d %s", d.IntervalEvery, strings.ToLower(string(d.IntervalKind)))
}

func (d ExpenseDefinition) Validate() error {
	purpose := strings.TrimSpace(d.Purpose)
	if purpose == "" {
		return NewValidationError("purpose", "must not be empty")
	}
	if len(purpose) > MaxPurposeLength {
		return NewValidationError("purpose", fmt.Sprintf("too long (max %d characters)", MaxPurposeLength))
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if !d.IntervalKind.IsValid() {
		return NewValidationError("interval_kind", fmt.Sprintf("unknown interval %q", d.IntervalKind))
	}
	if d.IsRecurring {
		if d.IntervalKind == IntervalNone {
			return NewValidationError("interval_kind", "recurring expense needs an interval")
		}
		if d.IntervalEvery < 1 {
			return NewValidationError("interval_every", "must be a positive integer")
		}
	}
	if d.StartDate.IsZero() {
		return NewValidationError("start_date", "must be set")
	}
	if d.AnchorDayOfMonth != nil && (*d.AnchorDayOfMonth < 1 || *d.AnchorDayOfMonth > 31) {
		return NewValidationError("anchor_day_of_month", "must be between 1 and 31")
	}
	return nil
}
