package core

import (
	"fmt"
	"time"
)

// MaxResolutionsPerMonth bounds how many goals a user may set for one month.
const MaxResolutionsPerMonth = 9

const (
	ResolutionUnderAmountForRating   ResolutionType = "UNDER_AMOUNT_FOR_RATING"
	ResolutionTargetAvgRating        ResolutionType = "TARGET_AVG_RATING"
	ResolutionLessThanLastMonth      ResolutionType = "LESS_THAN_LAST_MONTH"
	ResolutionNoAffectiveAboveAmount ResolutionType = "NO_AFFECTIVE_ABOVE_AMOUNT"
	ResolutionMaxAffectivePerPeriod  ResolutionType = "MAX_AFFECTIVE_PER_PERIOD"
)

const (
	UnitEuro    Unit = "EURO"
	UnitPercent Unit = "PERCENT"
)

const (
	AffectiveWeek  AffectivePeriod = "WEEK"
	AffectiveMonth AffectivePeriod = "MONTH"
)

type (
	ResolutionType  string
	Unit            string
	AffectivePeriod string

	// ResolutionParams holds the per-type parameters. Only the fields
	// relevant to the resolution's type are set.
	ResolutionParams struct {
		AmountThreshold    *float64
		RatingThreshold    *float64
		Unit               *Unit
		TargetAvgRating    *float64
		ReductionAmount    *float64
		ReductionUnit      *Unit
		MaxAffectiveAmount *float64
		MaxAffectiveCount  *int
		MaxAffectivePeriod *AffectivePeriod
	}

	// Resolution is a monthly spending goal.
	Resolution struct {
		ID       string
		UserID   string
		MonthKey string
		Type     ResolutionType
		ResolutionParams
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// ResolutionStatus is derived on request and never stored.
	ResolutionStatus struct {
		ResolutionID string
		IsMet        bool
		Current      float64
		Target       float64
		Description  string
	}
)

func (t ResolutionType) IsValid() bool {
	switch t {
	case ResolutionUnderAmountForRating, ResolutionTargetAvgRating, ResolutionLessThanLastMonth,
		ResolutionNoAffectiveAboveAmount, ResolutionMaxAffectivePerPeriod:
		return true
	}
	return false
}

func (u Unit) IsValid() bool { return u == UnitEuro || u == UnitPercent }

func (p AffectivePeriod) IsValid() bool { return p == AffectiveWeek || p == AffectiveMonth }

// Validate checks that the type is known and that the parameters it needs
// are present and in range.
func (r Resolution) Validate() error {
	if _, err := ParseMonthKey(r.MonthKey, time.UTC); err != nil {
		return &ValidationError{Field: "month_key", Reason: "must be YYYY-MM", Err: err}
	}
	if !r.Type.IsValid() {
		return NewValidationError("type", fmt.Sprintf("unknown resolution type %q", r.Type))
	}
	p := r.ResolutionParams
	switch r.Type {
	case ResolutionUnderAmountForRating:
		if err := nonNegative("amount_threshold", p.AmountThreshold); err != nil {
			return err
		}
		if err := ratingRange("rating_threshold", p.RatingThreshold); err != nil {
			return err
		}
		if p.Unit == nil || !p.Unit.IsValid() {
			return NewValidationError("unit", "must be EURO or PERCENT")
		}
		if *p.Unit == UnitPercent && *p.AmountThreshold > 100 {
			return NewValidationError("amount_threshold", "percent must not exceed 100")
		}
	case ResolutionTargetAvgRating:
		if err := ratingRange("target_avg_rating", p.TargetAvgRating); err != nil {
			return err
		}
	case ResolutionLessThanLastMonth:
		if err := nonNegative("reduction_amount", p.ReductionAmount); err != nil {
			return err
		}
		if p.ReductionUnit == nil || !p.ReductionUnit.IsValid() {
			return NewValidationError("reduction_unit", "must be EURO or PERCENT")
		}
	case ResolutionNoAffectiveAboveAmount:
		if err := nonNegative("max_affective_amount", p.MaxAffectiveAmount); err != nil {
			return err
		}
	case ResolutionMaxAffectivePerPeriod:
		if p.MaxAffectiveCount == nil || *p.MaxAffectiveCount < 0 {
			return NewValidationError("max_affective_count", "must be a non-negative integer")
		}
		if p.MaxAffectivePeriod == nil || !p.MaxAffectivePeriod.IsValid() {
			return NewValidationError("max_affective_period", "must be WEEK or MONTH")
		}
	}
	return nil
}

// Normalize clears parameters that do not belong to the resolution's type.
func (r *Resolution) Normalize() {
	p := r.ResolutionParams
	var n ResolutionParams
	switch r.Type {
	case ResolutionUnderAmountForRating:
		n.AmountThreshold, n.RatingThreshold, n.Unit = p.AmountThreshold, p.RatingThreshold, p.Unit
	case ResolutionTargetAvgRating:
		n.TargetAvgRating = p.TargetAvgRating
	case ResolutionLessThanLastMonth:
		n.ReductionAmount, n.ReductionUnit = p.ReductionAmount, p.ReductionUnit
	case ResolutionNoAffectiveAboveAmount:
		n.MaxAffectiveAmount = p.MaxAffectiveAmount
	case ResolutionMaxAffectivePerPeriod:
		n.MaxAffectiveCount, n.MaxAffectivePeriod = p.MaxAffectiveCount, p.MaxAffectivePeriod
	}
	r.ResolutionParams = n
}

func nonNegative(field string, v *float64) error {
	if v == nil || *v < 0 || *v != *v {
		return NewValidationError(field, "must be a non-negative number")
	}
	return nil
}

func ratingRange(field string, v *float64) error {
	if v == nil || *v < 0 || *v > 10 || *v != *v {
		return NewValidationError(field, "must be between 0 and 10")
	}
	return nil
}
