package services

import (
	"fmt"
	"math"

	"finanzapp/internal/core"
)

// Rating formula coefficients. These values define the product's scoring
// and must not change.
const (
	happyWeight          = 2.0
	valueWeight          = 2.5
	repeatNowYes         = 24.0
	repeatNowNo          = 6.0
	plannedDeliberate    = 15.0
	plannedImpulsive     = 4.5
	ratingDivisor        = 9.0
	needElsewhereCutoff  = 7.0
	needElsewhereLowDiv  = 2.0
	needElsewhereHighMul = 0.8

	// LifesavingScore sits above the 0-10 scale and is excluded from averages.
	LifesavingScore = 11.0
)

// RatingInput is either a lifesaving flag or the five answers.
type RatingInput struct {
	Lifesaving bool
	Answers    core.RatingAnswers
}

// ComputeRating turns a rating input into a score rounded to two decimals.
func ComputeRating(in RatingInput) (float64, error) {
	if in.Lifesaving {
		return LifesavingScore, nil
	}
	a := in.Answers
	if err := checkScale("q1_happy", a.Q1Happy); err != nil {
		return 0, err
	}
	if err := checkScale("q2_value", a.Q2Value); err != nil {
		return 0, err
	}
	if !a.Q5Planned.IsValid() {
		return 0, core.NewValidationError("q5_planned", fmt.Sprintf("unknown value %q", a.Q5Planned))
	}

	q3 := repeatNowNo
	if a.Q3RepeatNow {
		q3 = repeatNowYes
	}
	q5 := plannedImpulsive
	if a.Q5Planned == core.PlannedDeliberate {
		q5 = plannedDeliberate
	}

	base := (a.Q1Happy*happyWeight + a.Q2Value*valueWeight + q3 + q5) / ratingDivisor
	final := base
	if a.Q4NeedElsewhere {
		if base < needElsewhereCutoff {
			final = base / needElsewhereLowDiv
		} else {
			final = base * needElsewhereHighMul
		}
	}
	return roundScore(final), nil
}

// RatingFor builds the rating record stored on a ledger entry.
func RatingFor(in RatingInput) (core.Rating, error) {
	score, err := ComputeRating(in)
	if err != nil {
		return core.Rating{}, err
	}
	if in.Lifesaving {
		return core.Rating{Status: core.RatingLifesaving, Score: &score}, nil
	}
	answers := in.Answers
	return core.Rating{Status: core.RatingRated, Answers: &answers, Score: &score}, nil
}

func checkScale(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 10 {
		return core.NewValidationError(field, "must be between 0 and 10")
	}
	return nil
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
