package services

import (
	"fmt"

	"finanzapp/internal/core"
)

// ResolutionEvaluator computes the status of one resolution from the
// entries of its window and of the window before it.
type ResolutionEvaluator interface {
	Evaluate(res core.Resolution, window, previous []core.LedgerEntry) core.ResolutionStatus
}

// ResolutionEvaluatorFunc adapts a function to ResolutionEvaluator.
type ResolutionEvaluatorFunc func(res core.Resolution, window, previous []core.LedgerEntry) core.ResolutionStatus

func (f ResolutionEvaluatorFunc) Evaluate(res core.Resolution, window, previous []core.LedgerEntry) core.ResolutionStatus {
	return f(res, window, previous)
}

var resolutionEvaluators = map[core.ResolutionType]ResolutionEvaluator{
	core.ResolutionUnderAmountForRating:   ResolutionEvaluatorFunc(evaluateUnderAmountForRating),
	core.ResolutionTargetAvgRating:        ResolutionEvaluatorFunc(evaluateTargetAvgRating),
	core.ResolutionLessThanLastMonth:      ResolutionEvaluatorFunc(evaluateLessThanLastMonth),
	core.ResolutionNoAffectiveAboveAmount: ResolutionEvaluatorFunc(evaluateNoAffectiveAboveAmount),
	core.ResolutionMaxAffectivePerPeriod:  ResolutionEvaluatorFunc(evaluateMaxAffectivePerPeriod),
}

// EvaluateResolution runs the evaluator registered for the resolution's type.
// Past periods are closed: they always report as met while still carrying
// the computed values.
func EvaluateResolution(res core.Resolution, window, previous []core.LedgerEntry, isCurrentPeriod bool) (core.ResolutionStatus, error) {
	ev, ok := resolutionEvaluators[res.Type]
	if !ok {
		return core.ResolutionStatus{}, core.NewValidationError("type", fmt.Sprintf("unknown resolution type %q", res.Type))
	}
	st := ev.Evaluate(res, window, previous)
	st.ResolutionID = res.ID
	st.IsMet = st.IsMet || !isCurrentPeriod
	return st, nil
}

func evaluateUnderAmountForRating(res core.Resolution, window, _ []core.LedgerEntry) core.ResolutionStatus {
	threshold := deref(res.AmountThreshold)
	ratingThreshold := deref(res.RatingThreshold)

	var relevant int64
	for _, e := range window {
		if s, ok := e.Rating.RatedScore(); ok && s < ratingThreshold {
			relevant += e.Amount.Cents
		}
	}

	if res.Unit != nil && *res.Unit == core.UnitPercent {
		total := sumCents(window)
		var pct float64
		if total > 0 {
			pct = float64(relevant) / float64(total) * 100
		}
		return core.ResolutionStatus{
			IsMet:       pct <= threshold,
			Current:     pct,
			Target:      threshold,
			Description: fmt.Sprintf("%.1f%% / %.1f%%", pct, threshold),
		}
	}

	cur := euros(relevant)
	return core.ResolutionStatus{
		IsMet:       cur <= threshold,
		Current:     cur,
		Target:      threshold,
		Description: fmt.Sprintf("%.2f € / %.2f €", cur, threshold),
	}
}

// evaluateTargetAvgRating compares the amount-weighted average score of
// rated entries against the target.
func evaluateTargetAvgRating(res core.Resolution, window, _ []core.LedgerEntry) core.ResolutionStatus {
	target := deref(res.TargetAvgRating)

	var weighted float64
	var amount int64
	var rated int
	for _, e := range window {
		s, ok := e.Rating.RatedScore()
		if !ok {
			continue
		}
		rated++
		weighted += s * float64(e.Amount.Cents)
		amount += e.Amount.Cents
	}
	if rated == 0 {
		return core.ResolutionStatus{Description: "no ratings"}
	}

	var avg float64
	if amount > 0 {
		avg = weighted / float64(amount)
	}
	return core.ResolutionStatus{
		IsMet:       avg >= target,
		Current:     avg,
		Target:      target,
		Description: fmt.Sprintf("%.2f / %.2f", avg, target),
	}
}

func evaluateLessThanLastMonth(res core.Resolution, window, previous []core.LedgerEntry) core.ResolutionStatus {
	reduction := deref(res.ReductionAmount)
	cur := euros(sumCents(window))
	prev := euros(sumCents(previous))

	target := prev - reduction
	if res.ReductionUnit != nil && *res.ReductionUnit == core.UnitPercent {
		target = prev * (1 - reduction/100)
	}
	return core.ResolutionStatus{
		IsMet:       cur <= target,
		Current:     cur,
		Target:      target,
		Description: fmt.Sprintf("%.2f € / %.2f €", cur, target),
	}
}

func evaluateNoAffectiveAboveAmount(res core.Resolution, window, _ []core.LedgerEntry) core.ResolutionStatus {
	limit := core.MoneyFromFloat(deref(res.MaxAffectiveAmount))

	var count int
	for _, e := range window {
		if e.IsImpulsive() && e.Amount.Cents > limit.Cents {
			count++
		}
	}
	return core.ResolutionStatus{
		IsMet:       count == 0,
		Current:     float64(count),
		Target:      0,
		Description: fmt.Sprintf("%d / 0", count),
	}
}

// evaluateMaxAffectivePerPeriod counts impulsive entries per Monday-start
// week and reports the busiest week, or the whole window for MONTH.
func evaluateMaxAffectivePerPeriod(res core.Resolution, window, _ []core.LedgerEntry) core.ResolutionStatus {
	limit := 0
	if res.MaxAffectiveCount != nil {
		limit = *res.MaxAffectiveCount
	}

	var count int
	if res.MaxAffectivePeriod != nil && *res.MaxAffectivePeriod == core.AffectiveWeek {
		perWeek := make(map[int64]int)
		for _, e := range window {
			if e.IsImpulsive() {
				wk := core.WeekStart(e.ChargedAt).Unix()
				perWeek[wk]++
				count = max(count, perWeek[wk])
			}
		}
	} else {
		for _, e := range window {
			if e.IsImpulsive() {
				count++
			}
		}
	}
	return core.ResolutionStatus{
		IsMet:       count <= limit,
		Current:     float64(count),
		Target:      float64(limit),
		Description: fmt.Sprintf("%d / %d", count, limit),
	}
}

func sumCents(entries []core.LedgerEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Amount.Cents
	}
	return total
}

func euros(cents int64) float64 {
	return core.Money{Cents: cents}.Euros()
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
