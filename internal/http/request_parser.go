// Package http provides the JSON API of finanzapp.
//
// This file holds the request bodies and the helpers that decode and
// validate them before they reach the services.
package http

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"finanzapp/internal/core"
	"finanzapp/internal/services"
)

// amountInput accepts a JSON number (12.5) or a string as sent by capture
// shortcuts ("7,00€").
type amountInput struct {
	Money core.Money
	set   bool
}

func (a *amountInput) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	m, err := core.ParseAmount(s)
	if err != nil {
		return err
	}
	a.Money, a.set = m, true
	return nil
}

func (a amountInput) money() (core.Money, error) {
	if !a.set {
		return core.Money{}, &core.ValidationError{Field: "amount", Reason: "is required", Err: core.ErrInvalidAmount}
	}
	return a.Money, nil
}

type expenseRequest struct {
	Amount        amountInput `json:"amount"`
	Purpose       string      `json:"purpose"`
	IsRecurring   bool        `json:"isRecurring"`
	IntervalType  string      `json:"intervalType"`
	IntervalEvery int         `json:"intervalEvery"`
}

func (r expenseRequest) toNewExpense() (services.NewExpense, error) {
	amount, err := r.Amount.money()
	if err != nil {
		return services.NewExpense{}, err
	}
	in := services.NewExpense{
		Purpose:     sanitizeInput(r.Purpose),
		Amount:      amount,
		IsRecurring: r.IsRecurring,
	}
	if r.IsRecurring {
		in.IntervalKind = core.IntervalKind(strings.ToUpper(strings.TrimSpace(r.IntervalType)))
		in.IntervalEvery = r.IntervalEvery
	}
	return in, nil
}

// externalExpenseRequest is posted by phone shortcuts authenticated with
// an API key. CapturedAt defaults to now.
type externalExpenseRequest struct {
	Amount     amountInput `json:"amount"`
	Purpose    string      `json:"purpose"`
	CapturedAt string      `json:"captured_at"`
}

type rateRequest struct {
	Lifesaving      bool     `json:"lifesaving"`
	Q1Happy         *float64 `json:"q1Happy"`
	Q2Value         *float64 `json:"q2Value"`
	Q3RepeatNow     *bool    `json:"q3RepeatNow"`
	Q4NeedElsewhere *bool    `json:"q4NeedElsewhere"`
	Q5Planned       string   `json:"q5Planned"`
}

func (r rateRequest) toRatingInput() (services.RatingInput, error) {
	if r.Lifesaving {
		return services.RatingInput{Lifesaving: true}, nil
	}
	switch {
	case r.Q1Happy == nil:
		return services.RatingInput{}, core.NewValidationError("q1Happy", "is required")
	case r.Q2Value == nil:
		return services.RatingInput{}, core.NewValidationError("q2Value", "is required")
	case r.Q3RepeatNow == nil:
		return services.RatingInput{}, core.NewValidationError("q3RepeatNow", "is required")
	case r.Q4NeedElsewhere == nil:
		return services.RatingInput{}, core.NewValidationError("q4NeedElsewhere", "is required")
	}
	return services.RatingInput{Answers: core.RatingAnswers{
		Q1Happy:         *r.Q1Happy,
		Q2Value:         *r.Q2Value,
		Q3RepeatNow:     *r.Q3RepeatNow,
		Q4NeedElsewhere: *r.Q4NeedElsewhere,
		Q5Planned:       core.Planned(strings.ToUpper(strings.TrimSpace(r.Q5Planned))),
	}}, nil
}

type resolutionParamsRequest struct {
	AmountThreshold    *float64              `json:"amountThreshold"`
	RatingThreshold    *float64              `json:"ratingThreshold"`
	Unit               *core.Unit            `json:"unit"`
	TargetAvgRating    *float64              `json:"targetAvgRating"`
	ReductionAmount    *float64              `json:"reductionAmount"`
	ReductionUnit      *core.Unit            `json:"reductionUnit"`
	MaxAffectiveAmount *float64              `json:"maxAffectiveAmount"`
	MaxAffectiveCount  *int                  `json:"maxAffectiveCount"`
	MaxAffectivePeriod *core.AffectivePeriod `json:"maxAffectivePeriod"`
}

func (r resolutionParamsRequest) params() core.ResolutionParams {
	return core.ResolutionParams{
		AmountThreshold:    r.AmountThreshold,
		RatingThreshold:    r.RatingThreshold,
		Unit:               r.Unit,
		TargetAvgRating:    r.TargetAvgRating,
		ReductionAmount:    r.ReductionAmount,
		ReductionUnit:      r.ReductionUnit,
		MaxAffectiveAmount: r.MaxAffectiveAmount,
		MaxAffectiveCount:  r.MaxAffectiveCount,
		MaxAffectivePeriod: r.MaxAffectivePeriod,
	}
}

type resolutionRequest struct {
	Type     string `json:"type"`
	MonthKey string `json:"monthKey"`
	resolutionParamsRequest
}

// bindJSON decodes the body into dst and answers 400 when that fails.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if core.IsValidation(err) {
			respondError(c, err)
			return false
		}
		badRequest(c, "invalid JSON body")
		return false
	}
	return true
}
