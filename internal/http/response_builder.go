// Package http provides the JSON API of finanzapp.
//
// This file maps service errors to status codes and renders error bodies.
// Every error response has the shape {"message": "..."}; validation
// failures add the offending field.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"finanzapp/internal/core"
	applog "finanzapp/internal/log"
	"finanzapp/internal/services"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps an error returned by the services to an HTTP status.
func statusFor(err error) int {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotCurrentMonth),
		errors.Is(err, core.ErrResolutionLimit),
		errors.Is(err, core.ErrNotRecurring),
		errors.Is(err, core.ErrFuturePeriod),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidMonthKey),
		errors.Is(err, core.ErrInvalidWeekKey),
		errors.Is(err, core.ErrEmptyDescription):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes err with the mapped status. Server errors are logged
// and their details stay out of the response.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorResponse{Message: err.Error()}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}

	if status >= http.StatusInternalServerError {
		ctx := c.Request.Context()
		applog.FromContext(ctx).ErrorContext(ctx, "Request failed",
			applog.FieldError, err,
			applog.FieldErrorType, errorType(err),
			applog.FieldPath, c.FullPath())
		body = errorResponse{Message: "internal server error"}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func errorType(err error) string {
	if core.IsPersistence(err) {
		return applog.ErrorTypeDatabase
	}
	return applog.ErrorTypeInternal
}

// respondMessage writes a plain message body.
func respondMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Message: msg})
}

func badRequest(c *gin.Context, msg string) {
	respondMessage(c, http.StatusBadRequest, msg)
}

type answersResponse struct {
	Q1Happy         float64 `json:"q1Happy"`
	Q2Value         float64 `json:"q2Value"`
	Q3RepeatNow     bool    `json:"q3RepeatNow"`
	Q4NeedElsewhere bool    `json:"q4NeedElsewhere"`
	Q5Planned       string  `json:"q5Planned"`
}

type entryResponse struct {
	ID           string           `json:"id"`
	DefinitionID string           `json:"definitionId"`
	Purpose      string           `json:"purpose"`
	Amount       float64          `json:"amount"`
	AmountCents  int64            `json:"amountCents"`
	ChargedAt    time.Time        `json:"chargedAt"`
	MonthKey     string           `json:"monthKey"`
	IsRecurring  bool             `json:"isRecurring"`
	Interval     string           `json:"interval"`
	RatingStatus string           `json:"ratingStatus"`
	RatingValue  *float64         `json:"ratingValue"`
	Answers      *answersResponse `json:"answers,omitempty"`
	RatedAt      *time.Time       `json:"ratedAt,omitempty"`
}

func newEntryResponse(e core.LedgerEntry) entryResponse {
	r := entryResponse{
		ID:           e.ID,
		DefinitionID: e.DefinitionID,
		Purpose:      e.Purpose,
		Amount:       e.Amount.Euros(),
		AmountCents:  e.Amount.Cents,
		ChargedAt:    e.ChargedAt,
		MonthKey:     e.MonthKey,
		IsRecurring:  e.IsRecurring,
		Interval:     e.IntervalSnapshot,
		RatingStatus: string(e.Rating.Status),
		RatingValue:  e.Rating.Score,
		RatedAt:      e.RatedAt,
	}
	if a := e.Rating.Answers; a != nil {
		r.Answers = &answersResponse{
			Q1Happy:         a.Q1Happy,
			Q2Value:         a.Q2Value,
			Q3RepeatNow:     a.Q3RepeatNow,
			Q4NeedElsewhere: a.Q4NeedElsewhere,
			Q5Planned:       string(a.Q5Planned),
		}
	}
	return r
}

func newEntryResponses(entries []core.LedgerEntry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newEntryResponse(e))
	}
	return out
}

type unratedResponse struct {
	entryResponse
	TimesCharged *int     `json:"timesCharged,omitempty"`
	TotalPaid    *float64 `json:"totalPaid,omitempty"`
}

type nextChargeResponse struct {
	HasNextCharge  bool       `json:"hasNextCharge"`
	NextChargeDate *time.Time `json:"nextChargeDate"`
}

func newNextChargeResponse(n services.NextCharge) nextChargeResponse {
	return nextChargeResponse{HasNextCharge: n.HasNextCharge, NextChargeDate: n.NextChargeDate}
}

type resolutionResponse struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	MonthKey string `json:"monthKey"`
	resolutionParamsRequest
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newResolutionResponse(r core.Resolution) resolutionResponse {
	p := r.ResolutionParams
	return resolutionResponse{
		ID:       r.ID,
		Type:     string(r.Type),
		MonthKey: r.MonthKey,
		resolutionParamsRequest: resolutionParamsRequest{
			AmountThreshold:    p.AmountThreshold,
			RatingThreshold:    p.RatingThreshold,
			Unit:               p.Unit,
			TargetAvgRating:    p.TargetAvgRating,
			ReductionAmount:    p.ReductionAmount,
			ReductionUnit:      p.ReductionUnit,
			MaxAffectiveAmount: p.MaxAffectiveAmount,
			MaxAffectiveCount:  p.MaxAffectiveCount,
			MaxAffectivePeriod: p.MaxAffectivePeriod,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type resolutionStatusResponse struct {
	ID          string  `json:"id"`
	IsMet       bool    `json:"isMet"`
	Current     float64 `json:"current"`
	Target      float64 `json:"target"`
	Description string  `json:"description"`
}

type statisticsResponse struct {
	PeriodType        string          `json:"periodType"`
	PeriodKey         string          `json:"periodKey"`
	PeriodStart       time.Time       `json:"periodStart"`
	PeriodEnd         time.Time       `json:"periodEnd"`
	Expenses          []entryResponse `json:"expenses"`
	TotalSpent        float64         `json:"totalSpent"`
	AvgRating         *float64        `json:"avgRating"`
	RatingDiff        *float64        `json:"ratingDiff"`
	HasComparison     bool            `json:"hasComparison"`
	ComparisonKey     string          `json:"comparisonKey,omitempty"`
	RatingsForDensity []float64       `json:"ratingsForDensity"`
}

func newStatisticsResponse(st services.PeriodStatistics) statisticsResponse {
	return statisticsResponse{
		PeriodType:        string(st.PeriodType),
		PeriodKey:         st.PeriodKey,
		PeriodStart:       st.Window.Start,
		PeriodEnd:         st.Window.End,
		Expenses:          newEntryResponses(st.Entries),
		TotalSpent:        st.TotalSpent.Euros(),
		AvgRating:         st.AvgRating,
		RatingDiff:        st.RatingDiff,
		HasComparison:     st.HasComparison,
		ComparisonKey:     st.ComparisonKey,
		RatingsForDensity: st.RatingsForDensity,
	}
}
