package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	applog "finanzapp/internal/log"
	"finanzapp/internal/services"
)

type createdExpenseResponse struct {
	Success      bool          `json:"success,omitempty"`
	Message      string        `json:"message,omitempty"`
	DefinitionID string        `json:"definitionId"`
	InstanceID   string        `json:"instanceId"`
	Entry        entryResponse `json:"entry"`
}

func (s *Server) handleCreateExpense(c *gin.Context) {
	var req expenseRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.toNewExpense()
	if err != nil {
		respondError(c, err)
		return
	}
	created, err := s.expenses.CreateExpense(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createdExpenseResponse{
		DefinitionID: created.DefinitionID,
		InstanceID:   created.EntryID,
		Entry:        newEntryResponse(created.Entry),
	})
}

// handleExternalExpense captures a one-off expense sent by a phone
// shortcut, optionally backdated through captured_at.
func (s *Server) handleExternalExpense(c *gin.Context) {
	var req externalExpenseRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := req.Amount.money()
	if err != nil {
		respondError(c, err)
		return
	}
	in := services.NewExpense{Purpose: sanitizeInput(req.Purpose), Amount: amount}
	if req.CapturedAt != "" {
		at, err := services.ParseCapturedAt(req.CapturedAt, s.loc)
		if err != nil {
			respondError(c, err)
			return
		}
		in.ChargedAt = &at
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)
	created, err := s.expenses.CreateExpense(ctx, userID, in)
	if err != nil {
		respondError(c, err)
		return
	}

	applog.FromContext(ctx).InfoContext(ctx, "External expense captured",
		applog.FieldEntryID, created.EntryID,
		applog.FieldMonthKey, created.Entry.MonthKey)

	c.JSON(http.StatusCreated, createdExpenseResponse{
		Success:      true,
		Message:      fmt.Sprintf("Expense %q of %s captured", created.Entry.Purpose, formatEuros(created.Entry.Amount)),
		DefinitionID: created.DefinitionID,
		InstanceID:   created.EntryID,
		Entry:        newEntryResponse(created.Entry),
	})
}

func (s *Server) handleMonthEntries(c *gin.Context) {
	month, err := s.expenses.MonthEntries(c.Request.Context(), currentUserID(c), services.MonthQuery{
		MonthKey: c.Query("monthKey"),
		SortBy:   services.SortField(c.Query("sortBy")),
		Order:    services.SortOrder(c.Query("order")),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"monthKey":       month.MonthKey,
		"isCurrentMonth": month.IsCurrentMonth,
		"expenses":       newEntryResponses(month.Entries),
	})
}

func (s *Server) handleMonthSummary(c *gin.Context) {
	sum, err := s.expenses.MonthSummary(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"monthKey":     sum.MonthKey,
		"totalSpent":   sum.Total.Euros(),
		"countUnrated": sum.CountUnrated,
	})
}

func (s *Server) handleUnratedEntries(c *gin.Context) {
	entries, err := s.expenses.UnratedEntries(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]unratedResponse, 0, len(entries))
	for _, u := range entries {
		out = append(out, unratedResponse{
			entryResponse: newEntryResponse(u.Entry),
			TimesCharged:  u.TimesCharged,
			TotalPaid:     eurosPtr(u.TotalPaid),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteEntry(c *gin.Context) {
	if err := s.expenses.DeleteEntry(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "expense deleted"})
}

// handleRateEntry serves both POST (first rating) and PUT (re-rating).
func (s *Server) handleRateEntry(c *gin.Context) {
	var req rateRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.toRatingInput()
	if err != nil {
		respondError(c, err)
		return
	}
	entry, err := s.expenses.RateEntry(c.Request.Context(), currentUserID(c), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEntryResponse(entry))
}
