package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleStopRecurring ends a recurring definition and reports the charge
// that will no longer happen.
func (s *Server) handleStopRecurring(c *gin.Context) {
	pending, err := s.expenses.StopRecurring(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "recurring expense stopped",
		"hasNextCharge":  pending.HasNextCharge,
		"nextChargeDate": pending.NextChargeDate,
	})
}

func (s *Server) handleNextCharge(c *gin.Context) {
	next, err := s.expenses.NextCharge(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNextChargeResponse(next))
}
