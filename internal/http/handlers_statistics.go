package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"finanzapp/internal/core"
)

// handleStatistics reports one month or ISO week. periodKey defaults to
// the current period.
func (s *Server) handleStatistics(c *gin.Context) {
	pt := core.PeriodType(c.DefaultQuery("periodType", string(core.PeriodMonth)))
	st, err := s.statistics.Period(c.Request.Context(), currentUserID(c), pt, c.Query("periodKey"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatisticsResponse(st))
}
