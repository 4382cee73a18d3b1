package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"finanzapp/internal/core"
	"finanzapp/internal/services"
)

func (s *Server) handleListResolutions(c *gin.Context) {
	list, err := s.resolutions.List(c.Request.Context(), currentUserID(c), c.Query("monthKey"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]resolutionResponse, 0, len(list))
	for _, r := range list {
		out = append(out, newResolutionResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateResolution(c *gin.Context) {
	var req resolutionRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.resolutions.Create(c.Request.Context(), currentUserID(c), services.NewResolution{
		Type:     core.ResolutionType(strings.ToUpper(strings.TrimSpace(req.Type))),
		MonthKey: strings.TrimSpace(req.MonthKey),
		Params:   req.params(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newResolutionResponse(res))
}

// handleUpdateResolution replaces the parameters; type and month are fixed
// once created.
func (s *Server) handleUpdateResolution(c *gin.Context) {
	var req resolutionParamsRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.resolutions.Update(c.Request.Context(), currentUserID(c), c.Param("id"), req.params())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResolutionResponse(res))
}

func (s *Server) handleDeleteResolution(c *gin.Context) {
	if err := s.resolutions.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "resolution deleted"})
}

func (s *Server) handleResolutionStatuses(c *gin.Context) {
	statuses, err := s.resolutions.Statuses(c.Request.Context(), currentUserID(c), c.Query("monthKey"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]resolutionStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, resolutionStatusResponse{
			ID:          st.ResolutionID,
			IsMet:       st.IsMet,
			Current:     st.Current,
			Target:      st.Target,
			Description: st.Description,
		})
	}
	c.JSON(http.StatusOK, out)
}
