package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	applog "finanzapp/internal/log"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			applog.FromContext(ctx).ErrorContext(ctx, "Health check failed", applog.FieldError, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCSRF hands out the double-submit token and sets its cookie.
func (s *Server) handleCSRF(c *gin.Context) {
	if s.csrf == nil {
		c.JSON(http.StatusOK, gin.H{"csrfToken": "", "enabled": false})
		return
	}
	token, err := s.csrf.issue(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"csrfToken": token, "enabled": true})
}
