package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"brigade/internal/agents"
	"brigade/internal/analytics"
	"brigade/internal/models"
)

func statusFor(err error) int {
	switch {
	case agents.IsValidation(err),
		errors.Is(err, analytics.ErrInvalidRange),
		errors.Is(err, analytics.ErrInvalidBucket):
		return http.StatusBadRequest
	case agents.IsNotFound(err), errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
