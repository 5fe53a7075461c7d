package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"inventory/internal/models"
)

func (s *Server) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch models.KindOf(err) {
	case models.KindValidation, models.KindProcessing:
		body := gin.H{"error": models.MessageOf(err)}
		var e *models.Error
		if errors.As(err, &e) && len(e.Details) > 0 {
			body["details"] = e.Details
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
	case models.KindNotFound:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": models.MessageOf(err)})
	case models.KindStore:
		s.log.Error().Err(err).Msg("store unavailable")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Database connection failed",
			"message": "Please ensure the database is running and migrated.",
		})
	default:
		s.log.Error().Err(err).Msg("unhandled error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
