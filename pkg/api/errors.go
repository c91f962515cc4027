package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umami-labs/brigade/pkg/services"
	"github.com/umami-labs/brigade/pkg/store"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	switch {
	case errors.As(err, &validErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validErr.Error()})
	case errors.Is(err, store.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another user"})
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	default:
		slog.Error("Unexpected service error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
