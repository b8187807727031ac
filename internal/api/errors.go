package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flplemos/senac-agenda-central/internal/model"
)

// errorKind maps a domain error to its HTTP status and a stable kind label.
// A lost race renders like any other unavailability; only the kind differs.
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, model.ErrConflictRace):
		return http.StatusConflict, "conflict_race"
	case errors.Is(err, model.ErrResourceUnavailable):
		return http.StatusConflict, "resource_unavailable"
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrStore):
		return http.StatusServiceUnavailable, "store"
	}
	return http.StatusInternalServerError, "internal"
}

func handleError(c *gin.Context, err error) {
	status, kind := errorKind(err)
	if status >= http.StatusInternalServerError {
		c.Error(err)
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": kind})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": "validation"})
}
