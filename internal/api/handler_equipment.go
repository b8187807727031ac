package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/parse"
)

// EquipmentResponse represents the API response for a single unit.
type EquipmentResponse struct {
	ID                  string              `json:"id"`
	Identifier          string              `json:"identifier"`
	Type                model.EquipmentType `json:"type"`
	AvailableForService bool                `json:"availableForService"`
	LastMaintenanceAt   *time.Time          `json:"lastMaintenanceAt"`
}

// ListEquipment handles GET /api/equipment?type=.
func (h *Handler) ListEquipment(c *gin.Context) {
	var filter *model.EquipmentType
	if raw := c.Query("type"); raw != "" {
		t := model.EquipmentType(raw)
		filter = &t
	}

	units, err := h.svc.ListEquipment(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}

	out := make([]EquipmentResponse, len(units))
	for i, u := range units {
		out[i] = EquipmentResponse{
			ID:                  u.ID,
			Identifier:          u.Identifier,
			Type:                u.Type,
			AvailableForService: u.AvailableForService,
			LastMaintenanceAt:   u.LastMaintenanceAt,
		}
	}
	c.JSON(http.StatusOK, out)
}

// GetStats handles GET /api/stats?date=.
func (h *Handler) GetStats(c *gin.Context) {
	date, ok := h.dateParam(c)
	if !ok {
		return
	}
	st, err := h.svc.Stats(c.Request.Context(), date)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": parse.FormatDate(date), "stats": st})
}

// Healthz handles GET /healthz by pinging the database.
func Healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
