package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/parse"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
)

// equipmentAvailabilityResponse is the availability of every type for one shift.
type equipmentAvailabilityResponse struct {
	Date       string                                  `json:"date"`
	Shift      model.Shift                             `json:"shift"`
	PickupTime string                                  `json:"pickupTime"`
	ReturnTime string                                  `json:"returnTime"`
	Equipment  map[model.EquipmentType]model.UnitCount `json:"equipment"`
}

// dateParam reads ?date=, defaulting to the facility's today.
func (h *Handler) dateParam(c *gin.Context) (datatypes.Date, bool) {
	raw := c.Query("date")
	if raw == "" {
		return h.svc.Today(), true
	}
	d, err := parse.ParseDate(raw)
	if err != nil {
		badRequest(c, err.Error())
		return datatypes.Date{}, false
	}
	return d, true
}

// GetEquipmentAvailability handles GET /api/availability/equipment?date=&shift=.
func (h *Handler) GetEquipmentAvailability(c *gin.Context) {
	date, ok := h.dateParam(c)
	if !ok {
		return
	}
	shift := model.Shift(c.Query("shift"))
	window, err := schedule.ShiftWindow(shift)
	if err != nil {
		handleError(c, err)
		return
	}

	counts, err := h.svc.EquipmentAvailability(c.Request.Context(), date, shift)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, equipmentAvailabilityResponse{
		Date:       parse.FormatDate(date),
		Shift:      shift,
		PickupTime: parse.FormatClock(window.Start),
		ReturnTime: parse.FormatClock(window.End),
		Equipment:  counts,
	})
}

// GetSpaceAvailability handles GET /api/availability/spaces?date=.
func (h *Handler) GetSpaceAvailability(c *gin.Context) {
	date, ok := h.dateParam(c)
	if !ok {
		return
	}

	flags, err := h.svc.SpaceAvailability(c.Request.Context(), date)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"date": parse.FormatDate(date), "spaces": flags})
}

// GetSpaceRangeAvailability handles
// GET /api/availability/spaces/:space_type?date=&start=&end=.
func (h *Handler) GetSpaceRangeAvailability(c *gin.Context) {
	date, ok := h.dateParam(c)
	if !ok {
		return
	}
	space := model.SpaceType(c.Param("space_type"))
	start, err := parse.ParseClock(c.Query("start"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	end, err := parse.ParseClock(c.Query("end"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	free, err := h.svc.SpaceRangeAvailable(c.Request.Context(), space, date, start, end)
	if err != nil {
		handleError(c, err)
		return
	}

	resp := gin.H{
		"date":      parse.FormatDate(date),
		"spaceType": space,
		"start":     parse.FormatClock(start),
		"end":       parse.FormatClock(end),
		"available": free,
	}
	// Window violations are reported but do not change the overlap answer.
	if err := h.svc.Policy().CheckSpaceWindow(space, start, end); err != nil {
		resp["bookable"] = false
		resp["reason"] = err.Error()
	} else {
		resp["bookable"] = free
	}
	c.JSON(http.StatusOK, resp)
}
