package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flplemos/senac-agenda-central/internal/booking"
	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/mw"
	"github.com/flplemos/senac-agenda-central/internal/parse"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

const idempotencyHeader = "Idempotency-Key"

type postEquipmentRequest struct {
	EquipmentType string `json:"equipment_type" binding:"required"`
	Date          string `json:"date" binding:"required"`
	Shift         string `json:"shift" binding:"required"`
	Purpose       string `json:"purpose"`
}

type postSpaceRequest struct {
	SpaceType    string   `json:"space_type" binding:"required"`
	Date         string   `json:"date" binding:"required"`
	StartTime    string   `json:"start_time" binding:"required"`
	EndTime      string   `json:"end_time" binding:"required"`
	GroupSize    int      `json:"group_size"`
	GroupMembers []string `json:"group_members"`
	Purpose      string   `json:"purpose"`
}

// reservationResponse flattens both reservation kinds.
type reservationResponse struct {
	ID              string                  `json:"id"`
	Kind            model.ResourceKind      `json:"kind"`
	Status          model.ReservationStatus `json:"status"`
	UserID          string                  `json:"userId"`
	ReservationDate string                  `json:"reservationDate"`
	Purpose         string                  `json:"purpose"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`

	EquipmentID         string              `json:"equipmentId,omitempty"`
	EquipmentIdentifier string              `json:"equipmentIdentifier,omitempty"`
	EquipmentType       model.EquipmentType `json:"equipmentType,omitempty"`
	Shift               model.Shift         `json:"shift,omitempty"`
	PickupTime          string              `json:"pickupTime,omitempty"`
	ReturnTime          string              `json:"returnTime,omitempty"`

	SpaceType    model.SpaceType `json:"spaceType,omitempty"`
	StartTime    string          `json:"startTime,omitempty"`
	EndTime      string          `json:"endTime,omitempty"`
	GroupSize    int             `json:"groupSize,omitempty"`
	GroupMembers []string        `json:"groupMembers,omitempty"`
}

func equipmentResponse(r *model.EquipmentReservation) reservationResponse {
	resp := reservationResponse{
		ID:              r.ID,
		Kind:            model.KindEquipment,
		Status:          r.Status,
		UserID:          r.UserID,
		ReservationDate: parse.FormatDate(r.ReservationDate),
		Purpose:         r.Purpose,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		EquipmentID:     r.EquipmentID,
		Shift:           r.Shift,
		PickupTime:      parse.FormatClock(r.PickupTime),
		ReturnTime:      parse.FormatClock(r.ReturnTime),
	}
	if r.Equipment != nil {
		resp.EquipmentIdentifier = r.Equipment.Identifier
		resp.EquipmentType = r.Equipment.Type
	}
	return resp
}

func spaceResponse(r *model.SpaceReservation) reservationResponse {
	return reservationResponse{
		ID:              r.ID,
		Kind:            model.KindSpace,
		Status:          r.Status,
		UserID:          r.UserID,
		ReservationDate: parse.FormatDate(r.ReservationDate),
		Purpose:         r.Purpose,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		SpaceType:       r.SpaceType,
		StartTime:       parse.FormatClock(r.StartTime),
		EndTime:         parse.FormatClock(r.EndTime),
		GroupSize:       r.GroupSize,
		GroupMembers:    []string(r.GroupMembers),
	}
}

func toResponse(r *store.Reservation) reservationResponse {
	if r.Kind == model.KindEquipment {
		return equipmentResponse(r.Equipment)
	}
	return spaceResponse(r.Space)
}

// PostEquipmentReservation handles POST /api/reservations/equipment.
func (h *Handler) PostEquipmentReservation(c *gin.Context) {
	var req postEquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := parse.ParseDate(req.Date)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.svc.SubmitEquipmentReservation(c.Request.Context(), mw.IdentityFrom(c), booking.EquipmentRequest{
		Type:    model.EquipmentType(strings.ToLower(strings.TrimSpace(req.EquipmentType))),
		Date:    date,
		Shift:   model.Shift(strings.ToLower(strings.TrimSpace(req.Shift))),
		Purpose: req.Purpose,
		Token:   strings.TrimSpace(c.GetHeader(idempotencyHeader)),
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, equipmentResponse(res))
}

// PostSpaceReservation handles POST /api/reservations/spaces.
func (h *Handler) PostSpaceReservation(c *gin.Context) {
	var req postSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := parse.ParseDate(req.Date)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := parse.ParseClock(req.StartTime)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	end, err := parse.ParseClock(req.EndTime)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.svc.SubmitSpaceReservation(c.Request.Context(), mw.IdentityFrom(c), booking.SpaceRequest{
		Space:        model.SpaceType(strings.ToLower(strings.TrimSpace(req.SpaceType))),
		Date:         date,
		Start:        start,
		End:          end,
		GroupSize:    req.GroupSize,
		GroupMembers: req.GroupMembers,
		Purpose:      req.Purpose,
		Token:        strings.TrimSpace(c.GetHeader(idempotencyHeader)),
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, spaceResponse(res))
}

type transitionFunc func(context.Context, booking.Identity, string) (*store.Reservation, error)

// transition adapts one of the status operations to a handler.
func (h *Handler) transition(op transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := op(c.Request.Context(), mw.IdentityFrom(c), c.Param("id"))
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, toResponse(r))
	}
}

// CancelReservation handles POST /api/reservations/:id/cancel.
func (h *Handler) CancelReservation() gin.HandlerFunc {
	return h.transition(h.svc.CancelReservation)
}

// ConfirmReservation handles POST /api/reservations/:id/confirm.
func (h *Handler) ConfirmReservation() gin.HandlerFunc {
	return h.transition(h.svc.ConfirmReservation)
}

// CompleteReservation handles POST /api/reservations/:id/complete.
func (h *Handler) CompleteReservation() gin.HandlerFunc {
	return h.transition(h.svc.CompleteReservation)
}

// GetReservation handles GET /api/reservations/:id.
func (h *Handler) GetReservation(c *gin.Context) {
	r, err := h.svc.GetReservation(c.Request.Context(), mw.IdentityFrom(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(r))
}

// ListMyReservations handles GET /api/reservations/mine.
func (h *Handler) ListMyReservations(c *gin.Context) {
	list, err := h.svc.ListMine(c.Request.Context(), mw.IdentityFrom(c))
	if err != nil {
		handleError(c, err)
		return
	}

	status := model.ReservationStatus(c.Query("status"))
	out := make([]reservationResponse, 0, len(list))
	for i := range list {
		if status != "" && list[i].Status() != status {
			continue
		}
		out = append(out, toResponse(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"reservations": out})
}
