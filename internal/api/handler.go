package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/flplemos/senac-agenda-central/internal/booking"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     *booking.Service
	store   store.Store
	webpush *webpush.Options
	log     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *booking.Service, s store.Store, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:     svc,
		store:   s,
		webpush: webpushOptions,
		log:     log,
	}
}
