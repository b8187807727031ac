package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/mw"
	"github.com/flplemos/senac-agenda-central/internal/parse"
)

const maxWatchesPerSubscription = 20

type watchBody struct {
	Kind     model.ResourceKind `json:"kind" binding:"required"`
	Resource string             `json:"resource" binding:"required"`
	Date     string             `json:"date" binding:"required"`
	Shift    model.Shift        `json:"shift,omitempty"`
}

type putWatchesRequest struct {
	Endpoint string      `json:"endpoint" binding:"required"`
	P256DH   string      `json:"p256dh" binding:"required"`
	Auth     string      `json:"auth" binding:"required"`
	Watches  []watchBody `json:"watches"`
}

func (w watchBody) toModel(endpoint string) (model.SlotWatch, error) {
	date, err := parse.ParseDate(w.Date)
	if err != nil {
		return model.SlotWatch{}, model.Validationf("%v", err)
	}
	watch := model.SlotWatch{Endpoint: endpoint, Kind: w.Kind, Resource: w.Resource, ReservationDate: date, Shift: w.Shift}

	switch w.Kind {
	case model.KindEquipment:
		if !model.EquipmentType(w.Resource).Valid() {
			return watch, model.Validationf("unknown equipment type %q", w.Resource)
		}
		if !w.Shift.Valid() {
			return watch, model.Validationf("equipment watches need a shift")
		}
	case model.KindSpace:
		if !model.SpaceType(w.Resource).Valid() {
			return watch, model.Validationf("unknown space %q", w.Resource)
		}
		watch.Shift = ""
	default:
		return watch, model.Validationf("unknown watch kind %q", w.Kind)
	}
	return watch, nil
}

// PutWatches creates or replaces a push subscription and the slots it watches.
func (h *Handler) PutWatches(c *gin.Context) {
	var req putWatchesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if len(req.Watches) > maxWatchesPerSubscription {
		badRequest(c, "too many watches")
		return
	}

	watches := make([]model.SlotWatch, 0, len(req.Watches))
	for _, w := range req.Watches {
		m, err := w.toModel(req.Endpoint)
		if err != nil {
			handleError(c, err)
			return
		}
		watches = append(watches, m)
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		UserID:   mw.IdentityFrom(c).UserID,
	}

	err := h.store.DB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_id"}),
		}).Create(&subscription).Error; err != nil {
			return err
		}

		if err := tx.Where("endpoint = ?", req.Endpoint).Delete(&model.SlotWatch{}).Error; err != nil {
			return err
		}
		if len(watches) > 0 {
			if err := tx.Create(&watches).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		h.log.Error("failed to save watches", zap.String("endpoint", req.Endpoint), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save watches", "kind": "store"})
		return
	}

	c.Status(http.StatusCreated)
}

type deleteWatchesRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteWatches removes a subscription and all of its watches.
func (h *Handler) DeleteWatches(c *gin.Context) {
	var req deleteWatchesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	err := h.store.DB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("endpoint = ?", req.Endpoint).Delete(&model.SlotWatch{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PushSubscription{Endpoint: req.Endpoint}).Error
	})
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete watches", "kind": "store"})
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam reads a query parameter without decoding '+' as a space.
// Push endpoints are URLs and may carry '+' literally.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			v, err := url.PathUnescape(kv[len(key)+1:])
			if err != nil {
				return "", false
			}
			return v, true
		}
	}
	return "", false
}

// GetWatches lists the slots a subscription watches.
func (h *Handler) GetWatches(c *gin.Context) {
	endpoint, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || endpoint == "" {
		badRequest(c, "endpoint is required")
		return
	}

	var subscription model.PushSubscription
	err := h.store.DB().WithContext(c.Request.Context()).
		Preload("Watches", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&subscription, "endpoint = ?", endpoint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found", "kind": "not_found"})
		} else {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription", "kind": "store"})
		}
		return
	}

	out := make([]watchBody, len(subscription.Watches))
	for i, w := range subscription.Watches {
		out[i] = watchBody{Kind: w.Kind, Resource: w.Resource, Date: parse.FormatDate(w.ReservationDate), Shift: w.Shift}
	}
	c.JSON(http.StatusOK, gin.H{"watches": out})
}
