package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/flplemos/senac-agenda-central/internal/booking"
	"github.com/flplemos/senac-agenda-central/internal/mw"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	Auth            mw.AuthConfig
	RateLimitPerSec float64
	RateLimitBurst  int
	// TrustedProxies may set X-Forwarded-For. Empty trusts none, so the
	// client IP is the peer address.
	TrustedProxies []string
	// CacheTTL bounds how stale an availability response may be. Zero disables caching.
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(svc *booking.Service, s store.Store, webpushOptions *webpush.Options, opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RateLimitPerSec <= 0 {
		opts.RateLimitPerSec = 10
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 5
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		opts.Logger.Warn("ignoring invalid trusted proxies", zap.Strings("proxies", opts.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(mw.Recovery(opts.Logger), mw.RequestLogger(opts.Logger))

	handler := NewHandler(svc, s, webpushOptions, opts.Logger)

	rateLimiter := mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)

	cacheStore := cache.New(opts.CacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, opts.CacheTTL)

	r.GET("/healthz", Healthz(s.DB()))

	// API group
	api := r.Group("/api")
	api.Use(mw.Authenticate(opts.Auth), rateLimiter, mw.Invalidate(cacheStore))
	{
		api.GET("/availability/equipment", caching, handler.GetEquipmentAvailability)
		api.GET("/availability/spaces", caching, handler.GetSpaceAvailability)
		api.GET("/availability/spaces/:space_type", caching, handler.GetSpaceRangeAvailability)

		api.POST("/reservations/equipment", handler.PostEquipmentReservation)
		api.POST("/reservations/spaces", handler.PostSpaceReservation)
		api.GET("/reservations/mine", handler.ListMyReservations)
		api.GET("/reservations/:id", handler.GetReservation)
		api.POST("/reservations/:id/cancel", handler.CancelReservation())
		api.POST("/reservations/:id/confirm", handler.ConfirmReservation())
		api.POST("/reservations/:id/complete", handler.CompleteReservation())

		api.GET("/equipment", caching, handler.ListEquipment)
		api.GET("/stats", handler.GetStats)

		api.GET("/watches", handler.GetWatches)
		api.PUT("/watches", handler.PutWatches)
		api.DELETE("/watches", handler.DeleteWatches)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
