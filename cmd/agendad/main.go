package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flplemos/senac-agenda-central/config"
	"github.com/flplemos/senac-agenda-central/internal/api"
	"github.com/flplemos/senac-agenda-central/internal/booking"
	"github.com/flplemos/senac-agenda-central/internal/db"
	"github.com/flplemos/senac-agenda-central/internal/inventory"
	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/mw"
	"github.com/flplemos/senac-agenda-central/internal/notification"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
	"github.com/flplemos/senac-agenda-central/internal/store"
	"github.com/flplemos/senac-agenda-central/internal/sweeper"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger := newLogger(cfg.Log.Environment)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("agendad stopped with error", zap.Error(err))
	}
	logger.Info("server gracefully stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Log.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	gormDB, err := db.Init(ctx, &cfg.Database, logger.Named("db"))
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	appStore := store.NewGormStore(gormDB, store.Options{
		InitialStatus: model.ReservationStatus(cfg.Booking.InitialStatus),
		CommitTimeout: cfg.Booking.CommitTimeout,
		Logger:        logger.Named("store"),
	})
	policy := schedule.NewPolicy(cfg.Facility.Location, cfg.Booking.StrictGeneralSpaceShifts)

	var webpushOptions *webpush.Options
	var notifier booking.SlotNotifier
	var workerPool *notification.WorkerPool
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, logger.Named("push"))
		notifier = workerPool
	} else {
		logger.Warn("VAPID keys not configured; slot alerts are disabled")
	}

	svc := booking.NewService(appStore, policy, booking.Options{
		HorizonDays: cfg.Booking.HorizonDays,
		Notifier:    notifier,
		Logger:      logger.Named("booking"),
	})

	router := api.NewRouter(svc, appStore, webpushOptions, api.RouterOptions{
		Auth: mw.AuthConfig{
			JWTSecret:  cfg.Auth.JWTSecret,
			UserHeader: cfg.Auth.UserHeader,
			RoleHeader: cfg.Auth.RoleHeader,
		},
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		TrustedProxies:  cfg.Server.TrustedProxies,
		CacheTTL:        cfg.Server.CacheTTL,
		Logger:          logger.Named("http"),
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if workerPool != nil {
		workerPool.Start(gctx)
	}

	inventorySvc := inventory.NewService(cfg.Inventory, policy.Location(), appStore, logger.Named("inventory"))
	g.Go(func() error {
		inventorySvc.Run(gctx)
		return nil
	})

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(appStore, policy, cfg.Sweeper.Interval, cfg.Booking.IdempotencyTTL, logger.Named("sweeper"))
		g.Go(func() error {
			sw.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server ListenAndServe: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping services")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
