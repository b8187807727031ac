package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/parse"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
)

const queuePerWorker = 16

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the push payload shown by the browser.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Slot  string `json:"slot"`
}

// WorkerPool tells watchers that a slot has freed up.
type WorkerPool struct {
	size    int
	jobs    chan model.SlotKey
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.SlotKey, size*queuePerWorker),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.With(zap.Int("worker", id))
	log.Debug("worker started")
	for {
		select {
		case key := <-wp.jobs:
			wp.notifySlot(ctx, key)
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Dispatch queues a freed slot. It never blocks the caller; when the queue
// is full the alert is dropped.
func (wp *WorkerPool) Dispatch(key model.SlotKey) {
	select {
	case wp.jobs <- key:
	default:
		wp.log.Warn("notification queue full, dropping slot alert", zap.String("slot", key.String()))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.SlotKey {
	return wp.jobs
}

func watchScope(db *gorm.DB, key model.SlotKey) *gorm.DB {
	return db.Where("sw.kind = ? AND sw.resource = ? AND sw.reservation_date = ? AND sw.shift = ?",
		key.Kind, key.Resource, key.Date, key.Shift)
}

// notifySlot alerts every subscription watching key. Watches are one-shot and
// removed once delivered.
func (wp *WorkerPool) notifySlot(ctx context.Context, key model.SlotKey) {
	var subscriptions []model.PushSubscription
	err := watchScope(wp.db.WithContext(ctx).
		Joins("JOIN slot_watches sw ON sw.endpoint = push_subscriptions.endpoint"), key).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error("failed to load watchers", zap.String("slot", key.String()), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(buildMessage(key))
	if err != nil {
		wp.log.Error("failed to encode push message", zap.Error(err))
		return
	}

	wp.log.Info("sending slot alerts", zap.String("slot", key.String()), zap.Int("count", len(subscriptions)))
	seen := make(map[string]bool, len(subscriptions))
	for _, sub := range subscriptions {
		if seen[sub.Endpoint] {
			continue
		}
		seen[sub.Endpoint] = true
		if wp.sendNotification(ctx, sub, payload) {
			wp.clearWatch(ctx, sub.Endpoint, key)
		}
	}
}

func buildMessage(key model.SlotKey) Message {
	date := parse.FormatDate(key.Date)
	var body string
	switch key.Kind {
	case model.KindEquipment:
		body = fmt.Sprintf("A %s is free on %s, %s.", strings.ReplaceAll(key.Resource, "_", " "), date, schedule.FormatShift(key.Shift))
	default:
		body = fmt.Sprintf("The %s has free time on %s.", strings.ReplaceAll(key.Resource, "_", " "), date)
	}
	return Message{Title: "Slot available", Body: body, Slot: key.String()}
}

func (wp *WorkerPool) clearWatch(ctx context.Context, endpoint string, key model.SlotKey) {
	err := wp.db.WithContext(ctx).
		Where("endpoint = ? AND kind = ? AND resource = ? AND reservation_date = ? AND shift = ?",
			endpoint, key.Kind, key.Resource, key.Date, key.Shift).
		Delete(&model.SlotWatch{}).Error
	if err != nil {
		wp.log.Warn("failed to clear delivered watch", zap.String("endpoint", endpoint), zap.Error(err))
	}
}

// sendNotification delivers one push message and reports whether it arrived.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) bool {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		err := wp.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("endpoint = ?", sub.Endpoint).Delete(&model.SlotWatch{}).Error; err != nil {
				return err
			}
			return tx.Delete(&model.PushSubscription{Endpoint: sub.Endpoint}).Error
		})
		if err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
		return false
	}
	return resp.StatusCode < http.StatusBadRequest
}
