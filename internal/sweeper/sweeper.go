// Package sweeper closes reservations whose window has ended.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/schedule"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

type ledger interface {
	SweepEnded(ctx context.Context, today datatypes.Date, now datatypes.Time) ([]store.Reservation, error)
	PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper completes confirmed reservations and cancels pending ones once
// their window is over. It also drops stale idempotency keys.
type Sweeper struct {
	ledger         ledger
	policy         *schedule.Policy
	interval       time.Duration
	idempotencyTTL time.Duration
	now            func() time.Time
	log            *zap.Logger
}

func New(l ledger, policy *schedule.Policy, interval, idempotencyTTL time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		ledger:         l,
		policy:         policy,
		interval:       interval,
		idempotencyTTL: idempotencyTTL,
		now:            time.Now,
		log:            log,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs a single sweep.
func (s *Sweeper) Tick(ctx context.Context) {
	now := s.now()

	swept, err := s.ledger.SweepEnded(ctx, s.policy.Today(now), s.policy.ClockOf(now))
	if err != nil {
		s.log.Error("failed to sweep ended reservations", zap.Error(err))
	}
	for i := range swept {
		r := &swept[i]
		s.log.Info("reservation closed",
			zap.String("reservation_id", r.ID()),
			zap.String("user_id", r.UserID()),
			zap.String("slot", r.Slot().String()),
			zap.String("status", string(r.Status())),
		)
	}

	if s.idempotencyTTL <= 0 {
		return
	}
	purged, err := s.ledger.PurgeIdempotencyKeys(ctx, now.Add(-s.idempotencyTTL))
	if err != nil {
		s.log.Error("failed to purge idempotency keys", zap.Error(err))
		return
	}
	if purged > 0 {
		s.log.Debug("purged idempotency keys", zap.Int64("count", purged))
	}
}
