package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/parse"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) SweepEnded(ctx context.Context, today datatypes.Date, now datatypes.Time) ([]store.Reservation, error) {
	args := m.Called(ctx, today, now)
	swept, _ := args.Get(0).([]store.Reservation)
	return swept, args.Error(1)
}

func (m *mockLedger) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

var brt = time.FixedZone("BRT", -3*60*60)

func newSweeper(t *testing.T, l ledger, ttl time.Duration) (*Sweeper, time.Time) {
	now := time.Date(2025, 6, 2, 1, 30, 0, 0, time.UTC) // 22:30 on June 1st in BRT
	s := New(l, schedule.NewPolicy(brt, false), time.Minute, ttl, zaptest.NewLogger(t))
	s.now = func() time.Time { return now }
	return s, now
}

func isDate(want string) any {
	return mock.MatchedBy(func(d datatypes.Date) bool { return parse.FormatDate(d) == want })
}

func isClock(want string) any {
	return mock.MatchedBy(func(c datatypes.Time) bool { return parse.FormatClock(c) == want })
}

func TestTick_UsesFacilityClock(t *testing.T) {
	l := new(mockLedger)
	s, now := newSweeper(t, l, 24*time.Hour)

	swept := []store.Reservation{{Kind: model.KindSpace, Space: &model.SpaceReservation{
		ID: "r1", UserID: "alice", SpaceType: model.SpaceStudyRoom, Status: model.StatusCompleted,
	}}}
	l.On("SweepEnded", mock.Anything, isDate("2025-06-01"), isClock("22:30")).Return(swept, nil).Once()
	l.On("PurgeIdempotencyKeys", mock.Anything, now.Add(-24*time.Hour)).Return(int64(3), nil).Once()

	s.Tick(context.Background())
	l.AssertExpectations(t)
}

func TestTick_PurgesEvenWhenSweepFails(t *testing.T) {
	l := new(mockLedger)
	s, now := newSweeper(t, l, time.Hour)

	l.On("SweepEnded", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()
	l.On("PurgeIdempotencyKeys", mock.Anything, now.Add(-time.Hour)).Return(int64(0), nil).Once()

	s.Tick(context.Background())
	l.AssertExpectations(t)
}

func TestTick_NoPurgeWithoutTTL(t *testing.T) {
	l := new(mockLedger)
	s, _ := newSweeper(t, l, 0)

	l.On("SweepEnded", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Once()

	s.Tick(context.Background())
	l.AssertExpectations(t)
	l.AssertNotCalled(t, "PurgeIdempotencyKeys", mock.Anything, mock.Anything)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	l := new(mockLedger)
	s := New(l, schedule.NewPolicy(brt, false), time.Hour, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
