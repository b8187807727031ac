package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
)

func tabletRequest(user string) EquipmentCommit {
	return EquipmentCommit{
		UserID:  user,
		Type:    model.EquipmentTablet,
		Date:    day(2025, 6, 2),
		Shift:   model.ShiftMorning,
		Purpose: "research for final paper",
	}
}

func TestLedger_ReserveEquipment_ExhaustsUnits(t *testing.T) {
	s := newSQLiteStore(t, Options{})
	seedUnits(t, s, model.EquipmentTablet, "TAB", 5)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		res, err := s.ReserveEquipment(ctx, tabletRequest("user"))
		require.NoError(t, err)
		assert.False(t, seen[res.EquipmentID], "unit assigned twice")
		seen[res.EquipmentID] = true
		assert.Equal(t, schedule.Clock(8, 0), res.PickupTime)
		assert.Equal(t, schedule.Clock(12, 0), res.ReturnTime)
	}

	_, err := s.ReserveEquipment(ctx, tabletRequest("user"))
	assert.ErrorIs(t, err, model.ErrNoUnitsAvailable)

	counts, err := s.EquipmentAvailability(ctx, day(2025, 6, 2), model.ShiftMorning)
	require.NoError(t, err)
	assert.Equal(t, model.UnitCount{Total: 5, Available: 0}, counts[model.EquipmentTablet])
	assert.Equal(t, model.UnitCount{}, counts[model.EquipmentNotebook])

	other, err := s.EquipmentAvailability(ctx, day(2025, 6, 2), model.ShiftAfternoon)
	require.NoError(t, err)
	assert.Equal(t, 5, other[model.EquipmentTablet].Available)
}

func TestLedger_ReserveEquipment_PicksLowestFreeUnit(t *testing.T) {
	s := newSQLiteStore(t, Options{})
	seedUnits(t, s, model.EquipmentTablet, "TAB", 3)
	ctx := context.Background()

	first, err := s.ReserveEquipment(ctx, tabletRequest("a"))
	require.NoError(t, err)
	assert.Equal(t, "TAB-01", first.EquipmentID)

	_, err = s.Transition(ctx, first.ID, model.StatusCancelled)
	require.NoError(t, err)

	again, err := s.ReserveEquipment(ctx, tabletRequest("b"))
	require.NoError(t, err)
	assert.Equal(t, "TAB-01", again.EquipmentID)
}

func TestLedger_ReserveEquipment_Concurrent(t *testing.T) {
	const units, callers = 3, 12
	s := newSQLiteFileStore(t, Options{CommitTimeout: 10 * time.Second}, 8)
	seedUnits(t, s, model.EquipmentTablet, "TAB", units)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		assigned  = make(map[string]int)
		failures  []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.ReserveEquipment(context.Background(), tabletRequest("racer"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes++
			assigned[res.EquipmentID]++
		}()
	}
	wg.Wait()

	assert.Equal(t, units, successes)
	for id, n := range assigned {
		assert.Equal(t, 1, n, "unit %s assigned more than once", id)
	}
	for _, err := range failures {
		assert.ErrorIs(t, err, model.ErrResourceUnavailable)
	}
	assert.Zero(t, s.locks.size())
}

func TestLedger_OutOfServiceUnitLeavesBothCounts(t *testing.T) {
	s := newSQLiteStore(t, Options{})
	seedUnits(t, s, model.EquipmentNotebook, "NB", 2)
	ctx := context.Background()

	req := tabletRequest("u")
	req.Type = model.EquipmentNotebook
	res, err := s.ReserveEquipment(ctx, req)
	require.NoError(t, err)

	require.NoError(t, s.db.Model(&model.EquipmentUnit{ID: res.EquipmentID}).
		Update("available_for_service", false).Error)

	counts, err := s.EquipmentAvailability(ctx, req.Date, req.Shift)
	require.NoError(t, err)
	assert.Equal(t, model.UnitCount{Total: 1, Available: 1}, counts[model.EquipmentNotebook])
}

func spaceRequest(user string, start, end time.Duration) SpaceCommit {
	return SpaceCommit{
		UserID:       user,
		Space:        model.SpaceStudyRoom,
		Date:         day(2025, 6, 2),
		Start:        schedule.Clock(int(start.Hours()), int(start.Minutes())%60),
		End:          schedule.Clock(int(end.Hours()), int(end.Minutes())%60),
		GroupSize:    3,
		GroupMembers: []string{"ana", "bruno"},
		Purpose:      "study group",
	}
}

func TestLedger_ReserveSpace(t *testing.T) {
	s := newSQLiteStore(t, Options{})
	ctx := context.Background()

	_, err := s.ReserveSpace(ctx, spaceRequest("a", 14*time.Hour, 16*time.Hour))
	require.NoError(t, err)

	testCases := []struct {
		name        string
		start, end  time.Duration
		space       model.SpaceType
		expectedErr error
	}{
		{"Overlapping start", 15 * time.Hour, 17 * time.Hour, model.SpaceStudyRoom, model.ErrSpaceConflict},
		{"Contained range", 14*time.Hour + 30*time.Minute, 15 * time.Hour, model.SpaceStudyRoom, model.ErrSpaceConflict},
		{"Back to back after", 16 * time.Hour, 17 * time.Hour, model.SpaceStudyRoom, nil},
		{"Back to back before", 13 * time.Hour, 14 * time.Hour, model.SpaceStudyRoom, nil},
		{"Other space is independent", 14 * time.Hour, 16 * time.Hour, model.SpaceGeneralSpace, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := spaceRequest("b", tc.start, tc.end)
			req.Space = tc.space
			res, err := s.ReserveSpace(ctx, req)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.False(t, errors.Is(err, model.ErrConflictRace))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"ana", "bruno"}, []string(res.GroupMembers))
		})
	}

	room := model.SpaceStudyRoom
	active, err := s.ActiveSpaceReservations(ctx, day(2025, 6, 2), &room)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, schedule.Clock(13, 0), active[0].StartTime)
}

func TestLedger_ReserveSpace_ConcurrentOverlapping(t *testing.T) {
	const callers = 10
	s := newSQLiteFileStore(t, Options{CommitTimeout: 10 * time.Second}, 8)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every range covers 09:27-10:00.
			start := 9*time.Hour + time.Duration(i*3)*time.Minute
			_, err := s.ReserveSpace(context.Background(), spaceRequest(fmt.Sprintf("group-%d", i), start, start+time.Hour))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.ErrorIs(t, err, model.ErrSpaceConflict)
	}
	room := model.SpaceStudyRoom
	active, err := s.ActiveSpaceReservations(context.Background(), day(2025, 6, 2), &room)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Zero(t, s.locks.size())
}

func TestGormStore_CommitSerializesPerKey(t *testing.T) {
	const callers = 6
	s := newSQLiteFileStore(t, Options{CommitTimeout: 5 * time.Second}, callers)
	ctx := context.Background()

	t.Run("Same key never overlaps", func(t *testing.T) {
		var inFlight, peak int32
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.commit(ctx, "equipment:tablet:2025-06-02:morning", func(tx *gorm.DB) error {
					n := atomic.AddInt32(&inFlight, 1)
					defer atomic.AddInt32(&inFlight, -1)
					for {
						p := atomic.LoadInt32(&peak)
						if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
							break
						}
					}
					time.Sleep(10 * time.Millisecond)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), peak)
	})

	t.Run("Different keys run side by side", func(t *testing.T) {
		var entered sync.WaitGroup
		entered.Add(callers)
		all := make(chan struct{})
		go func() {
			entered.Wait()
			close(all)
		}()

		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.commit(ctx, fmt.Sprintf("space:study_room:2025-06-%02d", i+1), func(tx *gorm.DB) error {
					entered.Done()
					select {
					case <-all:
						return nil
					case <-time.After(2 * time.Second):
						return errors.New("commits on distinct keys did not overlap")
					}
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
	})
}

func TestLedger_PurposeIsStoredTrimmed(t *testing.T) {
	s := newSQLiteStore(t, Options{})
	seedUnits(t, s, model.EquipmentTablet, "TAB", 1)
	ctx := context.Background()

	req := tabletRequest("u")
	req.Purpose = "  " + strings.Repeat("p", 255) + "\n\t "
	res, err := s.ReserveEquipment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("p", 255), res.Purpose)

	space := spaceRequest("u", 9*time.Hour, 10*time.Hour)
	space.Purpose = " study group "
	booked, err := s.ReserveSpace(ctx, space)
	require.NoError(t, err)

	var stored model.SpaceReservation
	require.NoError(t, s.db.Take(&stored, "id = ?", booked.ID).Error)
	assert.Equal(t, "study group", stored.Purpose)
}

func TestLedger_Transition(t *testing.T) {
	s := newSQLiteStore(t, Options{InitialStatus: model.StatusPending})
	seedUnits(t, s, model.EquipmentTablet, "TAB", 1)
	ctx := context.Background()

	res, err := s.ReserveEquipment(ctx, tabletRequest("u"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Status)

	_, err = s.Transition(ctx, res.ID, model.StatusCompleted)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	confirmed, err := s.Transition(ctx, res.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status())
	assert.Equal(t, model.EquipmentTablet, model.EquipmentType(confirmed.Slot().Resource))

	cancelled, err := s.Transition(ctx, res.ID, model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status())

	_, err = s.Transition(ctx, res.ID, model.StatusCancelled)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = s.Transition(ctx, "missing", model.StatusCancelled)
	assert.ErrorIs(t, err, model.ErrNotFound)

	stored, err := s.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, stored.Status())
}

func TestLedger_IdempotentReplay(t *testing.T) {
	s := newSQLiteStore(t, Options{})
	seedUnits(t, s, model.EquipmentTablet, "TAB", 2)
	ctx := context.Background()

	req := tabletRequest("u")
	req.Token = "token-1"
	first, err := s.ReserveEquipment(ctx, req)
	require.NoError(t, err)

	second, err := s.ReserveEquipment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	found, err := s.LookupIdempotent(ctx, req.Token, req.UserID, model.KindEquipment, req.Hash())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID())

	counts, err := s.EquipmentAvailability(ctx, req.Date, req.Shift)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.EquipmentTablet].Available)

	mismatch := req
	mismatch.Purpose = "something else entirely"
	_, err = s.ReserveEquipment(ctx, mismatch)
	assert.ErrorIs(t, err, model.ErrValidation)

	none, err := s.LookupIdempotent(ctx, "unused", "u", model.KindEquipment, req.Hash())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLedger_SweepEnded(t *testing.T) {
	s := newSQLiteStore(t, Options{})
	seedUnits(t, s, model.EquipmentTablet, "TAB", 2)
	ctx := context.Background()

	morning, err := s.ReserveEquipment(ctx, tabletRequest("u"))
	require.NoError(t, err)

	nightReq := tabletRequest("u")
	nightReq.Shift = model.ShiftNight
	night, err := s.ReserveEquipment(ctx, nightReq)
	require.NoError(t, err)

	pending := spaceRequest("p", 9*time.Hour, 11*time.Hour)
	spaceRes, err := s.ReserveSpace(ctx, pending)
	require.NoError(t, err)
	require.NoError(t, s.db.Model(&model.SpaceReservation{ID: spaceRes.ID}).
		Update("status", model.StatusPending).Error)

	swept, err := s.SweepEnded(ctx, day(2025, 6, 2), schedule.Clock(12, 30))
	require.NoError(t, err)
	require.Len(t, swept, 2)

	got := map[string]model.ReservationStatus{}
	for _, r := range swept {
		got[r.ID()] = r.Status()
	}
	assert.Equal(t, model.StatusCompleted, got[morning.ID])
	assert.Equal(t, model.StatusCancelled, got[spaceRes.ID])

	stillActive, err := s.GetReservation(ctx, night.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stillActive.Status())

	swept, err = s.SweepEnded(ctx, day(2025, 6, 3), schedule.Clock(0, 0))
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, night.ID, swept[0].ID())
}

func TestLedger_ListByUserAndStats(t *testing.T) {
	s := newSQLiteStore(t, Options{})
	seedUnits(t, s, model.EquipmentTablet, "TAB", 2)
	ctx := context.Background()

	eq, err := s.ReserveEquipment(ctx, tabletRequest("me"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	sp, err := s.ReserveSpace(ctx, spaceRequest("me", 14*time.Hour, 16*time.Hour))
	require.NoError(t, err)
	_, err = s.ReserveEquipment(ctx, tabletRequest("someone-else"))
	require.NoError(t, err)

	mine, err := s.ListByUser(ctx, "me")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, sp.ID, mine[0].ID())
	assert.Equal(t, eq.ID, mine[1].ID())
	require.NotNil(t, mine[1].Equipment.Equipment)

	st, err := s.Stats(ctx, day(2025, 6, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.TotalReservations)
	assert.Equal(t, int64(3), st.ActiveReservations)
	assert.Equal(t, int64(2), st.EquipmentInUse)
	assert.InDelta(t, 10.0, st.HoursReserved, 0.001)
}
