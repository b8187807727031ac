package booking

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/schedule"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Dispatch(key model.SlotKey) {
	m.Called(key)
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	notifier *mockNotifier
}

// newFixture builds a service on a private in-memory database with the clock
// fixed at 2025-06-01 14:00 facility time.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), 1)
}

// newConcurrentFixture uses a WAL database file with several connections so
// submissions really reach the store in parallel.
func newConcurrentFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "agenda.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	return newFixtureOn(t, dsn, 8)
}

func newFixtureOn(t *testing.T, dsn string, conns int) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.Tables()...))

	notifier := &mockNotifier{}
	st := store.NewGormStore(db, store.Options{CommitTimeout: 10 * time.Second})
	svc := NewService(st, schedule.NewPolicy(brt, false), Options{
		HorizonDays: 90,
		Notifier:    notifier,
		Now:         fixedNow(time.Date(2025, 6, 1, 14, 0, 0, 0, brt)),
	})
	return &fixture{svc: svc, db: db, notifier: notifier}
}

func (f *fixture) seed(t *testing.T, typ model.EquipmentType, prefix string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%s-%02d", prefix, i)
		require.NoError(t, f.db.Create(&model.EquipmentUnit{ID: id, Identifier: id, Type: typ, AvailableForService: true}).Error)
	}
}

var (
	alice = Identity{UserID: "alice", Role: RoleStudent}
	bob   = Identity{UserID: "bob", Role: RoleTeacher}
	staff = Identity{UserID: "librarian", Role: RoleStaff}
)

func TestService_SameDayShifts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.EquipmentTablet, "TAB", 1)
	ctx := context.Background()

	req := EquipmentRequest{Type: model.EquipmentTablet, Date: date(2025, 6, 1), Purpose: "presentation rehearsal"}

	req.Shift = model.ShiftMorning
	_, err := f.svc.SubmitEquipmentReservation(ctx, alice, req)
	assert.ErrorIs(t, err, model.ErrValidation)

	req.Shift = model.ShiftAfternoon
	_, err = f.svc.SubmitEquipmentReservation(ctx, alice, req)
	assert.ErrorIs(t, err, model.ErrValidation)

	req.Shift = model.ShiftNight
	res, err := f.svc.SubmitEquipmentReservation(ctx, alice, req)
	require.NoError(t, err)
	assert.Equal(t, "TAB-01", res.EquipmentID)
	assert.Equal(t, schedule.Clock(18, 30), res.PickupTime)
}

func TestService_SixthTabletIsRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.EquipmentTablet, "TAB", 5)
	ctx := context.Background()

	req := EquipmentRequest{Type: model.EquipmentTablet, Date: date(2025, 6, 2), Shift: model.ShiftMorning, Purpose: "robotics club session"}
	for i := 0; i < 5; i++ {
		_, err := f.svc.SubmitEquipmentReservation(ctx, alice, req)
		require.NoError(t, err)
	}

	counts, err := f.svc.EquipmentAvailability(ctx, req.Date, req.Shift)
	require.NoError(t, err)
	assert.Equal(t, model.UnitCount{Total: 5, Available: 0}, counts[model.EquipmentTablet])

	_, err = f.svc.SubmitEquipmentReservation(ctx, bob, req)
	assert.ErrorIs(t, err, model.ErrNoUnitsAvailable)
	assert.False(t, errors.Is(err, model.ErrConflictRace))
}

func TestService_ConcurrentRequests(t *testing.T) {
	const units, callers = 2, 8
	f := newConcurrentFixture(t)
	f.seed(t, model.EquipmentVRHeadset, "VR", units)
	req := EquipmentRequest{Type: model.EquipmentVRHeadset, Date: date(2025, 6, 3), Shift: model.ShiftAfternoon, Purpose: "virtual museum visit"}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.SubmitEquipmentReservation(context.Background(), Identity{UserID: fmt.Sprintf("u%d", i)}, req)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.ErrorIs(t, err, model.ErrResourceUnavailable)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, units, successes)
	counts, err := f.svc.EquipmentAvailability(context.Background(), req.Date, req.Shift)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[model.EquipmentVRHeadset].Available)
}

func studyRoom(start, end int) SpaceRequest {
	return SpaceRequest{
		Space:        model.SpaceStudyRoom,
		Date:         date(2025, 6, 2),
		Start:        schedule.Clock(start/100, start%100),
		End:          schedule.Clock(end/100, end%100),
		GroupSize:    2,
		GroupMembers: []string{"ana", "bia"},
		Purpose:      "calculus study group",
	}
}

func TestService_StudyRoomOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitSpaceReservation(ctx, alice, studyRoom(900, 1000))
	require.NoError(t, err)

	_, err = f.svc.SubmitSpaceReservation(ctx, bob, studyRoom(930, 1030))
	assert.ErrorIs(t, err, model.ErrSpaceConflict)
	assert.False(t, errors.Is(err, model.ErrConflictRace))

	_, err = f.svc.SubmitSpaceReservation(ctx, bob, studyRoom(1000, 1100))
	assert.NoError(t, err)

	free, err := f.svc.SpaceRangeAvailable(ctx, model.SpaceStudyRoom, date(2025, 6, 2), schedule.Clock(11, 0), schedule.Clock(12, 0))
	require.NoError(t, err)
	assert.True(t, free)

	daily, err := f.svc.SpaceAvailability(ctx, date(2025, 6, 2))
	require.NoError(t, err)
	assert.False(t, daily[model.SpaceStudyRoom])
	assert.True(t, daily[model.SpaceGeneralSpace])
}

func TestService_ConcurrentOverlappingStudyRooms(t *testing.T) {
	const callers = 8
	f := newConcurrentFixture(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := 900 + i*5
			_, err := f.svc.SubmitSpaceReservation(context.Background(), Identity{UserID: fmt.Sprintf("u%d", i)}, studyRoom(start, start+100))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.ErrorIs(t, err, model.ErrSpaceConflict)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	var booked int64
	require.NoError(t, f.db.Model(&model.SpaceReservation{}).Count(&booked).Error)
	assert.Equal(t, int64(1), booked)
}

func TestService_PurposeIsTrimmedBeforeStoring(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.EquipmentNotebook, "NB", 1)
	ctx := context.Background()

	long := strings.Repeat("á", maxPurpose)
	req := EquipmentRequest{Type: model.EquipmentNotebook, Date: date(2025, 6, 2), Shift: model.ShiftNight, Purpose: "   " + long + "  \n"}
	res, err := f.svc.SubmitEquipmentReservation(ctx, alice, req)
	require.NoError(t, err)
	assert.Equal(t, long, res.Purpose)

	room := studyRoom(900, 1000)
	room.Purpose = "\t" + long + " "
	booked, err := f.svc.SubmitSpaceReservation(ctx, bob, room)
	require.NoError(t, err)
	assert.Equal(t, long, booked.Purpose)

	req.Purpose = " " + long + "x"
	_, err = f.svc.SubmitEquipmentReservation(ctx, bob, req)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestService_BlackoutAppliesToStudyRoomOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitSpaceReservation(ctx, alice, studyRoom(1130, 1330))
	assert.ErrorIs(t, err, model.ErrValidation)

	general := studyRoom(1130, 1330)
	general.Space = model.SpaceGeneralSpace
	res, err := f.svc.SubmitSpaceReservation(ctx, alice, general)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, res.Duration())
}

func TestService_CancelReservation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.EquipmentNotebook, "NB", 1)
	ctx := context.Background()

	req := EquipmentRequest{Type: model.EquipmentNotebook, Date: date(2025, 6, 2), Shift: model.ShiftNight, Purpose: "thesis writing session"}
	res, err := f.svc.SubmitEquipmentReservation(ctx, alice, req)
	require.NoError(t, err)

	_, err = f.svc.CancelReservation(ctx, bob, res.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.CancelReservation(ctx, Identity{}, res.ID)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	_, err = f.svc.CancelReservation(ctx, alice, "no-such-id")
	assert.ErrorIs(t, err, model.ErrNotFound)

	expectedSlot := mock.MatchedBy(func(k model.SlotKey) bool {
		return k.String() == "equipment:notebook:2025-06-02:night"
	})
	f.notifier.On("Dispatch", expectedSlot).Return().Once()

	cancelled, err := f.svc.CancelReservation(ctx, alice, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status())
	f.notifier.AssertExpectations(t)

	_, err = f.svc.CancelReservation(ctx, alice, res.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// The unit is free again straight away.
	again, err := f.svc.SubmitEquipmentReservation(ctx, bob, req)
	require.NoError(t, err)
	assert.Equal(t, "NB-01", again.EquipmentID)

	f.notifier.On("Dispatch", expectedSlot).Return().Once()
	_, err = f.svc.CancelReservation(ctx, staff, again.ID)
	assert.NoError(t, err)
	f.notifier.AssertExpectations(t)
}

func TestService_StaffTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SubmitSpaceReservation(ctx, alice, studyRoom(1400, 1600))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, res.Status)

	_, err = f.svc.CompleteReservation(ctx, alice, res.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.ConfirmReservation(ctx, staff, res.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	done, err := f.svc.CompleteReservation(ctx, staff, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status())

	got, err := f.svc.GetReservation(ctx, alice, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status())

	_, err = f.svc.GetReservation(ctx, bob, res.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestService_IdempotentSubmit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.EquipmentTablet, "TAB", 1)
	ctx := context.Background()

	req := EquipmentRequest{Type: model.EquipmentTablet, Date: date(2025, 6, 2), Shift: model.ShiftMorning, Purpose: "reading assignment", Token: "retry-1"}
	first, err := f.svc.SubmitEquipmentReservation(ctx, alice, req)
	require.NoError(t, err)

	// The only unit is now taken; the retry must still replay.
	second, err := f.svc.SubmitEquipmentReservation(ctx, alice, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	mine, err := f.svc.ListMine(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.svc.SubmitEquipmentReservation(ctx, bob, req)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestLostRace(t *testing.T) {
	assert.ErrorIs(t, lostRace(model.ErrNoUnitsAvailable), model.ErrConflictRace)
	assert.ErrorIs(t, lostRace(model.ErrSpaceConflict), model.ErrSpaceConflict)

	already := model.Race(model.ErrSpaceConflict)
	assert.Equal(t, already, lostRace(already))

	assert.False(t, errors.Is(lostRace(model.ErrStore), model.ErrConflictRace))
}
