package store

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/flplemos/senac-agenda-central/internal/model"
)

// Catalog reads and maintains the bookable inventory.
type Catalog interface {
	ListEquipmentUnits(ctx context.Context, t *model.EquipmentType) ([]model.EquipmentUnit, error)
	IsSpaceDefined(space model.SpaceType) bool
	UpsertInventory(ctx context.Context, items []InventoryItem) (int, error)
}

// Ledger owns every reservation record.
type Ledger interface {
	EquipmentAvailability(ctx context.Context, date datatypes.Date, shift model.Shift) (map[model.EquipmentType]model.UnitCount, error)
	ActiveSpaceReservations(ctx context.Context, date datatypes.Date, space *model.SpaceType) ([]model.SpaceReservation, error)

	ReserveEquipment(ctx context.Context, req EquipmentCommit) (*model.EquipmentReservation, error)
	ReserveSpace(ctx context.Context, req SpaceCommit) (*model.SpaceReservation, error)
	LookupIdempotent(ctx context.Context, token, userID string, kind model.ResourceKind, hash string) (*Reservation, error)
	Transition(ctx context.Context, id string, target model.ReservationStatus) (*Reservation, error)

	GetReservation(ctx context.Context, id string) (*Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]Reservation, error)
	Stats(ctx context.Context, date datatypes.Date) (Stats, error)

	SweepEnded(ctx context.Context, today datatypes.Date, now datatypes.Time) ([]Reservation, error)
	PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)
}

// Store defines the interface for all database operations.
type Store interface {
	Catalog
	Ledger
	DB() *gorm.DB
}

// Options tunes the ledger.
type Options struct {
	// InitialStatus is given to new reservations. Defaults to confirmed.
	InitialStatus model.ReservationStatus
	// CommitTimeout bounds lock wait plus transaction. Defaults to 5s.
	CommitTimeout time.Duration
	Logger        *zap.Logger
}

// GormStore implements Store using GORM.
type GormStore struct {
	db            *gorm.DB
	locks         *keyedMutex
	initialStatus model.ReservationStatus
	commitTimeout time.Duration
	log           *zap.Logger
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts Options) *GormStore {
	if opts.InitialStatus == "" {
		opts.InitialStatus = model.StatusConfirmed
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &GormStore{
		db:            db,
		locks:         newKeyedMutex(),
		initialStatus: opts.InitialStatus,
		commitTimeout: opts.CommitTimeout,
		log:           opts.Logger,
	}
}

// DB exposes the underlying connection for auxiliary tables.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}
