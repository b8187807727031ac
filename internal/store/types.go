package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/parse"
)

// InventoryItem represents a single equipment record from the upstream inventory API.
type InventoryItem struct {
	ID                    string     `json:"id"`
	Identifier            string     `json:"identifier"`
	Type                  string     `json:"type"`
	IsAvailable           *bool      `json:"is_available"`
	LastMaintenance       *string    `json:"last_maintenance"`
	LastMaintenanceParsed *time.Time `json:"-"`
}

// EquipmentCommit is a validated equipment request ready for the ledger.
type EquipmentCommit struct {
	UserID  string
	Type    model.EquipmentType
	Date    datatypes.Date
	Shift   model.Shift
	Purpose string
	Token   string
}

// Slot returns the conflict key the commit serializes on.
func (c EquipmentCommit) Slot() model.SlotKey {
	return model.SlotKey{Kind: model.KindEquipment, Resource: string(c.Type), Date: c.Date, Shift: c.Shift}
}

// Hash fingerprints the request so a reused token can be told apart.
func (c EquipmentCommit) Hash() string {
	return fingerprint(c.UserID, string(c.Type), parse.FormatDate(c.Date), string(c.Shift), c.Purpose)
}

// SpaceCommit is a validated space request ready for the ledger.
type SpaceCommit struct {
	UserID       string
	Space        model.SpaceType
	Date         datatypes.Date
	Start        datatypes.Time
	End          datatypes.Time
	GroupSize    int
	GroupMembers []string
	Purpose      string
	Token        string
}

// Slot returns the conflict key the commit serializes on.
func (c SpaceCommit) Slot() model.SlotKey {
	return model.SlotKey{Kind: model.KindSpace, Resource: string(c.Space), Date: c.Date}
}

// Hash fingerprints the request so a reused token can be told apart.
func (c SpaceCommit) Hash() string {
	return fingerprint(c.UserID, string(c.Space), parse.FormatDate(c.Date),
		parse.FormatClock(c.Start), parse.FormatClock(c.End), strings.Join(c.GroupMembers, ","), c.Purpose)
}

func fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Reservation is either an equipment or a space reservation.
type Reservation struct {
	Kind      model.ResourceKind
	Equipment *model.EquipmentReservation
	Space     *model.SpaceReservation
}

// ID returns the reservation identifier.
func (r *Reservation) ID() string {
	if r.Kind == model.KindEquipment {
		return r.Equipment.ID
	}
	return r.Space.ID
}

// UserID returns the owner.
func (r *Reservation) UserID() string {
	if r.Kind == model.KindEquipment {
		return r.Equipment.UserID
	}
	return r.Space.UserID
}

// Status returns the current status.
func (r *Reservation) Status() model.ReservationStatus {
	if r.Kind == model.KindEquipment {
		return r.Equipment.Status
	}
	return r.Space.Status
}

// CreatedAt returns the creation time.
func (r *Reservation) CreatedAt() time.Time {
	if r.Kind == model.KindEquipment {
		return r.Equipment.CreatedAt
	}
	return r.Space.CreatedAt
}

// Slot returns the resource slot the reservation holds.
func (r *Reservation) Slot() model.SlotKey {
	if r.Kind == model.KindEquipment {
		key := model.SlotKey{Kind: model.KindEquipment, Date: r.Equipment.ReservationDate, Shift: r.Equipment.Shift}
		if r.Equipment.Equipment != nil {
			key.Resource = string(r.Equipment.Equipment.Type)
		}
		return key
	}
	return model.SlotKey{Kind: model.KindSpace, Resource: string(r.Space.SpaceType), Date: r.Space.ReservationDate}
}

func (r *Reservation) setStatus(s model.ReservationStatus) {
	if r.Kind == model.KindEquipment {
		r.Equipment.Status = s
		return
	}
	r.Space.Status = s
}

// stub returns an empty model carrying only the primary key.
func (r *Reservation) stub() any {
	if r.Kind == model.KindEquipment {
		return &model.EquipmentReservation{ID: r.Equipment.ID}
	}
	return &model.SpaceReservation{ID: r.Space.ID}
}

// Stats summarizes reservations for the dashboard.
type Stats struct {
	TotalReservations  int64   `json:"totalReservations"`
	ActiveReservations int64   `json:"activeReservations"`
	HoursReserved      float64 `json:"hoursReserved"`
	EquipmentInUse     int64   `json:"equipmentInUse"`
}
