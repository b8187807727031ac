package booking

import (
	"strings"

	"gorm.io/datatypes"

	"github.com/flplemos/senac-agenda-central/internal/model"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

// EquipmentRequest asks for one unit of a type for one shift.
type EquipmentRequest struct {
	Type    model.EquipmentType
	Date    datatypes.Date
	Shift   model.Shift
	Purpose string
	// Token is the client's idempotency key. Optional.
	Token string
}

func (r EquipmentRequest) commit(userID string) store.EquipmentCommit {
	return store.EquipmentCommit{
		UserID:  userID,
		Type:    r.Type,
		Date:    r.Date,
		Shift:   r.Shift,
		Purpose: strings.TrimSpace(r.Purpose),
		Token:   r.Token,
	}
}

// SpaceRequest asks for a space over a wall-clock range.
type SpaceRequest struct {
	Space        model.SpaceType
	Date         datatypes.Date
	Start        datatypes.Time
	End          datatypes.Time
	GroupSize    int
	GroupMembers []string
	Purpose      string
	Token        string
}

func (r SpaceRequest) commit(userID string) store.SpaceCommit {
	return store.SpaceCommit{
		UserID:       userID,
		Space:        r.Space,
		Date:         r.Date,
		Start:        r.Start,
		End:          r.End,
		GroupSize:    r.GroupSize,
		GroupMembers: r.GroupMembers,
		Purpose:      strings.TrimSpace(r.Purpose),
		Token:        r.Token,
	}
}
