package model

// SpaceType identifies one of the bookable rooms. Each value is a singleton.
type SpaceType string

const (
	SpaceStudyRoom    SpaceType = "study_room"
	SpaceGeneralSpace SpaceType = "general_space"
)

// SpaceTypes lists every defined space.
var SpaceTypes = []SpaceType{SpaceStudyRoom, SpaceGeneralSpace}

// Valid reports whether s names a defined space.
func (s SpaceType) Valid() bool {
	return s == SpaceStudyRoom || s == SpaceGeneralSpace
}

// GroupLimits returns the inclusive bounds on group size for the space.
func (s SpaceType) GroupLimits() (min, max int) {
	switch s {
	case SpaceStudyRoom:
		return 2, 9
	case SpaceGeneralSpace:
		return 1, 18
	}
	return 0, 0
}
