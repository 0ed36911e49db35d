package location

import (
	"time"

	"github.com/google/uuid"
)

// Unit is a nursing unit of a facility. Units are versioned: each update
// closes the current row and writes a new one.
type Unit struct {
	Key         uuid.UUID   `json:"key"`
	FacilityKey uuid.UUID   `json:"facility_key" validate:"required"`
	Name        string      `json:"name" validate:"required,max=60"`
	Description *string     `json:"description,omitempty" validate:"omitempty,max=200"`
	Active      bool        `json:"active"`
	Version     int         `json:"version"`
	StartUTC    time.Time   `json:"start_utc"`
	EndUTC      *time.Time  `json:"end_utc,omitempty"`
	Rooms       []Room      `json:"rooms,omitempty" validate:"dive"`
	AreaKeys    []uuid.UUID `json:"area_keys,omitempty"`
}

type Room struct {
	Key      uuid.UUID `json:"key"`
	UnitKey  uuid.UUID `json:"unit_key"`
	Name     string    `json:"name" validate:"required,max=60"`
	BedCount int       `json:"bed_count" validate:"gte=0,lte=99"`
}

// Area groups units of one facility for cabinet restocking.
type Area struct {
	Key         uuid.UUID `json:"key"`
	FacilityKey uuid.UUID `json:"facility_key" validate:"required"`
	Name        string    `json:"name" validate:"required,max=60"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=200"`
}

type UnitFilter struct {
	FacilityKey uuid.UUID
	Active      *bool
}
