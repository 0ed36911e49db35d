package pharmacyorder

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/codes"
)

type Status string

const (
	StatusPending      Status = "PENDING"
	StatusVerified     Status = "VERIFIED"
	StatusActive       Status = "ACTIVE"
	StatusOnHold       Status = "ON_HOLD"
	StatusDiscontinued Status = "DISCONTINUED"
	StatusCompleted    Status = "COMPLETED"
)

var statuses = codes.New("order status",
	StatusPending, StatusVerified, StatusActive, StatusOnHold, StatusDiscontinued, StatusCompleted)

func (s Status) Valid() bool { return statuses.Valid(s) }
func (s *Status) Scan(src any) error { return statuses.Scan(s, src) }
func ParseStatus(v string) (Status, error) { return statuses.Parse(v) }

// Terminal reports whether the order can no longer change.
func (s Status) Terminal() bool {
	return s == StatusDiscontinued || s == StatusCompleted
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusVerified, StatusOnHold, StatusDiscontinued},
	StatusVerified: {StatusActive, StatusOnHold, StatusDiscontinued},
	StatusActive:   {StatusOnHold, StatusDiscontinued, StatusCompleted},
	StatusOnHold:   {StatusVerified, StatusActive, StatusDiscontinued},
}

// CanTransition reports whether an order in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type InstructionType string

const (
	InstructionAdministration InstructionType = "ADMINISTRATION"
	InstructionPharmacy       InstructionType = "PHARMACY"
	InstructionNurse          InstructionType = "NURSE"
)

var instructionTypes = codes.New("instruction type",
	InstructionAdministration, InstructionPharmacy, InstructionNurse)

func (t InstructionType) Valid() bool { return instructionTypes.Valid(t) }
func (t *InstructionType) Scan(src any) error { return instructionTypes.Scan(t, src) }

// Order is a pharmacy order placed for an encounter.
type Order struct {
	Key          uuid.UUID     `json:"key"`
	FacilityKey  uuid.UUID     `json:"facility_key"`
	EncounterKey uuid.UUID     `json:"encounter_key" validate:"required"`
	OrderID      string        `json:"order_id" validate:"required,max=40"`
	Status       Status        `json:"status"`
	Description  string        `json:"description" validate:"required,max=250"`
	PRN          bool          `json:"prn"`
	StartUTC     *time.Time    `json:"start_utc,omitempty"`
	StopUTC      *time.Time    `json:"stop_utc,omitempty"`
	Routes       []Route       `json:"routes,omitempty" validate:"dive"`
	Components   []Component   `json:"components,omitempty" validate:"dive"`
	Timings      []Timing      `json:"timings,omitempty" validate:"dive"`
	Instructions []Instruction `json:"instructions,omitempty" validate:"dive"`
}

type Route struct {
	Code        string  `json:"code" validate:"required,max=20"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=100"`
}

type Component struct {
	Key            uuid.UUID  `json:"key"`
	ItemID         string     `json:"item_id" validate:"required,max=40"`
	Description    string     `json:"description" validate:"required,max=200"`
	Strength       *float64   `json:"strength,omitempty" validate:"omitempty,gt=0"`
	StrengthUOMKey *uuid.UUID `json:"strength_uom_key,omitempty"`
	Volume         *float64   `json:"volume,omitempty" validate:"omitempty,gt=0"`
	VolumeUOMKey   *uuid.UUID `json:"volume_uom_key,omitempty"`
}

type Timing struct {
	Key                 uuid.UUID  `json:"key"`
	RepeatPatternKey    *uuid.UUID `json:"repeat_pattern_key,omitempty"`
	FrequencyText       *string    `json:"frequency_text,omitempty" validate:"omitempty,max=100"`
	StartUTC            *time.Time `json:"start_utc,omitempty"`
	EndUTC              *time.Time `json:"end_utc,omitempty"`
	AdministrationTimes []string   `json:"administration_times,omitempty"`
}

type Instruction struct {
	Key  uuid.UUID       `json:"key"`
	Type InstructionType `json:"type"`
	Text string          `json:"text" validate:"required,max=1000"`
}
