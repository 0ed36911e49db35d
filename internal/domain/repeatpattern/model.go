package repeatpattern

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/codes"
)

// Type says how a pattern schedules administrations.
type Type string

const (
	TypeStandard   Type = "STANDARD"
	TypePRN        Type = "PRN"
	TypeContinuous Type = "CONTINUOUS"
	TypeOnce       Type = "ONCE"
)

var types = codes.New("repeat pattern type", TypeStandard, TypePRN, TypeContinuous, TypeOnce)

func (t Type) Valid() bool { return types.Valid(t) }
func (t *Type) Scan(src any) error { return types.Scan(t, src) }
func ParseType(s string) (Type, error) { return types.Parse(s) }

// Pattern is the current (or a past) version of a repeat pattern.
// ScheduledTimes are wall-clock times in the facility's time zone.
type Pattern struct {
	Key            uuid.UUID  `json:"key"`
	FacilityKey    uuid.UUID  `json:"facility_key" validate:"required"`
	Code           string     `json:"code" validate:"required,max=20"`
	Description    string     `json:"description" validate:"required,max=100"`
	Type           Type       `json:"type" validate:"required"`
	ScheduledTimes []string   `json:"scheduled_times" validate:"max=24,dive,clock"`
	Active         bool       `json:"active"`
	Version        int        `json:"version"`
	StartUTC       time.Time  `json:"start_utc"`
	EndUTC         *time.Time `json:"end_utc,omitempty"`
}
