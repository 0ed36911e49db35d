package license

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/codes"
)

// Schedule is a controlled-substance schedule a license covers.
type Schedule string

const (
	ScheduleII  Schedule = "II"
	ScheduleIII Schedule = "III"
	ScheduleIV  Schedule = "IV"
	ScheduleV   Schedule = "V"
)

var schedules = codes.New("controlled substance schedule", ScheduleII, ScheduleIII, ScheduleIV, ScheduleV)

func (s Schedule) Valid() bool { return schedules.Valid(s) }

type License struct {
	Key            uuid.UUID  `json:"key"`
	FacilityKey    uuid.UUID  `json:"facility_key" validate:"required"`
	LicenseNumber  string     `json:"license_number" validate:"required,max=40"`
	Name           string     `json:"name" validate:"required,max=100"`
	Schedules      []Schedule `json:"schedules"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	Active         bool       `json:"active"`
}

// Covers reports whether the license includes schedule s.
func (l *License) Covers(s Schedule) bool {
	for _, v := range l.Schedules {
		if v == s {
			return true
		}
	}
	return false
}
