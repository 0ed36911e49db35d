package dispensingsystem

import "github.com/google/uuid"

// System is one dispensing-cabinet server installation of a facility.
type System struct {
	Key                      uuid.UUID `json:"key"`
	FacilityKey              uuid.UUID `json:"facility_key" validate:"required"`
	Name                     string    `json:"name" validate:"required,max=60"`
	ServerAddress            string    `json:"server_address" validate:"required,max=255,hostname_port|hostname_rfc1123|ip"`
	SyncEnabled              bool      `json:"sync_enabled"`
	OutdateTrackingEnabled   bool      `json:"outdate_tracking_enabled"`
	AutoResolveDiscrepancies bool      `json:"auto_resolve_discrepancies"`
	DefaultPrinter           *string   `json:"default_printer,omitempty" validate:"omitempty,max=100"`
	Contacts                 []Contact `json:"contacts,omitempty" validate:"dive"`
}

type Contact struct {
	Key       uuid.UUID `json:"key"`
	SystemKey uuid.UUID `json:"system_key"`
	FullName  string    `json:"full_name" validate:"required,max=100"`
	Phone     *string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	Email     *string   `json:"email,omitempty" validate:"omitempty,email,max=120"`
	RoleText  *string   `json:"role_text,omitempty" validate:"omitempty,max=60"`
}
