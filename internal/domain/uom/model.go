package uom

import (
	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/codes"
)

// Role is where a unit of measure may be used on an order or item.
type Role string

const (
	RoleStrength       Role = "STRENGTH"
	RoleVolume         Role = "VOLUME"
	RoleDose           Role = "DOSE"
	RoleTotalVolume    Role = "TOTAL_VOLUME"
	RoleAdministration Role = "ADMINISTRATION"
)

var roles = codes.New("unit of measure role", RoleStrength, RoleVolume, RoleDose, RoleTotalVolume, RoleAdministration)

func (r Role) Valid() bool { return roles.Valid(r) }
func (r *Role) Scan(src any) error { return roles.Scan(r, src) }
func ParseRole(s string) (Role, error) { return roles.Parse(s) }

type UnitOfMeasure struct {
	Key         uuid.UUID `json:"key"`
	Code        string    `json:"code" validate:"required,max=20"`
	Description string    `json:"description" validate:"required,max=100"`
	Active      bool      `json:"active"`
	Roles       []Role    `json:"roles,omitempty"`
}

type ListFilter struct {
	Role   *Role
	Active *bool
}
