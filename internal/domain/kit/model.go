package kit

import "github.com/google/uuid"

// Kit is a named bundle of items issued together from a facility's pharmacy.
type Kit struct {
	Key         uuid.UUID `json:"key"`
	FacilityKey uuid.UUID `json:"facility_key" validate:"required"`
	Name        string    `json:"name" validate:"required,max=60"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=200"`
	Active      bool      `json:"active"`
	Items       []Item    `json:"items,omitempty" validate:"dive"`
}

type Item struct {
	Key         uuid.UUID `json:"key"`
	KitKey      uuid.UUID `json:"kit_key"`
	ItemID      string    `json:"item_id" validate:"required,max=40"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=200"`
	Quantity    int       `json:"quantity" validate:"gt=0"`
}
