package invoicetype

import "github.com/google/uuid"

type InvoiceType struct {
	Key         uuid.UUID `json:"key"`
	Code        string    `json:"code" validate:"required,max=20"`
	Description string    `json:"description" validate:"required,max=100"`
	Active      bool      `json:"active"`
	SortOrder   int       `json:"sort_order" validate:"gte=0"`
}
