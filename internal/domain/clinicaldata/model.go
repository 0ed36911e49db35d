package clinicaldata

import (
	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/codes"
)

type ResponseKind string

const (
	KindText    ResponseKind = "TEXT"
	KindNumeric ResponseKind = "NUMERIC"
	KindChoice  ResponseKind = "CHOICE"
)

var responseKinds = codes.New("response kind", KindText, KindNumeric, KindChoice)

func (k ResponseKind) Valid() bool { return responseKinds.Valid(k) }
func (k *ResponseKind) Scan(src any) error { return responseKinds.Scan(k, src) }

// Subject is a question a cabinet user answers when removing medication.
type Subject struct {
	Key              uuid.UUID   `json:"key"`
	FacilityKey      uuid.UUID   `json:"facility_key" validate:"required"`
	Title            string      `json:"title" validate:"required,max=100"`
	Description      *string     `json:"description,omitempty" validate:"omitempty,max=500"`
	Active           bool        `json:"active"`
	ResponseRequired bool        `json:"response_required"`
	Responses        []Response  `json:"responses,omitempty"`
	UserTypeKeys     []uuid.UUID `json:"user_type_keys,omitempty"`
}

type Response struct {
	Key        uuid.UUID    `json:"key"`
	SubjectKey uuid.UUID    `json:"subject_key"`
	Text       string       `json:"text" validate:"required,max=200"`
	SortOrder  int          `json:"sort_order" validate:"gte=0"`
	Kind       ResponseKind `json:"kind"`
}

// UserType scopes which cabinet users are asked a subject.
type UserType struct {
	Key         uuid.UUID `json:"key"`
	Name        string    `json:"name" validate:"required,max=60"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=200"`
}
