package codemap

import (
	"github.com/google/uuid"

	"github.com/ehr/dispensing/internal/platform/codes"
)

// Category names the internal code set a mapping translates into.
type Category string

const (
	CategoryGender        Category = "GENDER"
	CategoryPatientIDType Category = "PATIENT_ID_TYPE"
	CategoryUnitOfMeasure Category = "UNIT_OF_MEASURE"
)

var categories = codes.New("code mapping category", CategoryGender, CategoryPatientIDType, CategoryUnitOfMeasure)

func (c Category) Valid() bool { return categories.Valid(c) }
func (c *Category) Scan(src any) error { return categories.Scan(c, src) }

// Mapping translates a code sent by an external system (an HL7 feed, for
// example) into an internal code. (ExternalSystem, Category, ExternalCode) is
// unique.
type Mapping struct {
	Key            uuid.UUID `json:"key" yaml:"-"`
	ExternalSystem string    `json:"external_system" yaml:"system" validate:"required,max=40"`
	Category       Category  `json:"category" yaml:"category"`
	ExternalCode   string    `json:"external_code" yaml:"external_code" validate:"required,max=40"`
	InternalCode   string    `json:"internal_code" yaml:"internal_code" validate:"required,max=20"`
	Description    *string   `json:"description,omitempty" yaml:"description" validate:"omitempty,max=200"`
}

// Document is the YAML import format. Entries without a system inherit the
// document's.
type Document struct {
	System   string    `yaml:"system"`
	Mappings []Mapping `yaml:"mappings"`
}

type ImportResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}
