package medclass

import "github.com/google/uuid"

// Group collects medication classes under one code, e.g. all opioid classes.
type Group struct {
	Key         uuid.UUID `json:"key"`
	Code        string    `json:"code" validate:"required,max=20"`
	Description string    `json:"description" validate:"required,max=100"`
	ClassCodes  []string  `json:"class_codes" validate:"dive,required,max=20"`
}
