package validation

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/dispensing/internal/errs"
)

type sample struct {
	Name     string   `json:"name" validate:"required,max=5"`
	Quantity int      `json:"quantity" validate:"gt=0"`
	Times    []string `json:"times" validate:"dive,clock"`
	Email    string   `json:"email,omitempty" validate:"omitempty,email"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(&sample{Name: "ok", Quantity: 1, Times: []string{"08:00", "23:59"}}))
}

func TestStruct_FieldErrors(t *testing.T) {
	err := Struct(&sample{Name: "toolong", Times: []string{"24:00"}, Email: "nope"})

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)

	got := map[string]string{}
	for _, f := range httpErr.Errors {
		got[f.Field] = f.Error
	}
	assert.Equal(t, "must not exceed 5 characters", got["name"])
	assert.Equal(t, "must be greater than 0", got["quantity"])
	assert.Equal(t, "must be a time of day as HH:MM", got["times[0]"])
	assert.Equal(t, "must be a valid email address", got["email"])
}

func TestFrom(t *testing.T) {
	assert.NoError(t, From(nil))

	plain := errors.New("plain")
	assert.Equal(t, plain, From(plain))

	var httpErr *errs.HTTPError
	require.ErrorAs(t, From(Field("copies", "must be at least 1")), &httpErr)
	assert.Equal(t, []errs.FieldError{{Field: "copies", Error: "must be at least 1"}}, httpErr.Errors)
}
