// Package httputil has the request helpers shared by the domain handlers.
package httputil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/dispensing/internal/errs"
)

// ParamKey parses a UUID path parameter.
func ParamKey(c echo.Context, name string) (uuid.UUID, error) {
	key, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, errs.NewBadRequestError(fmt.Sprintf("invalid %s", name), true, nil,
			[]errs.FieldError{{Field: name, Error: "must be a valid UUID"}})
	}
	return key, nil
}

// QueryKey parses an optional UUID query parameter. Absent means uuid.Nil.
func QueryKey(c echo.Context, name string) (uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.NewBadRequestError(fmt.Sprintf("invalid %s", name), true, nil,
			[]errs.FieldError{{Field: name, Error: "must be a valid UUID"}})
	}
	return key, nil
}

// RequireQueryKey is QueryKey for mandatory filters.
func RequireQueryKey(c echo.Context, name string) (uuid.UUID, error) {
	key, err := QueryKey(c, name)
	if err != nil {
		return uuid.Nil, err
	}
	if key == uuid.Nil {
		return uuid.Nil, errs.NewBadRequestError(fmt.Sprintf("%s is required", name), true, nil,
			[]errs.FieldError{{Field: name, Error: "is required"}})
	}
	return key, nil
}

// QueryKeys parses a comma-separated list of UUIDs.
func QueryKeys(c echo.Context, name string) ([]uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	var keys []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		key, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, errs.NewBadRequestError(fmt.Sprintf("invalid %s", name), true, nil,
				[]errs.FieldError{{Field: name, Error: "must be a comma-separated list of UUIDs"}})
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// QueryBool reads an optional boolean filter.
func QueryBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errs.NewBadRequestError(fmt.Sprintf("invalid %s", name), true, nil,
			[]errs.FieldError{{Field: name, Error: "must be true or false"}})
	}
	return &b, nil
}

// QueryDate reads an optional YYYY-MM-DD query parameter.
func QueryDate(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, errs.NewBadRequestError(fmt.Sprintf("invalid %s", name), true, nil,
			[]errs.FieldError{{Field: name, Error: "must be a date as YYYY-MM-DD"}})
	}
	return &d, nil
}

// Bind decodes the request body into v.
func Bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return errs.NewBadRequestError("invalid request body", false, nil, nil)
	}
	return nil
}

// QueryVersion reads the optional expected-version parameter of a delete.
// Absent means zero, which skips the version check.
func QueryVersion(c echo.Context) (int, error) {
	raw := c.QueryParam("version")
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, errs.NewBadRequestError("invalid version", true, nil,
			[]errs.FieldError{{Field: "version", Error: "must be a positive integer"}})
	}
	return v, nil
}
