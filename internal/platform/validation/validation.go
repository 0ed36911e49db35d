// Package validation runs struct-tag validation on domain inputs and turns
// failures into 400 responses with one entry per field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ehr/dispensing/internal/errs"
)

var (
	once     sync.Once
	validate *validator.Validate

	clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// Invalid is a validation failure that struct tags cannot express.
type Invalid []errs.FieldError

func (v Invalid) Error() string {
	return "validation failed"
}

// Field returns a single-field Invalid error.
func Field(field, message string) error {
	return Invalid{{Field: field, Error: message}}
}

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return strings.ToLower(fld.Name)
			}
			return name
		})
		_ = validate.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			return clockPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct validates v and returns a *errs.HTTPError on failure.
func Struct(v any) error {
	return From(instance().Struct(v))
}

// From converts a validator or Invalid error into a 400 response. Nil and
// unrelated errors pass through.
func From(err error) error {
	if err == nil {
		return nil
	}

	var custom Invalid
	if errors.As(err, &custom) {
		return errs.NewBadRequestError("Validation failed", true, nil, custom)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]errs.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, errs.FieldError{
			Field: fieldPath(fe.Namespace()),
			Error: message(fe),
		})
	}
	return errs.NewBadRequestError("Validation failed", true, nil, fields)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", fe.Param())
		}
		return fmt.Sprintf("must not exceed %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "hostname_port", "hostname", "ip":
		return "must be a valid host address"
	case "clock":
		return "must be a time of day as HH:MM"
	case "timezone":
		return "must be an IANA time zone"
	case "dive":
		return "some items are invalid"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
