package sqlerr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ehr/dispensing/internal/errs"
)

var uniqueKeyPattern = regexp.MustCompile(`_([^_]+)_key$`)

// HandleError converts a repository error into the API error returned to the
// client. Validation errors already shaped as *errs.HTTPError pass through.
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var sqlErr *Error
	if !errors.As(Classify(err), &sqlErr) {
		return errs.NewInternalServerError()
	}

	code := generateErrorCode(sqlErr.TableName, sqlErr.Code)
	entity := getEntityName(sqlErr.TableName, sqlErr.ColumnName)

	switch sqlErr.Code {
	case NotFound:
		return errs.NewNotFoundError(fmt.Sprintf("%s not found", entity), true, &code)
	case ConcurrencyConflict:
		return errs.NewConflictError(
			fmt.Sprintf("The %s was changed by another user; reload and try again", strings.ToLower(entity)), &code)
	case UniqueViolation:
		field := "identifier"
		if col := extractColumnForUniqueViolation(sqlErr.ConstraintName); col != "" {
			field = humanizeText(col)
		}
		return errs.NewConflictError(fmt.Sprintf("A %s with this %s already exists", entity, field), &code)
	case ForeignKeyViolation:
		return errs.NewBadRequestError(fmt.Sprintf("The referenced %s does not exist", entity), false, &code, nil)
	case NotNullViolation:
		field := humanizeText(sqlErr.ColumnName)
		if field == "" {
			field = "field"
		}
		return errs.NewBadRequestError(fmt.Sprintf("The %s is required", field), true, &code,
			[]errs.FieldError{{Field: strings.ToLower(sqlErr.ColumnName), Error: "is required"}})
	case CheckViolation:
		return errs.NewBadRequestError("One or more values do not meet required conditions", true, &code, nil)
	case InvalidInput:
		return errs.NewBadRequestError("One or more values have an invalid format", true, &code, nil)
	case SerializationFailure, DeadlockDetected, ConnectionFailure, QueryCanceled:
		return errs.NewServiceUnavailableError("The database is busy; try again")
	default:
		return errs.NewInternalServerError()
	}
}

// generateErrorCode builds machine codes like FACILITY_ALREADY_EXISTS.
func generateErrorCode(tableName string, code Code) string {
	domain := "RECORD"
	if tableName != "" {
		domain = strings.ToUpper(strings.TrimSuffix(tableName, "_snapshot"))
	}

	action := "ERROR"
	switch code {
	case NotFound:
		action = "NOT_FOUND"
	case ConcurrencyConflict:
		action = "CONFLICT"
	case ForeignKeyViolation:
		action = "REFERENCE_NOT_FOUND"
	case UniqueViolation:
		action = "ALREADY_EXISTS"
	case NotNullViolation:
		action = "REQUIRED"
	case CheckViolation, InvalidInput:
		action = "INVALID"
	}
	return domain + "_" + action
}

func getEntityName(tableName, columnName string) string {
	if columnName != "" && strings.HasSuffix(strings.ToLower(columnName), "_key") {
		return humanizeText(strings.TrimSuffix(strings.ToLower(columnName), "_key"))
	}
	if tableName != "" {
		return humanizeText(strings.TrimSuffix(tableName, "_snapshot"))
	}
	return "Record"
}

func humanizeText(text string) string {
	if text == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(text, "_", " "))
}

// extractColumnForUniqueViolation reads the column out of constraint names
// shaped like <table>_<column>_key.
func extractColumnForUniqueViolation(constraintName string) string {
	matches := uniqueKeyPattern.FindStringSubmatch(constraintName)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}
