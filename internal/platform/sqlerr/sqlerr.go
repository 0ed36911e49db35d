package sqlerr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Code is the normalized category of a database failure.
type Code int

const (
	Other Code = iota
	NotFound
	ConcurrencyConflict
	NotNullViolation
	ForeignKeyViolation
	UniqueViolation
	CheckViolation
	InvalidInput
	SerializationFailure
	DeadlockDetected
	QueryCanceled
	ConnectionFailure
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "not_found"
	case ConcurrencyConflict:
		return "concurrency_conflict"
	case NotNullViolation:
		return "not_null_violation"
	case ForeignKeyViolation:
		return "foreign_key_violation"
	case UniqueViolation:
		return "unique_violation"
	case CheckViolation:
		return "check_violation"
	case InvalidInput:
		return "invalid_input"
	case SerializationFailure:
		return "serialization_failure"
	case DeadlockDetected:
		return "deadlock_detected"
	case QueryCanceled:
		return "query_canceled"
	case ConnectionFailure:
		return "connection_failure"
	default:
		return "other"
	}
}

// Severity mirrors the PostgreSQL severity field.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityError
	SeverityFatal
	SeverityPanic
	SeverityWarning
	SeverityNotice
)

// Error is a classified database error.
type Error struct {
	Code           Code
	Severity       Severity
	DatabaseCode   string
	Message        string
	SchemaName     string
	TableName      string
	ColumnName     string
	ConstraintName string
	driverErr      error
}

func (e *Error) Error() string {
	if e.TableName != "" {
		return fmt.Sprintf("%s: %s", e.TableName, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.driverErr
}

// Is matches another *Error of the same Code, which lets the package-level
// sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound    = &Error{Code: NotFound, Message: "record not found"}
	ErrConcurrency = &Error{Code: ConcurrencyConflict, Message: "record was modified by another session"}
)

// NotFoundFor returns a not-found error naming the entity table.
func NotFoundFor(table string) error {
	return &Error{Code: NotFound, Message: "record not found", TableName: table}
}

// ConcurrencyFor returns a concurrency conflict naming the entity table.
func ConcurrencyFor(table string) error {
	return &Error{Code: ConcurrencyConflict, Message: ErrConcurrency.Message, TableName: table}
}

// MissingReferenceFor reports keys that do not resolve to usable rows of
// table, checked by the repository rather than by a foreign key.
func MissingReferenceFor(table string) error {
	return &Error{Code: ForeignKeyViolation, Message: "referenced record does not exist", TableName: table}
}

// MapCode maps a SQLSTATE to a Code.
func MapCode(sqlState string) Code {
	switch sqlState {
	case "23502":
		return NotNullViolation
	case "23503":
		return ForeignKeyViolation
	case "23505":
		return UniqueViolation
	case "23514":
		return CheckViolation
	case "22001", "22003", "22007", "22008", "22P02":
		return InvalidInput
	case "40001":
		return SerializationFailure
	case "40P01":
		return DeadlockDetected
	case "57014":
		return QueryCanceled
	}
	if strings.HasPrefix(sqlState, "08") {
		return ConnectionFailure
	}
	return Other
}

// MapSeverity maps the PostgreSQL severity string to a Severity.
func MapSeverity(severity string) Severity {
	switch severity {
	case "ERROR":
		return SeverityError
	case "FATAL":
		return SeverityFatal
	case "PANIC":
		return SeverityPanic
	case "WARNING":
		return SeverityWarning
	case "NOTICE", "DEBUG", "INFO", "LOG":
		return SeverityNotice
	default:
		return SeverityUnknown
	}
}

// ConvertPgError converts a raw PostgreSQL error into an *Error.
func ConvertPgError(src *pgconn.PgError) *Error {
	return &Error{
		Code:           MapCode(src.Code),
		Severity:       MapSeverity(src.Severity),
		DatabaseCode:   src.Code,
		Message:        src.Message,
		SchemaName:     src.SchemaName,
		TableName:      src.TableName,
		ColumnName:     src.ColumnName,
		ConstraintName: src.ConstraintName,
		driverErr:      src,
	}
}

// Classify normalizes a driver error. Already classified errors, nil and
// non-driver errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Code: NotFound, Message: ErrNotFound.Message, driverErr: err}
	}

	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return ConvertPgError(pgerr)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: QueryCanceled, Message: err.Error(), driverErr: err}
	}

	if pgconn.SafeToRetry(err) {
		return &Error{Code: ConnectionFailure, Message: err.Error(), driverErr: err}
	}

	return err
}

// ClassifyFor is Classify with the entity table filled in when the driver
// did not report one (no-rows in particular).
func ClassifyFor(table string, err error) error {
	err = Classify(err)
	var classified *Error
	if errors.As(err, &classified) && classified.TableName == "" {
		cp := *classified
		cp.TableName = table
		return &cp
	}
	return err
}

// ErrCode reports the Code of err, or Other when it was never classified.
func ErrCode(err error) Code {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return Other
}

// IsTransient reports whether retrying the whole transaction may succeed.
func IsTransient(err error) bool {
	switch ErrCode(Classify(err)) {
	case SerializationFailure, DeadlockDetected, ConnectionFailure:
		return true
	}
	return false
}

// Ignore swallows err when its code is one of codes.
func Ignore(err error, codes ...Code) error {
	if err == nil {
		return nil
	}
	got := ErrCode(Classify(err))
	for _, c := range codes {
		if got == c {
			return nil
		}
	}
	return err
}
