package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/dispensing/internal/platform/auth"
)

// AuditEntry records one administrative change.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Entity     string
	EntityKey  string
	Action     string // create, update, delete
	IPAddress  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordChange(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordChange(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every write request under /api/v1 after it completes. Reads are
// not audited.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := methodToAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				StatusCode: c.Response().Status,
				RequestID:  GetRequestID(c),
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Action:     action,
			}
			entry.Entity, entry.EntityKey = entityFromPath(req.URL.Path)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordChange(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if err != nil {
				evt = logger.Warn()
			}
			evt.
				Str("type", "admin_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("entity", entry.Entity).
				Str("entity_key", entry.EntityKey).
				Str("action", entry.Action).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Bool("failed", err != nil).
				Msg("admin_change")

			return err
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return ""
	}
}

// entityFromPath returns the last non-key path segment and the last UUID
// segment, e.g. /api/v1/facilities/{key}/contacts -> ("contacts", key).
func entityFromPath(path string) (string, string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	var entity, key string
	for _, p := range parts {
		if _, err := uuid.Parse(p); err == nil {
			key = p
			continue
		}
		entity = p
	}
	return entity, key
}
