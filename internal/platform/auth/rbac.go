package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RoleTechnician = "technician"
)

// ReadRoles may view configuration; WriteRoles may change it.
var (
	ReadRoles  = []string{RoleAdmin, RolePharmacist, RoleTechnician}
	WriteRoles = []string{RoleAdmin, RolePharmacist}
)

// RequireRole rejects the request unless the user holds one of roles. Admin
// passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, has := range userRoles {
				if has == RoleAdmin {
					return next(c)
				}
				for _, required := range roles {
					if has == required {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// CanRead and CanWrite are the route guards used by domain handlers.
func CanRead() echo.MiddlewareFunc  { return RequireRole(ReadRoles...) }
func CanWrite() echo.MiddlewareFunc { return RequireRole(WriteRoles...) }
