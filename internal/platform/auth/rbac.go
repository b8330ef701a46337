package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles carried in the token's roles claim.
const (
	RoleAdmin     = "admin"
	RolePhysician = "physician"
	RoleNurse     = "nurse"
	RoleRegistrar = "registrar"
)

// OPDStaff may read doctor rosters and day plans.
var OPDStaff = []string{RoleAdmin, RolePhysician, RoleNurse, RoleRegistrar}

// HasRole reports whether granted satisfies any of wanted. Admin satisfies
// everything.
func HasRole(granted []string, wanted ...string) bool {
	return slices.ContainsFunc(granted, func(g string) bool {
		if strings.EqualFold(g, RoleAdmin) {
			return true
		}
		return slices.ContainsFunc(wanted, func(w string) bool { return strings.EqualFold(g, w) })
	})
}

// RequireRole rejects requests whose identity holds none of roles with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	denied := "required role: " + strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return echo.NewHTTPError(http.StatusForbidden, denied)
			}
			return next(c)
		}
	}
}
