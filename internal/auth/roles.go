package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visit-verification/internal/domain"
)

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

// CanSeeHospitalRecord reports whether the principal may read or change a
// record owned by hospitalID. Admins see every hospital.
func (p *Principal) CanSeeHospitalRecord(hospitalID string) bool {
	if p == nil {
		return false
	}
	if p.Role == domain.RoleAdmin {
		return true
	}
	return p.Role == domain.RoleHospital && p.HospitalID == hospitalID
}
