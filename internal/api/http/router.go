package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visit-verification/internal/api/http/handlers"
	"github.com/spec-kit/visit-verification/internal/auth"
	"github.com/spec-kit/visit-verification/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Codes          *handlers.CodesHandler
	Visits         *handlers.VisitsHandler
	Claims         *handlers.ClaimsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)

	v1.Post("/codes", auth.RequireRole(domain.RoleMember, domain.RoleAdmin), cfg.Codes.Issue)
	v1.Get("/members/:id/codes", auth.RequireRole(domain.RoleAdmin), cfg.Codes.History)

	v1.Post("/visits", auth.RequireRole(domain.RoleHospital), cfg.Visits.Authorize)
	v1.Get("/visits/:id", auth.RequireRole(domain.RoleHospital, domain.RoleAdmin), cfg.Visits.GetVisit)
	v1.Post("/visits/:id/close", auth.RequireRole(domain.RoleHospital), cfg.Visits.Close)
	v1.Post("/visits/:id/void", auth.RequireRole(domain.RoleHospital, domain.RoleAdmin), cfg.Visits.Void)

	v1.Post("/claims", auth.RequireRole(domain.RoleHospital), cfg.Claims.Submit)
	v1.Get("/claims/:id", auth.RequireRole(domain.RoleHospital, domain.RoleAdmin), cfg.Claims.GetClaim)
	v1.Post("/claims/:id/decision", auth.RequireRole(domain.RoleAdmin), cfg.Claims.Decide)
}
