package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/concern-service/internal/api/http/handlers"
	"github.com/spec-kit/concern-service/internal/auth"
	"github.com/spec-kit/concern-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Concerns       *handlers.ConcernsHandler
	Orchestrator   *handlers.OrchestratorHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/students/register", cfg.Auth.RegisterStudent)
	authGroup.Post("/students/login", cfg.Auth.LoginStudent)
	authGroup.Post("/handlers/login", cfg.Auth.LoginHandler)

	concerns := app.Group("/concerns", cfg.AuthMiddleware.Handle, auth.RequireStudent())
	concerns.Post("/", cfg.Concerns.Submit)
	concerns.Get("/", cfg.Concerns.List)
	concerns.Get("/:id", cfg.Concerns.Get)
	concerns.Post("/:id/confirm", cfg.Concerns.Confirm)
	concerns.Post("/:id/dispute", cfg.Concerns.Dispute)

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireHandlerRole())
	staff.Get("/concerns", cfg.Orchestrator.List)
	staff.Get("/concerns/:id", cfg.Orchestrator.Get)
	staff.Patch("/concerns/:id/status", cfg.Orchestrator.UpdateStatus)

	leads := staff.Group("", auth.RequireHandlerRole(domain.HandlerRoleDepartmentHead, domain.HandlerRoleAdmin))
	leads.Post("/concerns/:id/approve", cfg.Orchestrator.Approve)
	leads.Post("/concerns/:id/reject", cfg.Orchestrator.Reject)
	leads.Post("/concerns/:id/assign", cfg.Orchestrator.Assign)
	leads.Post("/concerns/:id/escalate", cfg.Orchestrator.Escalate)
	leads.Post("/concerns/:id/emergency", cfg.Orchestrator.Emergency)
	leads.Get("/departments/loads", cfg.Orchestrator.DepartmentLoads)
	leads.Get("/departments/:id/rebalance", cfg.Orchestrator.Rebalance)
	leads.Post("/departments/rebalance/execute", cfg.Orchestrator.ExecuteProposal)

	admin := staff.Group("", auth.RequireHandlerRole(domain.HandlerRoleAdmin))
	admin.Post("/escalation/sweep", cfg.Orchestrator.RunSweep)
}
