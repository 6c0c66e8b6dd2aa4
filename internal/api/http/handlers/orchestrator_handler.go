package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/concern-service/internal/api/dto"
	"github.com/spec-kit/concern-service/internal/auth"
	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/service"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

// OrchestratorHandler manages staff-facing concern operations: approval,
// status changes, assignment, escalation, and cross-department balancing.
type OrchestratorHandler struct {
	concerns   *service.ConcernService
	escalation *service.EscalationService
	balance    *service.BalanceService
}

// NewOrchestratorHandler constructs the handler.
func NewOrchestratorHandler(concerns *service.ConcernService, escalation *service.EscalationService, balance *service.BalanceService) *OrchestratorHandler {
	return &OrchestratorHandler{concerns: concerns, escalation: escalation, balance: balance}
}

func handlerPrincipal(c *fiber.Ctx) (*domain.Handler, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Handler == nil {
		return nil, apperrors.NewUnauthorized("handler required")
	}
	return principal.Handler, nil
}

// List GET /staff/concerns.
func (h *OrchestratorHandler) List(c *fiber.Ctx) error {
	actor, err := handlerPrincipal(c)
	if err != nil {
		return err
	}
	concerns, err := h.concerns.ListForHandler(c.Context(), actor, parseConcernQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.ConcernSummary, 0, len(concerns))
	for i := range concerns {
		items = append(items, concernSummary(&concerns[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /staff/concerns/:id.
func (h *OrchestratorHandler) Get(c *fiber.Ctx) error {
	actor, err := handlerPrincipal(c)
	if err != nil {
		return err
	}
	concern, history, err := h.concerns.GetForHandler(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernDetail(concern, history)})
}

// Approve POST /staff/concerns/:id/approve.
func (h *OrchestratorHandler) Approve(c *fiber.Ctx) error {
	actor, err := handlerPrincipal(c)
	if err != nil {
		return err
	}
	concern, err := h.concerns.Approve(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernSummary(concern)})
}

// Reject POST /staff/concerns/:id/reject.
func (h *OrchestratorHandler) Reject(c *fiber.Ctx) error {
	actor, err := handlerPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RejectConcernRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	concern, err := h.concerns.Reject(c.Context(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernSummary(concern)})
}

// UpdateStatus PATCH /staff/concerns/:id/status.
func (h *OrchestratorHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := handlerPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	concern, err := h.concerns.UpdateStatus(c.Context(), actor, c.Params("id"), domain.ConcernStatus(strings.ToUpper(req.Status)), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernSummary(concern)})
}

// Assign POST /staff/concerns/:id/assign.
func (h *OrchestratorHandler) Assign(c *fiber.Ctx) error {
	actor, err := handlerPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.HandlerID == "" {
		return apperrors.NewValidationError("handler_id required", nil)
	}
	concern, err := h.concerns.Assign(c.Context(), actor, c.Params("id"), req.HandlerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernSummary(concern)})
}

// Escalate POST /staff/concerns/:id/escalate.
func (h *OrchestratorHandler) Escalate(c *fiber.Ctx) error {
	actor, err := handlerPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	concern, err := h.escalation.ManualEscalate(c.Context(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernSummary(concern)})
}

// RunSweep POST /staff/escalation/sweep.
func (h *OrchestratorHandler) RunSweep(c *fiber.Ctx) error {
	if _, err := handlerPrincipal(c); err != nil {
		return err
	}
	result, err := h.escalation.RunSweep(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// DepartmentLoads GET /staff/departments/loads.
func (h *OrchestratorHandler) DepartmentLoads(c *fiber.Ctx) error {
	if _, err := handlerPrincipal(c); err != nil {
		return err
	}
	loads, err := h.balance.DepartmentLoads(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": loads})
}

// Rebalance GET /staff/departments/:id/rebalance.
func (h *OrchestratorHandler) Rebalance(c *fiber.Ctx) error {
	if _, err := handlerPrincipal(c); err != nil {
		return err
	}
	proposals, err := h.balance.Rebalance(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": proposals})
}

// ExecuteProposal POST /staff/departments/rebalance/execute.
func (h *OrchestratorHandler) ExecuteProposal(c *fiber.Ctx) error {
	actor, err := handlerPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ExecuteProposalRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ConcernID == "" || req.HandlerID == "" {
		return apperrors.NewValidationError("concern_id and handler_id required", nil)
	}
	concern, err := h.balance.ExecuteProposal(c.Context(), actor, req.ConcernID, req.HandlerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernSummary(concern)})
}

// Emergency POST /staff/concerns/:id/emergency.
func (h *OrchestratorHandler) Emergency(c *fiber.Ctx) error {
	actor, err := handlerPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.EmergencyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	concern, assignee, err := h.balance.ActivateEmergency(c.Context(), actor, c.Params("id"), req.Reason, domain.ConcernPriority(strings.ToUpper(req.Priority)))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"concern": concernSummary(concern),
		"handler": fiber.Map{
			"id":   assignee.ID,
			"name": assignee.Name,
		},
	}})
}
