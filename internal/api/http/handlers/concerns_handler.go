package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/concern-service/internal/api/dto"
	"github.com/spec-kit/concern-service/internal/auth"
	"github.com/spec-kit/concern-service/internal/service"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

// ConcernsHandler manages student-facing concern endpoints.
type ConcernsHandler struct {
	service *service.ConcernService
}

// NewConcernsHandler constructs the handler.
func NewConcernsHandler(concernService *service.ConcernService) *ConcernsHandler {
	return &ConcernsHandler{service: concernService}
}

// Submit POST /concerns.
func (h *ConcernsHandler) Submit(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Student == nil {
		return apperrors.NewUnauthorized("student required")
	}
	var req dto.SubmitConcernRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.DepartmentID == "" || req.Subject == "" || req.Description == "" {
		return apperrors.NewValidationError("department_id, subject, description required", nil)
	}

	result, err := h.service.Submit(c.Context(), principal.Student.ID, service.SubmitConcernInput{
		DepartmentID: req.DepartmentID,
		FacilityID:   req.FacilityID,
		Subject:      req.Subject,
		Description:  req.Description,
		Attachments:  req.Attachments,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.SubmitConcernResponse{
		Concern:    concernSummary(result.Concern),
		Analysis:   analysisView(result.Analysis),
		Assignment: assignmentView(result.Assignment),
	}})
}

// List GET /concerns.
func (h *ConcernsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Student == nil {
		return apperrors.NewUnauthorized("student required")
	}
	concerns, err := h.service.ListForStudent(c.Context(), principal.Student.ID, parseConcernQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.ConcernSummary, 0, len(concerns))
	for i := range concerns {
		items = append(items, concernSummary(&concerns[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /concerns/:id.
func (h *ConcernsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Student == nil {
		return apperrors.NewUnauthorized("student required")
	}
	concern, history, err := h.service.GetForStudent(c.Context(), principal.Student.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernDetail(concern, history)})
}

// Confirm POST /concerns/:id/confirm.
func (h *ConcernsHandler) Confirm(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Student == nil {
		return apperrors.NewUnauthorized("student required")
	}
	var req dto.ConfirmResolutionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return apperrors.NewValidationError("rating must be between 1 and 5", nil)
	}
	concern, err := h.service.ConfirmResolution(c.Context(), principal.Student.ID, c.Params("id"), req.Notes, req.Rating)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernSummary(concern)})
}

// Dispute POST /concerns/:id/dispute.
func (h *ConcernsHandler) Dispute(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Student == nil {
		return apperrors.NewUnauthorized("student required")
	}
	var req dto.DisputeResolutionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	concern, err := h.service.DisputeResolution(c.Context(), principal.Student.ID, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": concernSummary(concern)})
}
