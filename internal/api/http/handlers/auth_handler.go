package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/concern-service/internal/api/dto"
	"github.com/spec-kit/concern-service/internal/service"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

// AuthHandler serves registration and login endpoints.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// RegisterStudent POST /auth/students/register.
func (h *AuthHandler) RegisterStudent(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		return apperrors.NewValidationError("name, email, and password (8+ chars) required", nil)
	}
	student, token, exp, err := h.service.RegisterStudent(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.AuthResponse{
		Token:     token,
		ExpiresAt: exp,
		Subject:   student.ID,
		Name:      student.Name,
	}})
}

// LoginStudent POST /auth/students/login.
func (h *AuthHandler) LoginStudent(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	student, token, exp, err := h.service.LoginStudent(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{
		Token:     token,
		ExpiresAt: exp,
		Subject:   student.ID,
		Name:      student.Name,
	}})
}

// LoginHandler POST /auth/handlers/login.
func (h *AuthHandler) LoginHandler(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	handler, token, exp, err := h.service.LoginHandler(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{
		Token:     token,
		ExpiresAt: exp,
		Subject:   handler.ID,
		Name:      handler.Name,
		Role:      string(handler.Role),
	}})
}
