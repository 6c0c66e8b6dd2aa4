package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/concern-service/internal/auth"
	"github.com/spec-kit/concern-service/internal/config"
	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/repository"
	apperrors "github.com/spec-kit/concern-service/pkg/util/errorutil"
)

// AuthService coordinates registration and login flows.
type AuthService struct {
	students   repository.StudentRepository
	handlers   repository.HandlerRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// AuthDependencies encapsulates repo requirements for the auth service.
type AuthDependencies struct {
	StudentRepo repository.StudentRepository
	HandlerRepo repository.HandlerRepository
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		students:   deps.StudentRepo,
		handlers:   deps.HandlerRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// TokenManager exposes the signer for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager { return s.tokenMgr }

// RegisterStudent creates a new student account.
func (s *AuthService) RegisterStudent(ctx context.Context, name, email, password string) (*domain.Student, string, time.Time, error) {
	if _, err := s.students.GetByEmail(ctx, email); err == nil {
		return nil, "", time.Time{}, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}

	student := &domain.Student{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}

	token, exp, err := s.tokenMgr.GenerateToken(student.ID, domain.SubjectTypeStudent, nil)
	if err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	return student, token, exp, nil
}

// LoginStudent authenticates a student.
func (s *AuthService) LoginStudent(ctx context.Context, email, password string) (*domain.Student, string, time.Time, error) {
	student, err := s.students.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if !student.Active {
		return nil, "", time.Time{}, apperrors.NewForbidden("student account inactive")
	}
	if err := auth.ComparePassword(student.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(student.ID, domain.SubjectTypeStudent, nil)
	if err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	return student, token, exp, nil
}

// LoginHandler authenticates staff and returns a role-bearing token.
func (s *AuthService) LoginHandler(ctx context.Context, email, password string) (*domain.Handler, string, time.Time, error) {
	handler, err := s.handlers.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if !handler.Active {
		return nil, "", time.Time{}, apperrors.NewForbidden("handler inactive")
	}
	if err := auth.ComparePassword(handler.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(handler.ID, domain.SubjectTypeHandler, &handler.Role)
	if err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	return handler, token, exp, nil
}

// Logout no-ops for the stateless JWT approach.
func (s *AuthService) Logout(_ context.Context, _ string) error {
	return nil
}
