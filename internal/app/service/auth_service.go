package service

import (
	"context"
	"errors"

	"code_arena/internal/common"
	"code_arena/internal/common/security"
	"code_arena/internal/domain/model"
	"code_arena/internal/domain/repository"
	"code_arena/internal/platform/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthService struct {
	userRepo repository.UserRepository
}

func NewAuthService(userRepo repository.UserRepository) *AuthService {
	return &AuthService{userRepo: userRepo}
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*model.User, error) {
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		return nil, common.Errorf("username, email and a password of at least 8 characters are required: %w", common.ErrValidation)
	}

	hashed, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, common.Errorf("failed to hash password: %w", common.ErrInternalServer)
	}

	user := &model.User{
		ID:             uuid.NewString(),
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: hashed,
		Role:           model.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.L.Info("user signed up", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (string, *model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", nil, common.Errorf("invalid credentials: %w", common.ErrUnauthorized)
		}
		return "", nil, err
	}

	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		return "", nil, common.Errorf("invalid credentials: %w", common.ErrUnauthorized)
	}

	token, err := security.GenerateToken(user.ID, user.Role)
	if err != nil {
		return "", nil, common.Errorf("failed to generate token: %w", common.ErrInternalServer)
	}
	return token, user, nil
}
