package service

import (
	"context"
	"time"

	"code_arena/internal/common"
	"code_arena/internal/domain/model"
	"code_arena/internal/domain/repository"
	"code_arena/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

type ContestService struct {
	contestRepo repository.ContestRepository
	problemRepo repository.ProblemRepository
}

func NewContestService(contestRepo repository.ContestRepository, problemRepo repository.ProblemRepository) *ContestService {
	return &ContestService{contestRepo: contestRepo, problemRepo: problemRepo}
}

type CreateContestRequest struct {
	Name       string    `json:"name"`
	ProblemIDs []string  `json:"problem_ids"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

func (s *ContestService) CreateContest(ctx context.Context, userID string, req CreateContestRequest) (*model.Contest, error) {
	if req.Name == "" || len(req.ProblemIDs) == 0 {
		return nil, common.Errorf("missing contest name or problems: %w", common.ErrBadRequest)
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, common.Errorf("contest start time must precede end time: %w", common.ErrValidation)
	}

	for _, problemID := range req.ProblemIDs {
		if _, err := s.problemRepo.GetByID(ctx, problemID); err != nil {
			return nil, common.Errorf("contest problem %s: %w", problemID, err)
		}
	}

	contest := &model.Contest{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		ProblemIDs:  req.ProblemIDs,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		CreatedByID: userID,
	}

	if err := s.contestRepo.Create(ctx, nil, contest); err != nil {
		return nil, err
	}

	logger.L.Info("contest created",
		zap.String("contest_id", contest.ID),
		zap.String("name", contest.Name),
		zap.Int("problems", len(contest.ProblemIDs)))
	return contest, nil
}

func (s *ContestService) GetContest(ctx context.Context, contestID string) (*model.Contest, error) {
	return s.contestRepo.GetByID(ctx, contestID)
}

func (s *ContestService) ListContests(ctx context.Context, page, pageSize int) ([]model.Contest, int, error) {
	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}
	return s.contestRepo.List(ctx, pageSize, offset)
}

func (s *ContestService) DeleteContest(ctx context.Context, contestID string) error {
	return s.contestRepo.Delete(ctx, contestID)
}

// Register adds the user to the contest's registration ledger. Double
// registration is success, not an error. Registration closes when the
// contest ends.
func (s *ContestService) Register(ctx context.Context, contestID, userID string) error {
	contest, err := s.contestRepo.GetByID(ctx, contestID)
	if err != nil {
		return err
	}
	if time.Now().After(contest.EndTime) {
		return common.Errorf("contest has ended: %w", common.ErrForbidden)
	}
	return s.contestRepo.Register(ctx, contestID, userID)
}

func (s *ContestService) Deregister(ctx context.Context, contestID, userID string) error {
	if _, err := s.contestRepo.GetByID(ctx, contestID); err != nil {
		return err
	}
	return s.contestRepo.Deregister(ctx, contestID, userID)
}

func (s *ContestService) IsRegistered(ctx context.Context, contestID, userID string) (bool, error) {
	return s.contestRepo.IsRegistered(ctx, contestID, userID)
}
