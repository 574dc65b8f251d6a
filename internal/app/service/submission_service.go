package service

import (
	"context"
	"time"

	"code_arena/internal/common"
	"code_arena/internal/domain/model"
	"code_arena/internal/domain/repository"
	"code_arena/internal/platform/config"
	"code_arena/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type SubmissionService struct {
	submissionRepo repository.SubmissionRepository
	problemRepo    repository.ProblemRepository
	contestRepo    repository.ContestRepository
	rdb            *redis.Client
	waiters        *ResultWaiters
}

func NewSubmissionService(
	submissionRepo repository.SubmissionRepository,
	problemRepo repository.ProblemRepository,
	contestRepo repository.ContestRepository,
	rdb *redis.Client,
	waiters *ResultWaiters,
) *SubmissionService {
	return &SubmissionService{
		submissionRepo: submissionRepo,
		problemRepo:    problemRepo,
		contestRepo:    contestRepo,
		rdb:            rdb,
		waiters:        waiters,
	}
}

type SubmitRequest struct {
	ProblemID string  `json:"problem_id"`
	ContestID *string `json:"contest_id,omitempty"`
	Language  string  `json:"language"`
	Code      string  `json:"code"`
}

// Submit records a pending submission, enqueues it for judging and waits up
// to the configured timeout for the verdict. If the verdict is not in by
// then, the still-pending record is returned and the client polls.
func (s *SubmissionService) Submit(ctx context.Context, userID string, req SubmitRequest) (*model.Submission, error) {
	if req.Code == "" {
		return nil, common.Errorf("code must not be empty: %w", common.ErrValidation)
	}
	if _, ok := model.LanguageByName(req.Language); !ok {
		return nil, common.Errorf("language %q: %w", req.Language, common.ErrUnsupportedLanguage)
	}

	if _, err := s.problemRepo.GetByID(ctx, req.ProblemID); err != nil {
		return nil, err
	}
	testCases, err := s.problemRepo.GetTestCasesByProblemID(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}
	if len(testCases) == 0 {
		return nil, common.Errorf("problem %s has no test cases: %w", req.ProblemID, common.ErrInternalServer)
	}

	if req.ContestID != nil {
		if err := s.checkContestEntry(ctx, *req.ContestID, userID); err != nil {
			return nil, err
		}
	}

	sub := &model.Submission{
		ID:             uuid.NewString(),
		UserID:         userID,
		ProblemID:      req.ProblemID,
		ContestID:      req.ContestID,
		Language:       req.Language,
		Code:           req.Code,
		Status:         model.StatusPending,
		TestCasesTotal: len(testCases),
	}
	if err := s.submissionRepo.Create(ctx, nil, sub); err != nil {
		return nil, err
	}

	// Register before enqueueing so a fast worker cannot finish first.
	resultCh := s.waiters.Register(sub.ID)

	if err := s.rdb.LPush(ctx, config.AppConfig.JudgeQueueName, sub.ID).Err(); err != nil {
		s.waiters.Unregister(sub.ID)
		logger.L.Error("failed to enqueue submission",
			zap.String("submission_id", sub.ID), zap.Error(err))
		return nil, common.Errorf("failed to enqueue submission: %w", common.ErrInternalServer)
	}

	logger.L.Info("submission enqueued",
		zap.String("submission_id", sub.ID),
		zap.String("problem_id", sub.ProblemID),
		zap.String("language", sub.Language))

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return res.Submission, res.Err
		}
		return res.Submission, nil
	case <-time.After(config.AppConfig.SubmitWaitTimeout):
		s.waiters.Unregister(sub.ID)
		return s.submissionRepo.GetByID(ctx, sub.ID)
	case <-ctx.Done():
		s.waiters.Unregister(sub.ID)
		return nil, ctx.Err()
	}
}

// checkContestEntry gates contest-scoped submissions: the contest must be
// running and the submitter must be on its registration ledger.
func (s *SubmissionService) checkContestEntry(ctx context.Context, contestID, userID string) error {
	contest, err := s.contestRepo.GetByID(ctx, contestID)
	if err != nil {
		return err
	}

	now := time.Now()
	if now.Before(contest.StartTime) {
		return common.Errorf("contest has not started: %w", common.ErrForbidden)
	}
	if now.After(contest.EndTime) {
		return common.Errorf("contest has ended: %w", common.ErrForbidden)
	}

	registered, err := s.contestRepo.IsRegistered(ctx, contestID, userID)
	if err != nil {
		return err
	}
	if !registered {
		return common.Errorf("user is not registered for contest %s: %w", contestID, common.ErrForbidden)
	}
	return nil
}

func (s *SubmissionService) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	return s.submissionRepo.GetByID(ctx, id)
}

func (s *SubmissionService) ListUserSubmissions(ctx context.Context, userID string, problemID *string) ([]model.Submission, error) {
	return s.submissionRepo.ListByUser(ctx, userID, problemID)
}
