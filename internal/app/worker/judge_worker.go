package worker

import (
	"context"
	"errors"
	"time"

	"code_arena/internal/app/service"
	"code_arena/internal/common"
	"code_arena/internal/domain/model"
	"code_arena/internal/domain/repository"
	"code_arena/internal/judge"
	"code_arena/internal/platform/config"
	"code_arena/internal/platform/logger"
	"code_arena/internal/ws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const popTimeout = 5 * time.Second

// JudgeWorker drains the submission queue, runs each submission through the
// external judge and finalizes the record. Multiple workers run concurrently;
// nothing here serializes submissions against each other.
type JudgeWorker struct {
	rdb            *redis.Client
	client         *judge.Client
	submissionRepo repository.SubmissionRepository
	problemRepo    repository.ProblemRepository
	leaderboard    *service.LeaderboardService
	hub            *ws.Hub
	waiters        *service.ResultWaiters
}

func NewJudgeWorker(
	rdb *redis.Client,
	client *judge.Client,
	submissionRepo repository.SubmissionRepository,
	problemRepo repository.ProblemRepository,
	leaderboard *service.LeaderboardService,
	hub *ws.Hub,
	waiters *service.ResultWaiters,
) *JudgeWorker {
	return &JudgeWorker{
		rdb:            rdb,
		client:         client,
		submissionRepo: submissionRepo,
		problemRepo:    problemRepo,
		leaderboard:    leaderboard,
		hub:            hub,
		waiters:        waiters,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (w *JudgeWorker) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	logger.L.Info("starting judge workers", zap.Int("count", workers))

	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			w.loop(ctx, id)
		}(i)
	}
	for i := 0; i < workers; i++ {
		<-done
	}
	logger.L.Info("judge workers stopped")
}

func (w *JudgeWorker) loop(ctx context.Context, workerID int) {
	queueName := config.AppConfig.JudgeQueueName
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := w.rdb.BRPop(ctx, popTimeout, queueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.L.Error("queue pop failed", zap.Int("worker", workerID), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(res) != 2 {
			continue
		}

		w.process(ctx, res[1])
	}
}

func (w *JudgeWorker) process(ctx context.Context, submissionID string) {
	log := logger.L.With(zap.String("submission_id", submissionID))

	sub, err := w.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		log.Error("failed to load submission", zap.Error(err))
		return
	}
	if sub.Terminal() {
		// Duplicate delivery; the first finalization already won.
		log.Warn("submission already judged", zap.String("status", string(sub.Status)))
		return
	}

	lang, ok := model.LanguageByName(sub.Language)
	if !ok {
		msg := "unsupported language: " + sub.Language
		w.finalize(ctx, sub, judge.Outcome{
			Status: model.StatusError, Total: sub.TestCasesTotal, ErrorMessage: msg,
		})
		return
	}

	testCases, err := w.problemRepo.GetTestCasesByProblemID(ctx, sub.ProblemID)
	if err != nil {
		log.Error("failed to load test cases", zap.Error(err))
		w.waiters.Notify(sub.ID, service.JudgeResult{Submission: sub, Err: err})
		return
	}

	cases := make([]judge.Case, 0, len(testCases))
	for _, tc := range testCases {
		cases = append(cases, judge.Case{
			Source:         sub.Code,
			LanguageID:     lang.JudgeID,
			Stdin:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}

	tokens, err := w.client.SubmitBatch(ctx, cases)
	if err != nil {
		// Infrastructure failure: the submission stays pending so it can be
		// retried; it is never finalized as a judged error.
		log.Error("judge batch submit failed", zap.Error(err))
		w.waiters.Notify(sub.ID, service.JudgeResult{Submission: sub, Err: err})
		return
	}

	verdicts, err := w.client.AwaitResults(ctx, tokens)
	if err != nil {
		log.Error("judge polling failed", zap.Error(err))
		w.waiters.Notify(sub.ID, service.JudgeResult{Submission: sub, Err: err})
		return
	}

	outcome := judge.Aggregate(verdicts)
	w.finalize(ctx, sub, outcome)
}

func (w *JudgeWorker) finalize(ctx context.Context, sub *model.Submission, outcome judge.Outcome) {
	log := logger.L.With(zap.String("submission_id", sub.ID))

	var errMsg *string
	if outcome.ErrorMessage != "" {
		errMsg = &outcome.ErrorMessage
	}

	if err := w.submissionRepo.Finalize(ctx, nil, sub.ID, outcome.Status,
		outcome.Passed, outcome.Runtime, outcome.MemoryKB, errMsg); err != nil {
		log.Error("failed to finalize submission", zap.Error(err))
		w.waiters.Notify(sub.ID, service.JudgeResult{Submission: sub, Err: err})
		return
	}

	if outcome.Status == model.StatusAccepted {
		// Idempotent insert; a failure here does not undo the verdict.
		if err := w.submissionRepo.MarkProblemSolved(ctx, nil, sub.UserID, sub.ProblemID, sub.ID); err != nil {
			log.Error("failed to mark problem solved", zap.Error(err))
		}
	}

	sub.Status = outcome.Status
	sub.TestCasesPassed = outcome.Passed
	sub.Runtime = outcome.Runtime
	sub.MemoryKB = outcome.MemoryKB
	sub.ErrorMessage = errMsg

	log.Info("submission judged",
		zap.String("status", string(outcome.Status)),
		zap.Int("passed", outcome.Passed),
		zap.Int("total", outcome.Total))

	if outcome.Status == model.StatusAccepted && sub.ContestID != nil {
		w.broadcastIfFirstAccept(ctx, sub)
	}

	w.waiters.Notify(sub.ID, service.JudgeResult{Submission: sub})
}

type leaderboardEvent struct {
	Type        string             `json:"type"`
	ContestID   string             `json:"contest_id"`
	Leaderboard *model.Leaderboard `json:"leaderboard"`
}

// broadcastIfFirstAccept rebuilds and pushes the leaderboard only when this
// accept is the user's first on the problem. Re-accepts do not change the
// standings, so broadcasting them would only be noise.
func (w *JudgeWorker) broadcastIfFirstAccept(ctx context.Context, sub *model.Submission) {
	contestID := *sub.ContestID
	log := logger.L.With(zap.String("submission_id", sub.ID), zap.String("contest_id", contestID))

	count, err := w.submissionRepo.CountAccepted(ctx, contestID, sub.UserID, sub.ProblemID)
	if err != nil {
		log.Error("failed to count accepts", zap.Error(err))
		return
	}
	if count != 1 {
		return
	}

	board, err := w.leaderboard.Build(ctx, contestID)
	if err != nil {
		log.Error("failed to rebuild leaderboard", zap.Error(err))
		return
	}

	w.hub.Broadcast(contestID, leaderboardEvent{
		Type:        "leaderboard_update",
		ContestID:   contestID,
		Leaderboard: board,
	})
	log.Info("leaderboard broadcast", zap.Int("rows", len(board.Rows)))
}

// Requeue pushes a submission id back onto the queue. Exposed for operator
// tooling that retries submissions stuck pending after a judge outage.
func (w *JudgeWorker) Requeue(ctx context.Context, submissionID string) error {
	if err := w.rdb.LPush(ctx, config.AppConfig.JudgeQueueName, submissionID).Err(); err != nil {
		return common.Errorf("requeue submission %s: %w", submissionID, err)
	}
	return nil
}
