package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"code_arena/internal/domain/model"
	"code_arena/internal/domain/repository"
)

// NoTimeDisplay is shown for users without an accepted submission.
const NoTimeDisplay = "--:--"

type LeaderboardService struct {
	contestRepo    repository.ContestRepository
	submissionRepo repository.SubmissionRepository
	userRepo       repository.UserRepository
}

func NewLeaderboardService(
	contestRepo repository.ContestRepository,
	submissionRepo repository.SubmissionRepository,
	userRepo repository.UserRepository,
) *LeaderboardService {
	return &LeaderboardService{
		contestRepo:    contestRepo,
		submissionRepo: submissionRepo,
		userRepo:       userRepo,
	}
}

// Build recomputes the contest leaderboard from scratch. The result is a
// pure function of the contest and its judged submission history: there is
// no incremental state between calls, so concurrent builds never interfere.
func (s *LeaderboardService) Build(ctx context.Context, contestID string) (*model.Leaderboard, error) {
	contest, err := s.contestRepo.GetByID(ctx, contestID)
	if err != nil {
		return nil, err // propagates ErrNotFound
	}

	subs, err := s.submissionRepo.ListByContest(ctx, contestID,
		[]model.SubmissionStatus{model.StatusAccepted, model.StatusWrongAnswer})
	if err != nil {
		return nil, fmt.Errorf("load contest submissions: %w", err)
	}

	regs, err := s.contestRepo.ListRegistrations(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}

	userIDs := participantIDs(regs, subs)
	names, err := s.userRepo.UsernamesByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve usernames: %w", err)
	}

	rows := BuildRows(contest, subs, userIDs, names)
	return &model.Leaderboard{
		ContestID:  contest.ID,
		ProblemIDs: contest.ProblemIDs,
		Rows:       rows,
	}, nil
}

// participantIDs returns registrants in registration order followed by any
// submitters not registered, in first-submission order. The deterministic
// base order makes the final ranking reproducible even for exact ties.
func participantIDs(regs []model.Registration, subs []model.Submission) []string {
	seen := make(map[string]struct{}, len(regs))
	ids := make([]string, 0, len(regs))
	for _, reg := range regs {
		if _, ok := seen[reg.UserID]; ok {
			continue
		}
		seen[reg.UserID] = struct{}{}
		ids = append(ids, reg.UserID)
	}
	for _, sub := range subs {
		if _, ok := seen[sub.UserID]; ok {
			continue
		}
		seen[sub.UserID] = struct{}{}
		ids = append(ids, sub.UserID)
	}
	return ids
}

type standing struct {
	score          int
	finishTime     *time.Time
	lastAcceptedAt time.Time
	perProblem     map[string]model.ProblemCell
}

// BuildRows folds the ordered submission log into ranked rows.
//
// Contest semantics: only the first judged attempt per (user, problem)
// counts; a later accept cannot repair an earlier wrong answer. Time taken
// per accepted problem is measured from the user's previous scored accept
// (contest start for the first one), so penalty time accumulates instead of
// resetting. Ranks are strictly sequential; exact (score, finishTime) ties
// keep their base order and still receive distinct ranks.
func BuildRows(contest *model.Contest, subs []model.Submission, userIDs []string, names map[string]string) []model.LeaderboardRow {
	standings := make(map[string]*standing, len(userIDs))
	for _, id := range userIDs {
		standings[id] = &standing{
			lastAcceptedAt: contest.StartTime,
			perProblem:     make(map[string]model.ProblemCell, len(contest.ProblemIDs)),
		}
	}

	for _, sub := range subs {
		st, ok := standings[sub.UserID]
		if !ok {
			continue
		}
		if _, attempted := st.perProblem[sub.ProblemID]; attempted {
			continue // first verdict locks in
		}

		cell := model.ProblemCell{
			Status:   model.CellWrong,
			Language: sub.Language,
		}
		if sub.Status == model.StatusAccepted {
			timeTaken := sub.CreatedAt.Sub(st.lastAcceptedAt)
			cell.Status = model.CellAccepted
			cell.AcceptedAtDisplay = formatClock(sub.CreatedAt)
			cell.TimeTakenDisplay = formatElapsed(timeTaken)

			st.score++
			finish := sub.CreatedAt
			st.finishTime = &finish
			st.lastAcceptedAt = sub.CreatedAt
		}
		st.perProblem[sub.ProblemID] = cell
	}

	rows := make([]model.LeaderboardRow, 0, len(userIDs))
	for _, userID := range userIDs {
		st := standings[userID]

		for _, problemID := range contest.ProblemIDs {
			if _, ok := st.perProblem[problemID]; !ok {
				st.perProblem[problemID] = model.ProblemCell{Status: model.CellUnattempted}
			}
		}

		row := model.LeaderboardRow{
			UserID:            userID,
			Name:              names[userID],
			Score:             st.score,
			FinishTime:        st.finishTime,
			FinishTimeDisplay: NoTimeDisplay,
			TimeTakenDisplay:  NoTimeDisplay,
			PerProblem:        st.perProblem,
		}
		if st.finishTime != nil {
			row.FinishTimeDisplay = formatClock(*st.finishTime)
			if st.finishTime.After(contest.StartTime) {
				row.TimeTakenDisplay = formatElapsed(st.finishTime.Sub(contest.StartTime))
			}
		}
		rows = append(rows, row)
	}

	// Compare finish times as timestamps, never as display strings.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		fi, fj := rows[i].FinishTime, rows[j].FinishTime
		switch {
		case fi == nil && fj == nil:
			return false
		case fi == nil:
			return false
		case fj == nil:
			return true
		default:
			return fi.Before(*fj)
		}
	})

	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

func formatClock(t time.Time) string {
	return t.UTC().Format("15:04:05")
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
