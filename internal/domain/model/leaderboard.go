package model

import "time"

type ProblemCellStatus string

const (
	CellAccepted    ProblemCellStatus = "accepted"
	CellWrong       ProblemCellStatus = "wrong"
	CellUnattempted ProblemCellStatus = "unattempted"
)

// ProblemCell is one user's standing on one contest problem. Only the first
// judged attempt per problem contributes; later resubmissions do not change
// the cell.
type ProblemCell struct {
	Status            ProblemCellStatus `json:"status"`
	AcceptedAtDisplay string            `json:"accepted_at,omitempty"`
	TimeTakenDisplay  string            `json:"time_taken,omitempty"`
	Language          string            `json:"language,omitempty"`
}

// LeaderboardRow is derived, never persisted: it is recomputed from the
// contest's submission history on demand.
type LeaderboardRow struct {
	Rank              int                    `json:"rank"`
	UserID            string                 `json:"user_id"`
	Name              string                 `json:"name"`
	Score             int                    `json:"score"`
	FinishTime        *time.Time             `json:"-"`
	FinishTimeDisplay string                 `json:"finish_time"`
	TimeTakenDisplay  string                 `json:"time_taken"`
	PerProblem        map[string]ProblemCell `json:"per_problem"`
}

// Leaderboard pairs the ranked rows with the contest's problem column order.
type Leaderboard struct {
	ContestID  string           `json:"contest_id"`
	ProblemIDs []string         `json:"problem_ids"`
	Rows       []LeaderboardRow `json:"rows"`
}
