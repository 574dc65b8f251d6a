package model

import "time"

type SubmissionStatus string

const (
	StatusPending     SubmissionStatus = "pending"
	StatusAccepted    SubmissionStatus = "accepted"
	StatusWrongAnswer SubmissionStatus = "wrong_answer"
	StatusError       SubmissionStatus = "error"
)

// Submission is one judged attempt. (user, problem, contest) is not unique:
// every attempt is a new record. Status starts pending and transitions
// exactly once to a terminal value when the judging pipeline finalizes it.
type Submission struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	ProblemID       string           `json:"problem_id"`
	ContestID       *string          `json:"contest_id,omitempty"`
	Language        string           `json:"language"`
	Code            string           `json:"code"`
	Status          SubmissionStatus `json:"status"`
	TestCasesPassed int              `json:"test_cases_passed"`
	TestCasesTotal  int              `json:"test_cases_total"`
	Runtime         float64          `json:"runtime"`
	MemoryKB        int              `json:"memory_kb"`
	ErrorMessage    *string          `json:"error_message,omitempty"`

	// Seq is a monotonic insertion sequence assigned by storage. Leaderboard
	// ordering breaks created_at ties on it so that concurrent submissions
	// at the same instant still fold deterministically.
	Seq       int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the submission has been judged.
func (s *Submission) Terminal() bool {
	return s.Status != StatusPending
}
