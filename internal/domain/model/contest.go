package model

import "time"

// Contest owns an ordered list of problem ids. The order is significant: it
// defines leaderboard column order and stays stable regardless of how the
// problems themselves are stored.
type Contest struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	ProblemIDs  []string  `json:"problem_ids"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CreatedByID string    `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Registration struct {
	ContestID    string    `json:"contest_id"`
	UserID       string    `json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
}
