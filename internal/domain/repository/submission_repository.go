package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"code_arena/internal/common"
	"code_arena/internal/domain/model"
)

type SubmissionRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	GetByID(ctx context.Context, id string) (*model.Submission, error)

	// Finalize applies the aggregated judging outcome. It is a one-shot
	// mutation: callers guarantee a single invocation per submission id.
	Finalize(ctx context.Context, tx *sql.Tx, id string, status model.SubmissionStatus,
		passed int, runtime float64, memoryKB int, errorMessage *string) error

	// ListByUser returns the user's attempts, optionally filtered by
	// problem, ordered by creation ascending.
	ListByUser(ctx context.Context, userID string, problemID *string) ([]model.Submission, error)

	// ListByContest returns contest submissions with one of the given
	// statuses, ordered by (created_at, seq) ascending. The leaderboard
	// fold depends on this ordering.
	ListByContest(ctx context.Context, contestID string, statuses []model.SubmissionStatus) ([]model.Submission, error)

	// CountAccepted counts accepted submissions for an exact
	// (user, problem, contest) triple; the broadcast layer uses it to
	// detect the first accept.
	CountAccepted(ctx context.Context, contestID, userID, problemID string) (int, error)

	// MarkProblemSolved is an idempotent insert into the user's solved set.
	MarkProblemSolved(ctx context.Context, tx *sql.Tx, userID, problemID, submissionID string) error
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

const submissionColumns = `id, user_id, problem_id, contest_id, language, code, status,
	test_cases_passed, test_cases_total, runtime, memory_kb, error_message, seq, created_at, updated_at`

func (r *pgSubmissionRepository) Create(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	query := `INSERT INTO submissions (id, user_id, problem_id, contest_id, language, code, status, test_cases_total)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING seq, created_at`

	row := r.queryRow(ctx, tx, query, sub.ID, sub.UserID, sub.ProblemID, sub.ContestID,
		sub.Language, sub.Code, sub.Status, sub.TestCasesTotal)
	if err := row.Scan(&sub.Seq, &sub.CreatedAt); err != nil {
		return fmt.Errorf("pgSubmissionRepository.Create: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	sub := &model.Submission{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sub.ID, &sub.UserID, &sub.ProblemID, &sub.ContestID, &sub.Language, &sub.Code, &sub.Status,
		&sub.TestCasesPassed, &sub.TestCasesTotal, &sub.Runtime, &sub.MemoryKB, &sub.ErrorMessage,
		&sub.Seq, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetByID: %w", err)
	}
	return sub, nil
}

func (r *pgSubmissionRepository) Finalize(ctx context.Context, tx *sql.Tx, id string, status model.SubmissionStatus,
	passed int, runtime float64, memoryKB int, errorMessage *string) error {

	query := `UPDATE submissions
	          SET status = $1, test_cases_passed = $2, runtime = $3, memory_kb = $4,
	              error_message = $5, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $6`

	res, err := r.exec(ctx, tx, query, status, passed, runtime, memoryKB, errorMessage, id)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.Finalize: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.Finalize rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgSubmissionRepository) ListByUser(ctx context.Context, userID string, problemID *string) ([]model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE user_id = $1`
	args := []interface{}{userID}
	if problemID != nil {
		query += ` AND problem_id = $2`
		args = append(args, *problemID)
	}
	query += ` ORDER BY created_at ASC, seq ASC`

	return r.querySubmissions(ctx, query, args...)
}

func (r *pgSubmissionRepository) ListByContest(ctx context.Context, contestID string, statuses []model.SubmissionStatus) ([]model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE contest_id = $1`
	args := []interface{}{contestID}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, st)
		}
		query += ` AND status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY created_at ASC, seq ASC`

	return r.querySubmissions(ctx, query, args...)
}

func (r *pgSubmissionRepository) CountAccepted(ctx context.Context, contestID, userID, problemID string) (int, error) {
	query := `SELECT COUNT(*) FROM submissions
	          WHERE contest_id = $1 AND user_id = $2 AND problem_id = $3 AND status = $4`

	var count int
	err := r.db.QueryRowContext(ctx, query, contestID, userID, problemID, model.StatusAccepted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pgSubmissionRepository.CountAccepted: %w", err)
	}
	return count, nil
}

func (r *pgSubmissionRepository) MarkProblemSolved(ctx context.Context, tx *sql.Tx, userID, problemID, submissionID string) error {
	query := `INSERT INTO user_solved_problems (user_id, problem_id, submission_id)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (user_id, problem_id) DO NOTHING`

	if _, err := r.exec(ctx, tx, query, userID, problemID, submissionID); err != nil {
		return fmt.Errorf("pgSubmissionRepository.MarkProblemSolved: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) querySubmissions(ctx context.Context, query string, args ...interface{}) ([]model.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository query: %w", err)
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.ProblemID, &sub.ContestID, &sub.Language, &sub.Code, &sub.Status,
			&sub.TestCasesPassed, &sub.TestCasesTotal, &sub.Runtime, &sub.MemoryKB, &sub.ErrorMessage,
			&sub.Seq, &sub.CreatedAt, &sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository scan: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository rows: %w", err)
	}
	return subs, nil
}

func (r *pgSubmissionRepository) exec(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.db.ExecContext(ctx, query, args...)
}

func (r *pgSubmissionRepository) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) *sql.Row {
	if tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return r.db.QueryRowContext(ctx, query, args...)
}
