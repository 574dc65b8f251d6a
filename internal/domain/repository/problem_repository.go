package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"code_arena/internal/common"
	"code_arena/internal/domain/model"
)

// ProblemRepository is the read-only slice of the problem catalog the
// judging pipeline needs: existence checks and hidden test cases. Problem
// authoring lives in a separate service.
type ProblemRepository interface {
	GetByID(ctx context.Context, id string) (*model.Problem, error)
	GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error)
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

func (r *pgProblemRepository) GetByID(ctx context.Context, id string) (*model.Problem, error) {
	query := `SELECT id, title, slug, created_at, updated_at FROM problems WHERE id = $1`

	p := &model.Problem{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Title, &p.Slug, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.GetByID: %w", err)
	}
	return p, nil
}

func (r *pgProblemRepository) GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error) {
	query := `SELECT id, problem_id, input, expected_output, sort_order, created_at
	          FROM test_cases WHERE problem_id = $1 ORDER BY sort_order ASC`

	rows, err := r.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID: %w", err)
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput, &tc.SortOrder, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID scan: %w", err)
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID rows: %w", err)
	}
	return cases, nil
}
