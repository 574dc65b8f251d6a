package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"code_arena/internal/common"
	"code_arena/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type ContestRepository interface {
	Create(ctx context.Context, tx *sql.Tx, contest *model.Contest) error
	GetByID(ctx context.Context, id string) (*model.Contest, error)
	List(ctx context.Context, limit, offset int) ([]model.Contest, int, error)
	Delete(ctx context.Context, id string) error

	// Register is an idempotent append: registering twice is a no-op, not
	// an error. Deregister is the idempotent inverse.
	Register(ctx context.Context, contestID, userID string) error
	Deregister(ctx context.Context, contestID, userID string) error
	IsRegistered(ctx context.Context, contestID, userID string) (bool, error)
	ListRegistrations(ctx context.Context, contestID string) ([]model.Registration, error)
}

type pgContestRepository struct {
	db *sql.DB
}

func NewPgContestRepository(db *sql.DB) ContestRepository {
	return &pgContestRepository{db: db}
}

func (r *pgContestRepository) Create(ctx context.Context, tx *sql.Tx, c *model.Contest) error {
	query := `INSERT INTO contests (id, name, slug, start_time, end_time, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, c.ID, c.Name, c.Slug, c.StartTime, c.EndTime, c.CreatedByID)
	} else {
		_, err = r.db.ExecContext(ctx, query, c.ID, c.Name, c.Slug, c.StartTime, c.EndTime, c.CreatedByID)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // slug collision
			return fmt.Errorf("contest with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgContestRepository.Create: %w", err)
	}

	// Problem order is significant: position defines leaderboard column
	// order and survives any later reordering in the problems table.
	for i, problemID := range c.ProblemIDs {
		insert := `INSERT INTO contest_problems (contest_id, problem_id, position) VALUES ($1, $2, $3)`
		if tx != nil {
			_, err = tx.ExecContext(ctx, insert, c.ID, problemID, i+1)
		} else {
			_, err = r.db.ExecContext(ctx, insert, c.ID, problemID, i+1)
		}
		if err != nil {
			return fmt.Errorf("pgContestRepository.Create problem %s: %w", problemID, err)
		}
	}
	return nil
}

func (r *pgContestRepository) GetByID(ctx context.Context, id string) (*model.Contest, error) {
	query := `SELECT id, name, slug, start_time, end_time, created_by, created_at, updated_at
	          FROM contests WHERE id = $1`

	c := &model.Contest{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Slug, &c.StartTime, &c.EndTime, &c.CreatedByID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgContestRepository.GetByID: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT problem_id FROM contest_problems WHERE contest_id = $1 ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.GetByID problems: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var problemID string
		if err := rows.Scan(&problemID); err != nil {
			return nil, fmt.Errorf("pgContestRepository.GetByID scan problem: %w", err)
		}
		c.ProblemIDs = append(c.ProblemIDs, problemID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.GetByID problem rows: %w", err)
	}
	return c, nil
}

func (r *pgContestRepository) List(ctx context.Context, limit, offset int) ([]model.Contest, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contests`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgContestRepository.List count: %w", err)
	}

	query := `SELECT id, name, slug, start_time, end_time, created_by, created_at, updated_at
	          FROM contests ORDER BY start_time DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgContestRepository.List: %w", err)
	}
	defer rows.Close()

	contests := []model.Contest{}
	for rows.Next() {
		var c model.Contest
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.StartTime, &c.EndTime, &c.CreatedByID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgContestRepository.List scan: %w", err)
		}
		contests = append(contests, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgContestRepository.List rows: %w", err)
	}
	return contests, total, nil
}

func (r *pgContestRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgContestRepository.Delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgContestRepository.Delete rows affected: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgContestRepository) Register(ctx context.Context, contestID, userID string) error {
	registered, err := r.IsRegistered(ctx, contestID, userID)
	if err != nil {
		return err
	}
	if registered {
		return nil // double-register is a no-op
	}

	query := `INSERT INTO contest_registrations (contest_id, user_id) VALUES ($1, $2)
	          ON CONFLICT (contest_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, contestID, userID); err != nil {
		return fmt.Errorf("pgContestRepository.Register: %w", err)
	}
	return nil
}

func (r *pgContestRepository) Deregister(ctx context.Context, contestID, userID string) error {
	query := `DELETE FROM contest_registrations WHERE contest_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, contestID, userID); err != nil {
		return fmt.Errorf("pgContestRepository.Deregister: %w", err)
	}
	return nil
}

func (r *pgContestRepository) IsRegistered(ctx context.Context, contestID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM contest_registrations WHERE contest_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, contestID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("pgContestRepository.IsRegistered: %w", err)
	}
	return exists, nil
}

func (r *pgContestRepository) ListRegistrations(ctx context.Context, contestID string) ([]model.Registration, error) {
	query := `SELECT contest_id, user_id, registered_at FROM contest_registrations
	          WHERE contest_id = $1 ORDER BY registered_at ASC`
	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListRegistrations: %w", err)
	}
	defer rows.Close()

	regs := []model.Registration{}
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(&reg.ContestID, &reg.UserID, &reg.RegisteredAt); err != nil {
			return nil, fmt.Errorf("pgContestRepository.ListRegistrations scan: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListRegistrations rows: %w", err)
	}
	return regs, nil
}
