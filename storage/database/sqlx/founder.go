package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/wakora/hatua/core/founder"
)

type founderRepository struct {
	db *sqlx.DB
}

func NewFounderRepository(db *sqlx.DB) founder.Repository {
	return &founderRepository{db: db}
}

func (repo *founderRepository) CreateCycleState(ctx context.Context, state founder.CycleState) (founder.CycleState, error) {
	const q = `
INSERT INTO founder_cycle_state
    (founder_id, current_week, current_stage, consecutive_misses, is_locked, lock_reason, created_at, updated_at, archived_at)
VALUES
    (:founder_id, :current_week, :current_stage, :consecutive_misses, :is_locked, :lock_reason, :created_at, :updated_at, :archived_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, state); err != nil {
		return founder.CycleState{}, errors.Wrap(err, "inserting cycle state")
	}
	return state, nil
}

func (repo *founderRepository) GetCycleState(ctx context.Context, founderID string) (founder.CycleState, error) {
	const q = `SELECT * FROM founder_cycle_state WHERE founder_id = $1`
	var state founder.CycleState
	if err := repo.db.GetContext(ctx, &state, q, founderID); err != nil {
		if err == sql.ErrNoRows {
			return founder.CycleState{}, founder.ErrNotFound
		}
		return founder.CycleState{}, errors.Wrap(err, "getting cycle state")
	}
	return state, nil
}

func (repo *founderRepository) UpdateCycleState(ctx context.Context, state founder.CycleState) (founder.CycleState, error) {
	const q = `
UPDATE founder_cycle_state SET
    current_week       = :current_week,
    current_stage      = :current_stage,
    consecutive_misses = :consecutive_misses,
    is_locked          = :is_locked,
    lock_reason        = :lock_reason,
    updated_at         = :updated_at,
    archived_at        = :archived_at
WHERE founder_id = :founder_id`
	res, err := repo.db.NamedExecContext(ctx, q, state)
	if err != nil {
		return founder.CycleState{}, errors.Wrap(err, "updating cycle state")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return founder.CycleState{}, founder.ErrNotFound
	}
	return state, nil
}

func (repo *founderRepository) QueryActiveCycleStates(ctx context.Context) ([]founder.CycleState, error) {
	const q = `SELECT * FROM founder_cycle_state WHERE archived_at IS NULL ORDER BY founder_id`
	states := make([]founder.CycleState, 0)
	if err := repo.db.SelectContext(ctx, &states, q); err != nil {
		return nil, errors.Wrap(err, "querying active cycle states")
	}
	return states, nil
}

type founderDirectory struct {
	db *sqlx.DB
}

// NewFounderDirectory reads founder identity rows maintained by the
// surrounding application.
func NewFounderDirectory(db *sqlx.DB) founder.Directory {
	return &founderDirectory{db: db}
}

func (dir *founderDirectory) GetFounder(ctx context.Context, id string) (founder.Founder, error) {
	const q = `SELECT * FROM founders WHERE id = $1`
	var f founder.Founder
	if err := dir.db.GetContext(ctx, &f, q, id); err != nil {
		if err == sql.ErrNoRows {
			return founder.Founder{}, founder.ErrNotFound
		}
		return founder.Founder{}, errors.Wrap(err, "getting founder")
	}
	return f, nil
}
