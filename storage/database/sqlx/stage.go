package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/wakora/hatua/core/stage"
)

type stageRepository struct {
	db *sqlx.DB
}

func NewStageRepository(db *sqlx.DB) stage.Repository {
	return &stageRepository{db: db}
}

func (repo *stageRepository) CreateProgress(ctx context.Context, p stage.Progress) (stage.Progress, error) {
	p.ID = uuid.New().String()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.UpdatedAt
	}
	const q = `
INSERT INTO stage_progress
    (id, founder_id, stage_number, status, mentor_approved, rsd_completion, unlocked_at, completed_at, created_at, updated_at)
VALUES
    (:id, :founder_id, :stage_number, :status, :mentor_approved, :rsd_completion, :unlocked_at, :completed_at, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, p); err != nil {
		return stage.Progress{}, errors.Wrap(err, "inserting stage progress")
	}
	return p, nil
}

func (repo *stageRepository) GetProgress(ctx context.Context, founderID string, stageNumber int) (stage.Progress, error) {
	const q = `SELECT * FROM stage_progress WHERE founder_id = $1 AND stage_number = $2`
	var p stage.Progress
	if err := repo.db.GetContext(ctx, &p, q, founderID, stageNumber); err != nil {
		if err == sql.ErrNoRows {
			return stage.Progress{}, stage.ErrNotFound
		}
		return stage.Progress{}, errors.Wrap(err, "getting stage progress")
	}
	return p, nil
}

func (repo *stageRepository) UpdateProgress(ctx context.Context, p stage.Progress) (stage.Progress, error) {
	const q = `
UPDATE stage_progress SET
    status          = :status,
    mentor_approved = :mentor_approved,
    rsd_completion  = :rsd_completion,
    unlocked_at     = :unlocked_at,
    completed_at    = :completed_at,
    updated_at      = :updated_at
WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, p)
	if err != nil {
		return stage.Progress{}, errors.Wrap(err, "updating stage progress")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return stage.Progress{}, stage.ErrNotFound
	}
	return p, nil
}

func (repo *stageRepository) QueryProgressByFounder(ctx context.Context, founderID string) ([]stage.Progress, error) {
	const q = `SELECT * FROM stage_progress WHERE founder_id = $1 ORDER BY stage_number`
	rows := make([]stage.Progress, 0)
	if err := repo.db.SelectContext(ctx, &rows, q, founderID); err != nil {
		return nil, errors.Wrap(err, "querying stage progress")
	}
	return rows, nil
}
