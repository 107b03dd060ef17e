package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/wakora/hatua/core/cycle"
)

type cycleRepository struct {
	db *sqlx.DB
}

// NewCycleRepository returns the concrete repository; it satisfies both
// cycle.Repository and stage.ReportSource.
func NewCycleRepository(db *sqlx.DB) *cycleRepository {
	return &cycleRepository{db: db}
}

func (repo *cycleRepository) CreateInstance(ctx context.Context, inst cycle.Instance) (cycle.Instance, error) {
	inst.ID = uuid.New().String()
	const q = `
INSERT INTO weekly_cycle_instance
    (id, founder_id, week_number, phase, week_start, commit_deadline, report_deadline, adjust_deadline,
     commit_submitted_at, report_submitted_at, adjust_submitted_at, created_at, updated_at)
VALUES
    (:id, :founder_id, :week_number, :phase, :week_start, :commit_deadline, :report_deadline, :adjust_deadline,
     :commit_submitted_at, :report_submitted_at, :adjust_submitted_at, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, inst); err != nil {
		return cycle.Instance{}, errors.Wrap(err, "inserting instance")
	}
	return inst, nil
}

func (repo *cycleRepository) GetInstance(ctx context.Context, founderID string, weekNumber int) (cycle.Instance, error) {
	const q = `SELECT * FROM weekly_cycle_instance WHERE founder_id = $1 AND week_number = $2`
	var inst cycle.Instance
	if err := repo.db.GetContext(ctx, &inst, q, founderID, weekNumber); err != nil {
		if err == sql.ErrNoRows {
			return cycle.Instance{}, cycle.ErrNotFound
		}
		return cycle.Instance{}, errors.Wrap(err, "getting instance")
	}
	return inst, nil
}

// instanceUpdateRow adds the expected prior phase to the bound parameters.
type instanceUpdateRow struct {
	cycle.Instance
	FromPhase cycle.Phase `db:"from_phase"`
}

// UpdateInstance is a compare-and-swap on the phase column. The API server
// and the scheduler write to the same row from separate processes; the guard
// makes the database the arbiter of which writer moved the phase.
func (repo *cycleRepository) UpdateInstance(ctx context.Context, inst cycle.Instance, fromPhase cycle.Phase) (cycle.Instance, error) {
	const q = `
UPDATE weekly_cycle_instance SET
    phase               = :phase,
    commit_submitted_at = :commit_submitted_at,
    report_submitted_at = :report_submitted_at,
    adjust_submitted_at = :adjust_submitted_at,
    updated_at          = :updated_at
WHERE id = :id AND phase = :from_phase`
	res, err := repo.db.NamedExecContext(ctx, q, instanceUpdateRow{Instance: inst, FromPhase: fromPhase})
	if err != nil {
		return cycle.Instance{}, errors.Wrap(err, "updating instance")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, gerr := repo.GetInstance(ctx, inst.FounderID, inst.WeekNumber); gerr == cycle.ErrNotFound {
			return cycle.Instance{}, cycle.ErrNotFound
		}
		return cycle.Instance{}, cycle.ErrStaleInstance
	}
	return inst, nil
}

func (repo *cycleRepository) CreateCommit(ctx context.Context, commit cycle.Commit) (cycle.Commit, error) {
	commit.ID = uuid.New().String()
	const q = `
INSERT INTO commits
    (id, founder_id, week_number, goal, target_revenue, planned_hours, deadline, submitted_at, is_late)
VALUES
    (:id, :founder_id, :week_number, :goal, :target_revenue, :planned_hours, :deadline, :submitted_at, :is_late)`
	if _, err := repo.db.NamedExecContext(ctx, q, commit); err != nil {
		return cycle.Commit{}, errors.Wrap(err, "inserting commit")
	}
	return commit, nil
}

func (repo *cycleRepository) GetCommit(ctx context.Context, founderID string, weekNumber int) (cycle.Commit, error) {
	const q = `SELECT * FROM commits WHERE founder_id = $1 AND week_number = $2`
	var commit cycle.Commit
	if err := repo.db.GetContext(ctx, &commit, q, founderID, weekNumber); err != nil {
		if err == sql.ErrNoRows {
			return cycle.Commit{}, cycle.ErrCommitNotFound
		}
		return cycle.Commit{}, errors.Wrap(err, "getting commit")
	}
	return commit, nil
}

// reportRow carries the evidence_urls JSONB column alongside the model.
type reportRow struct {
	cycle.Report
	EvidenceJSON []byte `db:"evidence_urls"`
}

func (repo *cycleRepository) UpsertReport(ctx context.Context, report cycle.Report) (cycle.Report, error) {
	evidence, err := json.Marshal(report.EvidenceURLs)
	if err != nil {
		return cycle.Report{}, errors.Wrap(err, "encoding evidence urls")
	}

	report.ID = uuid.New().String()
	const q = `
INSERT INTO reports
    (id, founder_id, week_number, revenue_generated, hours_spent, evidence_urls, status,
     dollar_per_hour, win_rate, deadline, submitted_at, is_late)
VALUES
    (:id, :founder_id, :week_number, :revenue_generated, :hours_spent, :evidence_urls, :status,
     :dollar_per_hour, :win_rate, :deadline, :submitted_at, :is_late)
ON CONFLICT (founder_id, week_number) DO UPDATE SET
    revenue_generated = EXCLUDED.revenue_generated,
    hours_spent       = EXCLUDED.hours_spent,
    evidence_urls     = EXCLUDED.evidence_urls,
    status            = EXCLUDED.status,
    dollar_per_hour   = EXCLUDED.dollar_per_hour,
    win_rate          = EXCLUDED.win_rate,
    submitted_at      = EXCLUDED.submitted_at,
    is_late           = EXCLUDED.is_late`
	row := reportRow{Report: report, EvidenceJSON: evidence}
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		return cycle.Report{}, errors.Wrap(err, "upserting report")
	}
	return report, nil
}

func (repo *cycleRepository) GetReport(ctx context.Context, founderID string, weekNumber int) (cycle.Report, error) {
	const q = `SELECT * FROM reports WHERE founder_id = $1 AND week_number = $2`
	var row reportRow
	if err := repo.db.GetContext(ctx, &row, q, founderID, weekNumber); err != nil {
		if err == sql.ErrNoRows {
			return cycle.Report{}, cycle.ErrReportNotFound
		}
		return cycle.Report{}, errors.Wrap(err, "getting report")
	}
	report := row.Report
	if len(row.EvidenceJSON) > 0 {
		if err := json.Unmarshal(row.EvidenceJSON, &report.EvidenceURLs); err != nil {
			return cycle.Report{}, errors.Wrap(err, "decoding evidence urls")
		}
	}
	return report, nil
}

func (repo *cycleRepository) CreateAdjustment(ctx context.Context, adj cycle.Adjustment) (cycle.Adjustment, error) {
	adj.ID = uuid.New().String()
	const q = `
INSERT INTO adjustments
    (id, founder_id, week_number, keep_doing, stop_doing, change_next, deadline, submitted_at, is_late)
VALUES
    (:id, :founder_id, :week_number, :keep_doing, :stop_doing, :change_next, :deadline, :submitted_at, :is_late)`
	if _, err := repo.db.NamedExecContext(ctx, q, adj); err != nil {
		return cycle.Adjustment{}, errors.Wrap(err, "inserting adjustment")
	}
	return adj, nil
}

// ValidReportCount and RecentRevenues feed the stage unlock predicates.

func (repo *cycleRepository) ValidReportCount(ctx context.Context, founderID string) (int, error) {
	const q = `SELECT COUNT(*) FROM reports WHERE founder_id = $1 AND status = $2`
	var n int
	if err := repo.db.GetContext(ctx, &n, q, founderID, cycle.ReportAccepted); err != nil {
		return 0, errors.Wrap(err, "counting valid reports")
	}
	return n, nil
}

func (repo *cycleRepository) RecentRevenues(ctx context.Context, founderID string, n int) ([]float64, error) {
	const q = `
SELECT revenue_generated FROM reports
WHERE founder_id = $1 AND status = $2
ORDER BY week_number DESC
LIMIT $3`
	revenues := make([]float64, 0, n)
	if err := repo.db.SelectContext(ctx, &revenues, q, founderID, cycle.ReportAccepted, n); err != nil {
		return nil, errors.Wrap(err, "querying recent revenues")
	}
	return revenues, nil
}
