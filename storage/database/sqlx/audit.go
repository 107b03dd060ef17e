package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/wakora/hatua/core/audit"
)

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) audit.Repository {
	return &auditRepository{db: db}
}

// AppendEntry is insert-only; the sequence comes from the database so entries
// are totally ordered even across processes.
func (repo *auditRepository) AppendEntry(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	const q = `
INSERT INTO audit_log (founder_id, actor_id, week_number, action, decision, reason, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING seq`
	err := repo.db.GetContext(ctx, &entry.Seq, q,
		entry.FounderID, entry.ActorID, entry.WeekNumber, entry.Action, entry.Decision, entry.Reason, entry.At)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "appending audit entry")
	}
	return entry, nil
}

func (repo *auditRepository) QueryEntriesByFounder(ctx context.Context, founderID string) ([]audit.Entry, error) {
	const q = `SELECT * FROM audit_log WHERE founder_id = $1 ORDER BY seq`
	entries := make([]audit.Entry, 0)
	if err := repo.db.SelectContext(ctx, &entries, q, founderID); err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	return entries, nil
}
