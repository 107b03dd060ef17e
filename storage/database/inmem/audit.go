package inmemdb

import (
	"context"

	"github.com/wakora/hatua/core/audit"
)

type auditRepository struct {
	db *auditTable
}

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db.audits}
}

func (repo *auditRepository) AppendEntry(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.seq++
	entry.Seq = repo.db.seq
	repo.db.entries = append(repo.db.entries, entry)
	return entry, nil
}

func (repo *auditRepository) QueryEntriesByFounder(ctx context.Context, founderID string) ([]audit.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]audit.Entry, 0)
	for _, entry := range repo.db.entries {
		if entry.FounderID == founderID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
