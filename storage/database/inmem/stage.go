package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/wakora/hatua/core/stage"
)

type stageRepository struct {
	db *stageTable
}

func NewStageRepository(db *DB) stage.Repository {
	return &stageRepository{db: db.stages}
}

func (repo *stageRepository) CreateProgress(ctx context.Context, p stage.Progress) (stage.Progress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p.ID = uuid.New().String()
	repo.db.table[stageKey{p.FounderID, p.StageNumber}] = &p
	return p, nil
}

func (repo *stageRepository) GetProgress(ctx context.Context, founderID string, stageNumber int) (stage.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.table[stageKey{founderID, stageNumber}]; ok {
		return *p, nil
	}
	return stage.Progress{}, stage.ErrNotFound
}

func (repo *stageRepository) UpdateProgress(ctx context.Context, p stage.Progress) (stage.Progress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := stageKey{p.FounderID, p.StageNumber}
	if _, ok := repo.db.table[key]; !ok {
		return stage.Progress{}, stage.ErrNotFound
	}
	repo.db.table[key] = &p
	return p, nil
}

func (repo *stageRepository) QueryProgressByFounder(ctx context.Context, founderID string) ([]stage.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]stage.Progress, 0)
	for key, p := range repo.db.table {
		if key.founderID == founderID {
			rows = append(rows, *p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StageNumber < rows[j].StageNumber })
	return rows, nil
}
