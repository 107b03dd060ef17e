package inmemdb

import (
	"context"
	"sort"

	"github.com/wakora/hatua/core/founder"
)

type founderRepository struct {
	db *founderTable
}

func NewFounderRepository(db *DB) founder.Repository {
	return &founderRepository{db: db.founders}
}

func (repo *founderRepository) CreateCycleState(ctx context.Context, state founder.CycleState) (founder.CycleState, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.states[state.FounderID] = &state
	return state, nil
}

func (repo *founderRepository) GetCycleState(ctx context.Context, founderID string) (founder.CycleState, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if state, ok := repo.db.states[founderID]; ok {
		return *state, nil
	}
	return founder.CycleState{}, founder.ErrNotFound
}

func (repo *founderRepository) UpdateCycleState(ctx context.Context, state founder.CycleState) (founder.CycleState, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.states[state.FounderID]; !ok {
		return founder.CycleState{}, founder.ErrNotFound
	}
	repo.db.states[state.FounderID] = &state
	return state, nil
}

func (repo *founderRepository) QueryActiveCycleStates(ctx context.Context) ([]founder.CycleState, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	states := make([]founder.CycleState, 0, len(repo.db.states))
	for _, state := range repo.db.states {
		if state.ArchivedAt.Valid {
			continue
		}
		states = append(states, *state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].FounderID < states[j].FounderID })
	return states, nil
}

type founderDirectory struct {
	db *founderTable
}

func NewFounderDirectory(db *DB) founder.Directory {
	return &founderDirectory{db: db.founders}
}

func (dir *founderDirectory) GetFounder(ctx context.Context, id string) (founder.Founder, error) {
	dir.db.mutex.RLock()
	defer dir.db.mutex.RUnlock()

	if f, ok := dir.db.directory[id]; ok {
		return *f, nil
	}
	return founder.Founder{}, founder.ErrNotFound
}
