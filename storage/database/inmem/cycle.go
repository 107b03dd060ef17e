package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/wakora/hatua/core/cycle"
)

type cycleRepository struct {
	db *cycleTable
}

// NewCycleRepository returns the concrete repository; it satisfies both
// cycle.Repository and stage.ReportSource.
func NewCycleRepository(db *DB) *cycleRepository {
	return &cycleRepository{db: db.cycles}
}

func (repo *cycleRepository) CreateInstance(ctx context.Context, inst cycle.Instance) (cycle.Instance, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	inst.ID = uuid.New().String()
	repo.db.instances[instKey{inst.FounderID, inst.WeekNumber}] = &inst
	return inst, nil
}

func (repo *cycleRepository) GetInstance(ctx context.Context, founderID string, weekNumber int) (cycle.Instance, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if inst, ok := repo.db.instances[instKey{founderID, weekNumber}]; ok {
		return *inst, nil
	}
	return cycle.Instance{}, cycle.ErrNotFound
}

func (repo *cycleRepository) UpdateInstance(ctx context.Context, inst cycle.Instance, fromPhase cycle.Phase) (cycle.Instance, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := instKey{inst.FounderID, inst.WeekNumber}
	existing, ok := repo.db.instances[key]
	if !ok {
		return cycle.Instance{}, cycle.ErrNotFound
	}
	if existing.Phase != fromPhase {
		return cycle.Instance{}, cycle.ErrStaleInstance
	}
	repo.db.instances[key] = &inst
	return inst, nil
}

func (repo *cycleRepository) CreateCommit(ctx context.Context, commit cycle.Commit) (cycle.Commit, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	commit.ID = uuid.New().String()
	repo.db.commits[instKey{commit.FounderID, commit.WeekNumber}] = &commit
	return commit, nil
}

func (repo *cycleRepository) GetCommit(ctx context.Context, founderID string, weekNumber int) (cycle.Commit, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if commit, ok := repo.db.commits[instKey{founderID, weekNumber}]; ok {
		return *commit, nil
	}
	return cycle.Commit{}, cycle.ErrCommitNotFound
}

func (repo *cycleRepository) UpsertReport(ctx context.Context, report cycle.Report) (cycle.Report, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := instKey{report.FounderID, report.WeekNumber}
	if existing, ok := repo.db.reports[key]; ok {
		report.ID = existing.ID
	} else {
		report.ID = uuid.New().String()
	}
	repo.db.reports[key] = &report
	return report, nil
}

func (repo *cycleRepository) GetReport(ctx context.Context, founderID string, weekNumber int) (cycle.Report, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if report, ok := repo.db.reports[instKey{founderID, weekNumber}]; ok {
		return *report, nil
	}
	return cycle.Report{}, cycle.ErrReportNotFound
}

func (repo *cycleRepository) CreateAdjustment(ctx context.Context, adj cycle.Adjustment) (cycle.Adjustment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	adj.ID = uuid.New().String()
	repo.db.adjustments[instKey{adj.FounderID, adj.WeekNumber}] = &adj
	return adj, nil
}

func (repo *cycleRepository) acceptedReports(founderID string) []cycle.Report {
	reports := make([]cycle.Report, 0)
	for key, report := range repo.db.reports {
		if key.founderID == founderID && report.Status == cycle.ReportAccepted {
			reports = append(reports, *report)
		}
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].WeekNumber > reports[j].WeekNumber })
	return reports
}

func (repo *cycleRepository) ValidReportCount(ctx context.Context, founderID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.acceptedReports(founderID)), nil
}

func (repo *cycleRepository) RecentRevenues(ctx context.Context, founderID string, n int) ([]float64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reports := repo.acceptedReports(founderID)
	if len(reports) > n {
		reports = reports[:n]
	}
	revenues := make([]float64, 0, len(reports))
	for _, report := range reports {
		revenues = append(revenues, report.RevenueGenerated)
	}
	return revenues, nil
}
