// Package inmemdb is the map-backed storage used by tests and local
// development. Behavior mirrors the sqlx repositories, including sentinel
// errors and key uniqueness.
package inmemdb

import (
	"sync"

	"github.com/wakora/hatua/core/audit"
	"github.com/wakora/hatua/core/cycle"
	"github.com/wakora/hatua/core/founder"
	"github.com/wakora/hatua/core/notification"
	"github.com/wakora/hatua/core/stage"
)

type (
	DB struct {
		founders      *founderTable
		cycles        *cycleTable
		stages        *stageTable
		notifications *notificationTable
		audits        *auditTable
	}

	founderTable struct {
		directory map[string]*founder.Founder
		states    map[string]*founder.CycleState
		mutex     sync.RWMutex
	}

	instKey struct {
		founderID  string
		weekNumber int
	}

	cycleTable struct {
		instances   map[instKey]*cycle.Instance
		commits     map[instKey]*cycle.Commit
		reports     map[instKey]*cycle.Report
		adjustments map[instKey]*cycle.Adjustment
		mutex       sync.RWMutex
	}

	stageKey struct {
		founderID   string
		stageNumber int
	}

	stageTable struct {
		table map[stageKey]*stage.Progress
		mutex sync.RWMutex
	}

	notificationTable struct {
		records       map[string]*notification.Record // by key
		interventions []notification.Intervention
		mutex         sync.RWMutex
	}

	auditTable struct {
		entries []audit.Entry
		seq     int64
		mutex   sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		founders: &founderTable{
			directory: make(map[string]*founder.Founder),
			states:    make(map[string]*founder.CycleState),
		},
		cycles: &cycleTable{
			instances:   make(map[instKey]*cycle.Instance),
			commits:     make(map[instKey]*cycle.Commit),
			reports:     make(map[instKey]*cycle.Report),
			adjustments: make(map[instKey]*cycle.Adjustment),
		},
		stages:        &stageTable{table: make(map[stageKey]*stage.Progress)},
		notifications: &notificationTable{records: make(map[string]*notification.Record)},
		audits:        &auditTable{},
	}
}

// AddFounder seeds a directory entry; tests and local dev only.
func (db *DB) AddFounder(f founder.Founder) {
	db.founders.mutex.Lock()
	defer db.founders.mutex.Unlock()
	db.founders.directory[f.ID] = &f
}
