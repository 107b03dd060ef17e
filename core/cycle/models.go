package cycle

import (
	"errors"
	"time"

	"github.com/volatiletech/null/v8"
)

var (
	// errors
	ErrNotFound          = errors.New("weekly cycle instance not found")
	ErrCommitNotFound    = errors.New("commit not found")
	ErrReportNotFound    = errors.New("report not found")
	ErrInvalidTransition = errors.New("invalid phase transition")
	// ErrNoChange marks an idempotent tick re-entry: the instance is already
	// at or past the tick's target phase.
	ErrNoChange = errors.New("no phase change")
	// ErrStaleInstance means another writer moved the phase between the read
	// and the guarded write; the caller must re-read and re-enforce.
	ErrStaleInstance = errors.New("instance phase changed concurrently")
)

// Phase of a single week's workflow for one founder.
type Phase string

const (
	PhasePendingCommit Phase = "pending_commit"
	PhaseExecuting     Phase = "executing"
	PhasePendingReport Phase = "pending_report"
	PhaseDiagnosing    Phase = "diagnosing"
	PhaseAdjusting     Phase = "adjusting"
	PhaseComplete      Phase = "complete"
	PhaseMissed        Phase = "missed"
)

// phaseRank orders phases along the happy path; PhaseMissed is the terminal
// side branch. Transitions never decrease rank.
var phaseRank = map[Phase]int{
	PhasePendingCommit: 0,
	PhaseExecuting:     1,
	PhasePendingReport: 2,
	PhaseDiagnosing:    3,
	PhaseAdjusting:     4,
	PhaseComplete:      5,
	PhaseMissed:        5,
}

func (p Phase) Terminal() bool { return p == PhaseComplete || p == PhaseMissed }

func (p Phase) Rank() int { return phaseRank[p] }

// Instance is one (founder, week) workflow. Immutable once Terminal.
type Instance struct {
	ID                string    `db:"id" json:"id"`
	FounderID         string    `db:"founder_id" json:"founder_id"`
	WeekNumber        int       `db:"week_number" json:"week_number"`
	Phase             Phase     `db:"phase" json:"phase"`
	WeekStart         time.Time `db:"week_start" json:"week_start"`
	CommitDeadline    time.Time `db:"commit_deadline" json:"commit_deadline"`
	ReportDeadline    time.Time `db:"report_deadline" json:"report_deadline"`
	AdjustDeadline    time.Time `db:"adjust_deadline" json:"adjust_deadline"`
	CommitSubmittedAt null.Time `db:"commit_submitted_at" json:"commit_submitted_at"`
	ReportSubmittedAt null.Time `db:"report_submitted_at" json:"report_submitted_at"`
	AdjustSubmittedAt null.Time `db:"adjust_submitted_at" json:"adjust_submitted_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"` // UTC
}

// Report statuses
const (
	ReportAccepted = "accepted"
	ReportRejected = "rejected"
)

// Commit is the append-only weekly commitment fact.
type Commit struct {
	ID            string    `db:"id" json:"id"`
	FounderID     string    `db:"founder_id" json:"founder_id"`
	WeekNumber    int       `db:"week_number" json:"week_number"`
	Goal          string    `db:"goal" json:"goal"`
	TargetRevenue float64   `db:"target_revenue" json:"target_revenue"`
	PlannedHours  float64   `db:"planned_hours" json:"planned_hours"`
	Deadline      time.Time `db:"deadline" json:"deadline"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submitted_at"` // UTC
	IsLate        bool      `db:"is_late" json:"is_late"`
}

// Report is the weekly results fact. A report with no usable evidence is kept
// with ReportRejected status and stays resubmittable until the deadline.
// DollarPerHour and WinRate are derived at diagnosis, never client-supplied.
type Report struct {
	ID               string    `db:"id" json:"id"`
	FounderID        string    `db:"founder_id" json:"founder_id"`
	WeekNumber       int       `db:"week_number" json:"week_number"`
	RevenueGenerated float64   `db:"revenue_generated" json:"revenue_generated"`
	HoursSpent       float64   `db:"hours_spent" json:"hours_spent"`
	EvidenceURLs     []string  `db:"-" json:"evidence_urls"`
	Status           string    `db:"status" json:"status"`
	DollarPerHour    float64   `db:"dollar_per_hour" json:"dollar_per_hour"`
	WinRate          float64   `db:"win_rate" json:"win_rate"`
	Deadline         time.Time `db:"deadline" json:"deadline"`
	SubmittedAt      time.Time `db:"submitted_at" json:"submitted_at"` // UTC
	IsLate           bool      `db:"is_late" json:"is_late"`
}

// Adjustment is the end-of-week course correction fact.
type Adjustment struct {
	ID          string    `db:"id" json:"id"`
	FounderID   string    `db:"founder_id" json:"founder_id"`
	WeekNumber  int       `db:"week_number" json:"week_number"`
	KeepDoing   string    `db:"keep_doing" json:"keep_doing"`
	StopDoing   string    `db:"stop_doing" json:"stop_doing"`
	ChangeNext  string    `db:"change_next" json:"change_next"`
	Deadline    time.Time `db:"deadline" json:"deadline"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"` // UTC
	IsLate      bool      `db:"is_late" json:"is_late"`
}
