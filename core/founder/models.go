package founder

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"
)

var (
	// errors
	ErrNotFound  = errors.New("founder not found")
	ErrNotLocked = errors.New("account is not locked")
	ErrArchived  = errors.New("founder cycle is archived")
)

// Lock reasons
const (
	LockReasonRemovalReview = "removal_review"
	LockReasonManual        = "manual"
)

// Outcome of a commit or report window for one week.
type Outcome string

const (
	OutcomeOnTime Outcome = "on_time"
	OutcomeLate   Outcome = "late"
	OutcomeMissed Outcome = "missed"
)

// Founder is the identity collaborator's shape. Hatua does not own founder
// accounts; it consumes them through Directory.
type Founder struct {
	ID                string  `db:"id" json:"id"`
	Name              string  `db:"name" json:"name"`
	Email             string  `db:"email" json:"email"`
	MentorEmail       string  `db:"mentor_email" json:"mentor_email"`
	BaselineRevenue   float64 `db:"baseline_revenue" json:"baseline_revenue"`
	ExitInterviewDone bool    `db:"exit_interview_done" json:"exit_interview_done"`
}

// Directory looks up founder identity and business metadata.
type Directory interface {
	GetFounder(ctx context.Context, id string) (Founder, error)
}

// CycleState is the per-founder accountability state. Created at enrollment,
// mutated only by the cycle service and the lock tracker, archived at
// graduation or removal, never deleted.
type CycleState struct {
	FounderID         string      `db:"founder_id" json:"founder_id"`
	CurrentWeek       int         `db:"current_week" json:"current_week"`   // 1..12
	CurrentStage      int         `db:"current_stage" json:"current_stage"` // 1..5, monotonic non-decreasing
	ConsecutiveMisses int         `db:"consecutive_misses" json:"consecutive_misses"`
	IsLocked          bool        `db:"is_locked" json:"is_locked"`
	LockReason        null.String `db:"lock_reason" json:"lock_reason"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"` // UTC
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"` // UTC
	ArchivedAt        null.Time   `db:"archived_at" json:"archived_at"`
}

func (st CycleState) Active() bool { return !st.ArchivedAt.Valid }
