package stage

import (
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

var (
	ErrNotFound     = errors.New("stage progress not found")
	ErrNoStageInFly = errors.New("no stage in progress")
)

// Status of one founder's progress through one stage.
type Status string

const (
	StatusLocked     Status = "locked"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// Trigger names the qualifying event that caused an evaluation. Each stage
// only reacts to its own triggers, so an unrelated event never advances it.
type Trigger string

const (
	TriggerReport       Trigger = "report"
	TriggerMentorAction Trigger = "mentor_action"
	TriggerRSD          Trigger = "rsd"
	TriggerWeek12       Trigger = "week12"
	TriggerManual       Trigger = "manual"
)

// FinalStage is the last gated milestone; completing it means graduation.
const FinalStage = 5

// Progress is one founder's record for one stage of the ladder. Mentor
// approval and RSD completion are recorded on the stage they gate.
type Progress struct {
	ID             string    `db:"id" json:"id"`
	FounderID      string    `db:"founder_id" json:"founder_id"`
	StageNumber    int       `db:"stage_number" json:"stage_number"`
	Status         Status    `db:"status" json:"status"`
	MentorApproved bool      `db:"mentor_approved" json:"mentor_approved"`
	RSDCompletion  float64   `db:"rsd_completion" json:"rsd_completion"`
	UnlockedAt     null.Time `db:"unlocked_at" json:"unlocked_at"`
	CompletedAt    null.Time `db:"completed_at" json:"completed_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
