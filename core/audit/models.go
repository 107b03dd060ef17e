package audit

import "time"

// Actions
const (
	ActionAuthorize    = "authorize"
	ActionLock         = "lock"
	ActionUnlock       = "unlock"
	ActionStageAdvance = "stage_advance"
	ActionGraduate     = "graduate"
	ActionTick         = "tick"
)

// Decisions
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionApply = "apply"
)

// Entry is one immutable line of the enforcement trail. Seq is assigned by
// storage and is strictly increasing.
type Entry struct {
	Seq        int64     `db:"seq" json:"seq"`
	FounderID  string    `db:"founder_id" json:"founder_id"`
	ActorID    string    `db:"actor_id" json:"actor_id"` // empty for scheduler-driven decisions
	WeekNumber int       `db:"week_number" json:"week_number"`
	Action     string    `db:"action" json:"action"`
	Decision   string    `db:"decision" json:"decision"`
	Reason     string    `db:"reason" json:"reason"`
	At         time.Time `db:"at" json:"at"` // UTC
}
