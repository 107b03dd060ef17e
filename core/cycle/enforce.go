package cycle

import (
	"time"

	"github.com/wakora/hatua/core/founder"
)

// Action names an inbound write a founder may attempt.
type Action string

const (
	ActionCommit Action = "commit"
	ActionReport Action = "report"
	ActionAdjust Action = "adjust"
)

// Denial reasons, returned verbatim to the client.
const (
	ReasonAccountLocked = "account_locked"
	ReasonWrongPhase    = "wrong_phase"
	ReasonPastDeadline  = "past_deadline"
)

// DeniedError is a 403-class enforcement denial with its explicit reason.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return e.Reason }

func Deny(reason string) error { return &DeniedError{Reason: reason} }

// actionPhase maps each action to its single valid phase.
var actionPhase = map[Action]Phase{
	ActionCommit: PhasePendingCommit,
	ActionReport: PhasePendingReport,
	ActionAdjust: PhaseAdjusting,
}

// actionDeadline picks the action's deadline off the instance.
func actionDeadline(inst Instance, action Action) time.Time {
	switch action {
	case ActionCommit:
		return inst.CommitDeadline
	case ActionReport:
		return inst.ReportDeadline
	default:
		return inst.AdjustDeadline
	}
}

// Authorize is the server-side trust boundary for every inbound write. A lock
// blocks everything; otherwise the action must hit its one valid phase before
// its one deadline. `now` comes from the injected clock; a client-side
// countdown has no authority here.
func Authorize(state founder.CycleState, inst Instance, action Action, now time.Time) error {
	if state.IsLocked {
		return Deny(ReasonAccountLocked)
	}
	if inst.Phase != actionPhase[action] {
		return Deny(ReasonWrongPhase)
	}
	if now.After(actionDeadline(inst, action)) {
		return Deny(ReasonPastDeadline)
	}
	return nil
}
