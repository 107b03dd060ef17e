package cycle

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Event drives the weekly state machine. Submission events come from the HTTP
// path; tick events from the scheduler. Apply is the only place phases change.
type Event string

const (
	EventCommit Event = "commit"
	EventReport Event = "report"
	EventAdjust Event = "adjust"

	EventCommitDeadline Event = "tick_commit_deadline"
	EventReportWindow   Event = "tick_report_window"
	EventReportDeadline Event = "tick_report_deadline"
	EventDiagnosisEnd   Event = "tick_diagnosis_end"
	EventAdjustDeadline Event = "tick_adjust_deadline"
)

// Apply is the pure transition function: no I/O, no side effects. Submission
// events on the wrong phase fail with ErrInvalidTransition; tick events on an
// instance already at or past their target phase return ErrNoChange so a
// retried tick is a safe no-op. Terminal instances never change.
func Apply(inst Instance, ev Event, now time.Time) (Instance, error) {
	if inst.Phase.Terminal() {
		if ev == EventCommit || ev == EventReport || ev == EventAdjust {
			return inst, ErrInvalidTransition
		}
		return inst, ErrNoChange
	}

	switch ev {
	case EventCommit:
		if inst.Phase != PhasePendingCommit {
			return inst, ErrInvalidTransition
		}
		inst.Phase = PhaseExecuting
		inst.CommitSubmittedAt = null.TimeFrom(now.UTC())

	case EventReport:
		if inst.Phase != PhasePendingReport {
			return inst, ErrInvalidTransition
		}
		inst.Phase = PhaseDiagnosing
		inst.ReportSubmittedAt = null.TimeFrom(now.UTC())

	case EventAdjust:
		if inst.Phase != PhaseAdjusting {
			return inst, ErrInvalidTransition
		}
		inst.Phase = PhaseComplete
		inst.AdjustSubmittedAt = null.TimeFrom(now.UTC())

	case EventCommitDeadline:
		if inst.Phase != PhasePendingCommit {
			return inst, ErrNoChange
		}
		inst.Phase = PhaseMissed

	case EventReportWindow:
		if inst.Phase != PhaseExecuting {
			return inst, ErrNoChange
		}
		inst.Phase = PhasePendingReport

	case EventReportDeadline:
		if inst.Phase != PhasePendingReport {
			return inst, ErrNoChange
		}
		inst.Phase = PhaseMissed

	case EventDiagnosisEnd:
		if inst.Phase != PhaseDiagnosing {
			return inst, ErrNoChange
		}
		inst.Phase = PhaseAdjusting

	case EventAdjustDeadline:
		// the week closes without a full completion; this is not a miss
		if inst.Phase != PhaseAdjusting {
			return inst, ErrNoChange
		}
		inst.Phase = PhaseComplete

	default:
		return inst, ErrInvalidTransition
	}

	inst.UpdatedAt = now.UTC()
	return inst, nil
}

// Diagnose computes the derived report metrics on the transition into
// PhaseDiagnosing. Division by non-positive hours fails closed to 0 (such
// reports are rejected at submission anyway); a missing commit target yields
// a 0 win rate.
func Diagnose(report Report, targetRevenue float64) Report {
	if report.HoursSpent > 0 {
		report.DollarPerHour = report.RevenueGenerated / report.HoursSpent
	} else {
		report.DollarPerHour = 0
	}
	if targetRevenue > 0 {
		report.WinRate = (report.RevenueGenerated / targetRevenue) * 100
	} else {
		report.WinRate = 0
	}
	return report
}
