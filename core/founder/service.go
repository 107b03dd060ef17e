package founder

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wakora/hatua/core"
	"github.com/wakora/hatua/core/audit"
	"github.com/wakora/hatua/core/notification"
)

type (
	Repository interface {
		CreateCycleState(ctx context.Context, state CycleState) (CycleState, error)
		GetCycleState(ctx context.Context, founderID string) (CycleState, error)
		UpdateCycleState(ctx context.Context, state CycleState) (CycleState, error)
		// QueryActiveCycleStates returns all non-archived states.
		QueryActiveCycleStates(ctx context.Context) ([]CycleState, error)
	}

	Notifier interface {
		Emit(ctx context.Context, intent notification.Intent)
	}

	InterventionLog interface {
		CreateIntervention(ctx context.Context, iv notification.Intervention) (notification.Intervention, error)
	}

	Auditor interface {
		Record(ctx context.Context, entry audit.Entry)
	}

	// Service is the miss & lock tracker. It owns ConsecutiveMisses and the
	// lock flag; nothing else writes them.
	Service struct {
		repo          Repository
		notifier      Notifier
		interventions InterventionLog
		auditor       Auditor
		clock         core.Clock
		conf          *core.Config
	}
)

func NewService(
	repo Repository,
	notifier Notifier,
	interventions InterventionLog,
	auditor Auditor,
	clock core.Clock,
	conf *core.Config,
) *Service {
	return &Service{
		repo:          repo,
		notifier:      notifier,
		interventions: interventions,
		auditor:       auditor,
		clock:         clock,
		conf:          conf,
	}
}

// Enroll creates the cycle state for a founder starting week 1 at stage 1.
func (svc *Service) Enroll(ctx context.Context, founderID string) (CycleState, error) {
	now := svc.clock.Now().UTC()
	state := CycleState{
		FounderID:    founderID,
		CurrentWeek:  1,
		CurrentStage: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateCycleState(ctx, state)
}

func (svc *Service) GetState(ctx context.Context, founderID string) (CycleState, error) {
	return svc.repo.GetCycleState(ctx, founderID)
}

func (svc *Service) QueryActive(ctx context.Context) ([]CycleState, error) {
	return svc.repo.QueryActiveCycleStates(ctx)
}

// RecordOutcome applies the documented miss rules for a commit or report
// window: on-time resets the counter, missed increments it, late does
// neither. At the lock threshold the account is locked for removal review, an
// intervention is recorded and an urgent notification goes out.
func (svc *Service) RecordOutcome(ctx context.Context, founderID string, week int, outcome Outcome) (CycleState, error) {
	state, err := svc.repo.GetCycleState(ctx, founderID)
	if err != nil {
		return CycleState{}, errors.Wrap(err, "getting cycle state")
	}

	switch outcome {
	case OutcomeOnTime:
		state.ConsecutiveMisses = 0
	case OutcomeMissed:
		state.ConsecutiveMisses++
	case OutcomeLate:
		// neither a reset nor a miss
	default:
		return CycleState{}, errors.Errorf("unknown outcome %q", outcome)
	}

	shouldLock := state.ConsecutiveMisses >= svc.conf.Program.LockThreshold && !state.IsLocked
	if shouldLock {
		state.IsLocked = true
		state.LockReason = null.StringFrom(LockReasonRemovalReview)
	}
	state.UpdatedAt = svc.clock.Now().UTC()

	state, err = svc.repo.UpdateCycleState(ctx, state)
	if err != nil {
		return CycleState{}, errors.Wrap(err, "updating cycle state")
	}

	if shouldLock {
		svc.escalateLock(ctx, state, week)
	}
	return state, nil
}

func (svc *Service) escalateLock(ctx context.Context, state CycleState, week int) {
	now := svc.clock.Now().UTC()

	iv := notification.Intervention{
		FounderID:   state.FounderID,
		Reason:      notification.ReasonConsecutiveMisses,
		WeekNumber:  week,
		TriggeredAt: now,
	}
	if _, err := svc.interventions.CreateIntervention(ctx, iv); err != nil {
		// keep going: the lock itself already committed
		svc.auditor.Record(ctx, audit.Entry{
			FounderID:  state.FounderID,
			WeekNumber: week,
			Action:     audit.ActionLock,
			Decision:   audit.DecisionApply,
			Reason:     fmt.Sprintf("intervention record failed: %v", err),
			At:         now,
		})
	}

	svc.auditor.Record(ctx, audit.Entry{
		FounderID:  state.FounderID,
		WeekNumber: week,
		Action:     audit.ActionLock,
		Decision:   audit.DecisionApply,
		Reason:     LockReasonRemovalReview,
		At:         now,
	})

	svc.notifier.Emit(ctx, notification.Intent{
		EventType:  notification.EventAccountLocked,
		FounderID:  state.FounderID,
		WeekNumber: week,
		Payload:    map[string]interface{}{"consecutive_misses": state.ConsecutiveMisses},
		Urgent:     true,
	})
}

// Lock applies a manual lock (admin action).
func (svc *Service) Lock(ctx context.Context, founderID, approverID, rationale string) (CycleState, error) {
	state, err := svc.repo.GetCycleState(ctx, founderID)
	if err != nil {
		return CycleState{}, errors.Wrap(err, "getting cycle state")
	}
	state.IsLocked = true
	state.LockReason = null.StringFrom(LockReasonManual)
	state.UpdatedAt = svc.clock.Now().UTC()

	state, err = svc.repo.UpdateCycleState(ctx, state)
	if err != nil {
		return CycleState{}, errors.Wrap(err, "updating cycle state")
	}

	svc.auditor.Record(ctx, audit.Entry{
		FounderID:  founderID,
		ActorID:    approverID,
		WeekNumber: state.CurrentWeek,
		Action:     audit.ActionLock,
		Decision:   audit.DecisionApply,
		Reason:     rationale,
	})
	return state, nil
}

// Unlock is the distinct manual operation clearing a lock: resets the miss
// counter, audits the approver and rationale, and notifies the founder.
func (svc *Service) Unlock(ctx context.Context, founderID, approverID, rationale string) (CycleState, error) {
	state, err := svc.repo.GetCycleState(ctx, founderID)
	if err != nil {
		return CycleState{}, errors.Wrap(err, "getting cycle state")
	}
	if !state.IsLocked {
		return CycleState{}, ErrNotLocked
	}

	state.IsLocked = false
	state.LockReason = null.String{}
	state.ConsecutiveMisses = 0
	state.UpdatedAt = svc.clock.Now().UTC()

	state, err = svc.repo.UpdateCycleState(ctx, state)
	if err != nil {
		return CycleState{}, errors.Wrap(err, "updating cycle state")
	}

	svc.auditor.Record(ctx, audit.Entry{
		FounderID:  founderID,
		ActorID:    approverID,
		WeekNumber: state.CurrentWeek,
		Action:     audit.ActionUnlock,
		Decision:   audit.DecisionApply,
		Reason:     rationale,
	})

	svc.notifier.Emit(ctx, notification.Intent{
		EventType:  notification.EventUnlocked,
		FounderID:  founderID,
		WeekNumber: state.CurrentWeek,
		Payload:    map[string]interface{}{"rationale": rationale, "approver": approverID},
	})
	return state, nil
}

// AdvanceWeek moves the founder to the given week number. Called by the cycle
// service when a week reaches a terminal phase.
func (svc *Service) AdvanceWeek(ctx context.Context, founderID string, week int) (CycleState, error) {
	state, err := svc.repo.GetCycleState(ctx, founderID)
	if err != nil {
		return CycleState{}, errors.Wrap(err, "getting cycle state")
	}
	if week <= state.CurrentWeek {
		return state, nil // idempotent re-entry
	}
	state.CurrentWeek = week
	state.UpdatedAt = svc.clock.Now().UTC()
	return svc.repo.UpdateCycleState(ctx, state)
}

// AdvanceStage bumps CurrentStage; it never goes backwards.
func (svc *Service) AdvanceStage(ctx context.Context, founderID string, stage int) (CycleState, error) {
	state, err := svc.repo.GetCycleState(ctx, founderID)
	if err != nil {
		return CycleState{}, errors.Wrap(err, "getting cycle state")
	}
	if stage <= state.CurrentStage {
		return state, nil
	}
	state.CurrentStage = stage
	state.UpdatedAt = svc.clock.Now().UTC()
	return svc.repo.UpdateCycleState(ctx, state)
}

// Archive closes the founder's cycle at graduation or removal.
func (svc *Service) Archive(ctx context.Context, founderID string) (CycleState, error) {
	state, err := svc.repo.GetCycleState(ctx, founderID)
	if err != nil {
		return CycleState{}, errors.Wrap(err, "getting cycle state")
	}
	if !state.Active() {
		return state, nil
	}
	state.ArchivedAt = null.TimeFrom(svc.clock.Now().UTC())
	state.UpdatedAt = state.ArchivedAt.Time
	return svc.repo.UpdateCycleState(ctx, state)
}
