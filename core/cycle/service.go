package cycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wakora/hatua/core"
	"github.com/wakora/hatua/core/audit"
	"github.com/wakora/hatua/core/founder"
	"github.com/wakora/hatua/core/notification"
	"github.com/wakora/hatua/core/stage"
)

type (
	Repository interface {
		CreateInstance(ctx context.Context, inst Instance) (Instance, error)
		GetInstance(ctx context.Context, founderID string, weekNumber int) (Instance, error)
		// UpdateInstance writes inst only while the stored phase still equals
		// fromPhase, and fails with ErrStaleInstance otherwise. The API and
		// scheduler processes share one database; this guard is what
		// serializes their phase writes.
		UpdateInstance(ctx context.Context, inst Instance, fromPhase Phase) (Instance, error)

		CreateCommit(ctx context.Context, commit Commit) (Commit, error)
		GetCommit(ctx context.Context, founderID string, weekNumber int) (Commit, error)
		// UpsertReport replaces a rejected report on resubmission; accepted
		// reports are append-only facts.
		UpsertReport(ctx context.Context, report Report) (Report, error)
		GetReport(ctx context.Context, founderID string, weekNumber int) (Report, error)
		CreateAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
	}

	Notifier interface {
		Emit(ctx context.Context, intent notification.Intent)
	}

	Auditor interface {
		Record(ctx context.Context, entry audit.Entry)
	}

	// EvidenceChecker is the file-evidence collaborator: a URL must exist and
	// be readable (non-404/403) for a report to be accepted.
	EvidenceChecker interface {
		Check(ctx context.Context, url string) error
	}

	// Detail is the read model for GET /founders/{id}/cycle.
	Detail struct {
		State    founder.CycleState `json:"state"`
		Instance Instance           `json:"instance"`
	}

	// Service runs the weekly cycle state machine behind the deadline
	// enforcement unit. Within one process, writes to a founder's state are
	// serialized on a per-founder mutex; across processes (the API and the
	// scheduler run as separate binaries over one database) the phase-guarded
	// UpdateInstance is the arbiter: a lost race surfaces as ErrStaleInstance
	// and the operation re-reads and re-enforces.
	Service struct {
		repo     Repository
		founders *founder.Service
		stages   *stage.Service
		notifier Notifier
		auditor  Auditor
		evidence EvidenceChecker
		clock    core.Clock
		sched    Schedule
		conf     *core.Config
		logger   core.Logger

		mu    sync.Mutex
		locks map[string]*sync.Mutex
	}
)

func NewService(
	repo Repository,
	founders *founder.Service,
	stages *stage.Service,
	notifier Notifier,
	auditor Auditor,
	evidence EvidenceChecker,
	clock core.Clock,
	sched Schedule,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		founders: founders,
		stages:   stages,
		notifier: notifier,
		auditor:  auditor,
		evidence: evidence,
		clock:    clock,
		sched:    sched,
		conf:     conf,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFounder acquires the single-writer lock for a founder and returns the
// release func. A user submission and a scheduler tick can never interleave
// writes for the same founder.
func (svc *Service) lockFounder(founderID string) func() {
	svc.mu.Lock()
	l, ok := svc.locks[founderID]
	if !ok {
		l = &sync.Mutex{}
		svc.locks[founderID] = l
	}
	svc.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Enroll creates the founder's cycle state, the week-1 instance and the
// stage-1 progress row.
func (svc *Service) Enroll(ctx context.Context, founderID string) (Detail, error) {
	defer svc.lockFounder(founderID)()

	state, err := svc.founders.Enroll(ctx, founderID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "enrolling founder")
	}

	now := svc.clock.Now()
	inst := svc.sched.NewInstance(founderID, 1, svc.sched.WeekStart(now), now)
	inst, err = svc.repo.CreateInstance(ctx, inst)
	if err != nil {
		return Detail{}, errors.Wrap(err, "creating week 1 instance")
	}

	if err = svc.stages.InitProgress(ctx, founderID); err != nil {
		return Detail{}, errors.Wrap(err, "initializing stage progress")
	}
	return Detail{State: state, Instance: inst}, nil
}

// GetCycle returns the founder's current phase, deadlines and lock status.
func (svc *Service) GetCycle(ctx context.Context, founderID string) (Detail, error) {
	state, err := svc.founders.GetState(ctx, founderID)
	if err != nil {
		return Detail{}, err
	}
	inst, err := svc.repo.GetInstance(ctx, founderID, state.CurrentWeek)
	if err != nil {
		return Detail{}, err
	}
	return Detail{State: state, Instance: inst}, nil
}

// authorize runs the enforcement unit and logs the decision either way.
// Every inbound write goes through here; there is no bypass path.
func (svc *Service) authorize(ctx context.Context, state founder.CycleState, inst Instance, action Action, now time.Time) error {
	err := Authorize(state, inst, action, now)

	entry := audit.Entry{
		FounderID:  state.FounderID,
		ActorID:    state.FounderID,
		WeekNumber: inst.WeekNumber,
		Action:     audit.ActionAuthorize,
		Decision:   audit.DecisionAllow,
		Reason:     string(action),
	}
	if err != nil {
		entry.Decision = audit.DecisionDeny
		if derr, ok := err.(*DeniedError); ok {
			entry.Reason = fmt.Sprintf("%s: %s", action, derr.Reason)
		}
	}
	svc.auditor.Record(ctx, entry)
	return err
}

// SubmitCommit handles POST /commits for the founder's current week.
func (svc *Service) SubmitCommit(ctx context.Context, founderID string, nc NewCommit) (Instance, error) {
	defer svc.lockFounder(founderID)()

	for {
		state, err := svc.founders.GetState(ctx, founderID)
		if err != nil {
			return Instance{}, err
		}
		inst, err := svc.repo.GetInstance(ctx, founderID, state.CurrentWeek)
		if err != nil {
			return Instance{}, err
		}

		now := svc.clock.Now()
		if err = svc.authorize(ctx, state, inst, ActionCommit, now); err != nil {
			return Instance{}, err
		}

		next, err := Apply(inst, EventCommit, now)
		if err != nil {
			return Instance{}, err
		}
		if next, err = svc.repo.UpdateInstance(ctx, next, inst.Phase); err != nil {
			if errors.Cause(err) == ErrStaleInstance {
				continue // a scheduler tick won the write; re-read and re-enforce
			}
			return Instance{}, errors.Wrap(err, "updating instance")
		}

		commit := Commit{
			FounderID:     founderID,
			WeekNumber:    next.WeekNumber,
			Goal:          nc.Goal,
			TargetRevenue: nc.TargetRevenue,
			PlannedHours:  nc.PlannedHours,
			Deadline:      next.CommitDeadline,
			SubmittedAt:   now.UTC(),
			IsLate:        now.After(next.CommitDeadline),
		}
		if _, err = svc.repo.CreateCommit(ctx, commit); err != nil {
			return Instance{}, errors.Wrap(err, "creating commit")
		}
		if _, err = svc.founders.RecordOutcome(ctx, founderID, next.WeekNumber, founder.OutcomeOnTime); err != nil {
			return Instance{}, errors.Wrap(err, "recording commit outcome")
		}
		return next, nil
	}
}

// SubmitReport handles POST /reports. A report without usable evidence is
// recorded with rejected status and stays resubmittable until the report
// deadline; it does not advance the phase.
func (svc *Service) SubmitReport(ctx context.Context, founderID string, nr NewReport) (Instance, error) {
	defer svc.lockFounder(founderID)()

	for {
		state, err := svc.founders.GetState(ctx, founderID)
		if err != nil {
			return Instance{}, err
		}
		inst, err := svc.repo.GetInstance(ctx, founderID, state.CurrentWeek)
		if err != nil {
			return Instance{}, err
		}

		now := svc.clock.Now()
		if err = svc.authorize(ctx, state, inst, ActionReport, now); err != nil {
			return Instance{}, err
		}

		report := Report{
			FounderID:        founderID,
			WeekNumber:       inst.WeekNumber,
			RevenueGenerated: nr.RevenueGenerated,
			HoursSpent:       nr.HoursSpent,
			EvidenceURLs:     nr.EvidenceURLs,
			Deadline:         inst.ReportDeadline,
			SubmittedAt:      now.UTC(),
			IsLate:           now.After(inst.ReportDeadline),
		}

		if reason := svc.checkEvidence(ctx, nr.EvidenceURLs); reason != "" {
			report.Status = ReportRejected
			if _, err = svc.repo.UpsertReport(ctx, report); err != nil {
				return Instance{}, errors.Wrap(err, "recording rejected report")
			}
			return Instance{}, core.NewValidationError(
				errors.New("report rejected"),
				core.FieldError{Field: "evidence_urls", Error: reason},
			)
		}

		var target float64
		if commit, cerr := svc.repo.GetCommit(ctx, founderID, inst.WeekNumber); cerr == nil {
			target = commit.TargetRevenue
		}
		report.Status = ReportAccepted
		report = Diagnose(report, target)

		next, err := Apply(inst, EventReport, now)
		if err != nil {
			return Instance{}, err
		}
		if next, err = svc.repo.UpdateInstance(ctx, next, inst.Phase); err != nil {
			if errors.Cause(err) == ErrStaleInstance {
				continue // a scheduler tick won the write; re-read and re-enforce
			}
			return Instance{}, errors.Wrap(err, "updating instance")
		}
		if _, err = svc.repo.UpsertReport(ctx, report); err != nil {
			return Instance{}, errors.Wrap(err, "recording report")
		}
		if _, err = svc.founders.RecordOutcome(ctx, founderID, next.WeekNumber, founder.OutcomeOnTime); err != nil {
			return Instance{}, errors.Wrap(err, "recording report outcome")
		}

		// stage unlock fires on this request, not on the next tick
		if err = svc.stages.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
			svc.logger.Error(fmt.Sprintf("evaluating stages after report (founder=%s): %v", founderID, err), err)
		}
		return next, nil
	}
}

func (svc *Service) checkEvidence(ctx context.Context, urls []string) (reason string) {
	if len(urls) == 0 {
		return "at least one evidence URL is required"
	}
	for _, u := range urls {
		if err := svc.evidence.Check(ctx, u); err != nil {
			return fmt.Sprintf("evidence not reachable: %s", u)
		}
	}
	return ""
}

// SubmitAdjust handles POST /adjust and closes the week as complete.
func (svc *Service) SubmitAdjust(ctx context.Context, founderID string, na NewAdjustment) (Instance, error) {
	defer svc.lockFounder(founderID)()

	for {
		state, err := svc.founders.GetState(ctx, founderID)
		if err != nil {
			return Instance{}, err
		}
		inst, err := svc.repo.GetInstance(ctx, founderID, state.CurrentWeek)
		if err != nil {
			return Instance{}, err
		}

		now := svc.clock.Now()
		if err = svc.authorize(ctx, state, inst, ActionAdjust, now); err != nil {
			return Instance{}, err
		}

		next, err := Apply(inst, EventAdjust, now)
		if err != nil {
			return Instance{}, err
		}
		if next, err = svc.repo.UpdateInstance(ctx, next, inst.Phase); err != nil {
			if errors.Cause(err) == ErrStaleInstance {
				continue // a scheduler tick won the write; re-read and re-enforce
			}
			return Instance{}, errors.Wrap(err, "updating instance")
		}

		adj := Adjustment{
			FounderID:   founderID,
			WeekNumber:  next.WeekNumber,
			KeepDoing:   na.KeepDoing,
			StopDoing:   na.StopDoing,
			ChangeNext:  na.ChangeNext,
			Deadline:    next.AdjustDeadline,
			SubmittedAt: now.UTC(),
			IsLate:      now.After(next.AdjustDeadline),
		}
		if _, err = svc.repo.CreateAdjustment(ctx, adj); err != nil {
			return Instance{}, errors.Wrap(err, "creating adjustment")
		}

		svc.notifier.Emit(ctx, notification.Intent{
			EventType:  notification.EventWeekComplete,
			FounderID:  founderID,
			WeekNumber: next.WeekNumber,
			Payload:    map[string]interface{}{"phase": next.Phase},
		})

		// an adjust-less close is handled by the Sunday tick; a submitted
		// adjust rolls the week over right here
		if err = svc.rollover(ctx, founderID, next); err != nil {
			return Instance{}, errors.Wrap(err, "rolling week over")
		}
		return next, nil
	}
}

// tickEvents maps scheduler ticks to machine events. TickWeekStart has no
// machine event; it is the rollover/graduation safety net.
var tickEvents = map[TickKind]Event{
	TickCommitDeadline: EventCommitDeadline,
	TickReportWindow:   EventReportWindow,
	TickReportDeadline: EventReportDeadline,
	TickDiagnosisEnd:   EventDiagnosisEnd,
	TickAdjustDeadline: EventAdjustDeadline,
}

// ProcessTick applies one scheduler tick for one founder. Re-running a tick
// the founder is already past is a no-op, so retries and restarts are safe.
func (svc *Service) ProcessTick(ctx context.Context, founderID string, kind TickKind, at time.Time) error {
	defer svc.lockFounder(founderID)()

	for {
		state, err := svc.founders.GetState(ctx, founderID)
		if err != nil {
			return errors.Wrap(err, "getting cycle state")
		}
		if !state.Active() {
			return nil
		}

		inst, err := svc.repo.GetInstance(ctx, founderID, state.CurrentWeek)
		if err != nil {
			return errors.Wrap(err, "getting instance")
		}

		if kind == TickWeekStart {
			return svc.advanceWeek(ctx, founderID, inst, at)
		}

		ev, ok := tickEvents[kind]
		if !ok {
			return errors.Errorf("unknown tick kind %q", kind)
		}

		// catch-up replays last week's ticks too; one from before this
		// instance's own instant belongs to an earlier week and must not fire
		if at.Before(svc.tickInstant(inst, kind)) {
			return nil
		}

		next, err := Apply(inst, ev, at)
		if err == ErrNoChange {
			return nil
		}
		if err != nil {
			return err
		}

		if next, err = svc.repo.UpdateInstance(ctx, next, inst.Phase); err != nil {
			if errors.Cause(err) == ErrStaleInstance {
				continue // a submission won the write; re-read, likely a no-op now
			}
			return errors.Wrap(err, "updating instance")
		}

		svc.auditor.Record(ctx, audit.Entry{
			FounderID:  founderID,
			WeekNumber: next.WeekNumber,
			Action:     audit.ActionTick,
			Decision:   audit.DecisionApply,
			Reason:     fmt.Sprintf("%s: %s -> %s", kind, inst.Phase, next.Phase),
		})

		switch ev {
		case EventCommitDeadline:
			return svc.handleMiss(ctx, founderID, next, notification.EventMissedCommit)
		case EventReportDeadline:
			return svc.handleMiss(ctx, founderID, next, notification.EventMissedReport)
		case EventAdjustDeadline:
			// closed without full completion; by the documented rule this is
			// not a miss
			return svc.rollover(ctx, founderID, next)
		}
		return nil
	}
}

// tickInstant is this instance's own wall-clock instant for a tick kind.
func (svc *Service) tickInstant(inst Instance, kind TickKind) time.Time {
	switch kind {
	case TickCommitDeadline:
		return inst.CommitDeadline
	case TickReportWindow:
		return svc.sched.ReportWindow(inst.WeekStart)
	case TickReportDeadline:
		return inst.ReportDeadline
	case TickDiagnosisEnd:
		return svc.sched.DiagnosisEnd(inst.WeekStart)
	case TickAdjustDeadline:
		return inst.AdjustDeadline
	}
	return inst.WeekStart
}

func (svc *Service) handleMiss(ctx context.Context, founderID string, inst Instance, eventType string) error {
	if _, err := svc.founders.RecordOutcome(ctx, founderID, inst.WeekNumber, founder.OutcomeMissed); err != nil {
		return errors.Wrap(err, "recording miss")
	}

	svc.notifier.Emit(ctx, notification.Intent{
		EventType:  eventType,
		FounderID:  founderID,
		WeekNumber: inst.WeekNumber,
		Payload:    map[string]interface{}{"deadline": actionDeadlineForEvent(inst, eventType)},
	})

	return svc.rollover(ctx, founderID, inst)
}

func actionDeadlineForEvent(inst Instance, eventType string) time.Time {
	if eventType == notification.EventMissedCommit {
		return inst.CommitDeadline
	}
	return inst.ReportDeadline
}

// rollover pre-creates the next week's instance once the current one is
// terminal, or runs the graduation check after week 12. The founder's
// CurrentWeek pointer only moves at the Monday tick (advanceWeek), so an
// early finisher cannot act on next week ahead of its schedule. Idempotent:
// an existing next instance means the work is already done.
func (svc *Service) rollover(ctx context.Context, founderID string, inst Instance) error {
	if !inst.Phase.Terminal() {
		return nil
	}

	if inst.WeekNumber >= svc.conf.Program.Weeks {
		if err := svc.stages.Evaluate(ctx, founderID, stage.TriggerWeek12); err != nil {
			svc.logger.Error(fmt.Sprintf("graduation check (founder=%s): %v", founderID, err), err)
		}
		return nil
	}

	nextWeek := inst.WeekNumber + 1
	if _, err := svc.repo.GetInstance(ctx, founderID, nextWeek); err == nil {
		return nil
	} else if errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "checking next instance")
	}

	now := svc.clock.Now()
	weekStart := svc.sched.WeekStart(inst.WeekStart.AddDate(0, 0, 7))
	next := svc.sched.NewInstance(founderID, nextWeek, weekStart, now)
	if _, err := svc.repo.CreateInstance(ctx, next); err != nil {
		return errors.Wrap(err, "creating next instance")
	}
	return nil
}

// advanceWeek moves the founder onto the next instance at the Monday tick,
// creating it first if the terminal transition never got to (crash between
// the transition and the rollover).
func (svc *Service) advanceWeek(ctx context.Context, founderID string, inst Instance, at time.Time) error {
	if !inst.Phase.Terminal() {
		return nil
	}
	if err := svc.rollover(ctx, founderID, inst); err != nil {
		return err
	}
	if inst.WeekNumber >= svc.conf.Program.Weeks {
		return nil
	}

	nextWeek := inst.WeekNumber + 1
	next, err := svc.repo.GetInstance(ctx, founderID, nextWeek)
	if err != nil {
		return errors.Wrap(err, "getting next instance")
	}
	if next.WeekStart.After(at) {
		return nil
	}
	if _, err = svc.founders.AdvanceWeek(ctx, founderID, nextWeek); err != nil {
		return errors.Wrap(err, "advancing week")
	}
	return nil
}
