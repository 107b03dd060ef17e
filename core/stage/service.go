package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wakora/hatua/core"
	"github.com/wakora/hatua/core/audit"
	"github.com/wakora/hatua/core/founder"
	"github.com/wakora/hatua/core/notification"
)

type (
	Repository interface {
		CreateProgress(ctx context.Context, p Progress) (Progress, error)
		GetProgress(ctx context.Context, founderID string, stageNumber int) (Progress, error)
		UpdateProgress(ctx context.Context, p Progress) (Progress, error)
		QueryProgressByFounder(ctx context.Context, founderID string) ([]Progress, error)
	}

	// ReportSource exposes the aggregated report history the unlock
	// predicates read. Only accepted reports count.
	ReportSource interface {
		ValidReportCount(ctx context.Context, founderID string) (int, error)
		RecentRevenues(ctx context.Context, founderID string, n int) ([]float64, error)
	}

	Notifier interface {
		Emit(ctx context.Context, intent notification.Intent)
	}

	Auditor interface {
		Record(ctx context.Context, entry audit.Entry)
	}

	// Service evaluates the five-stage ladder. Evaluate is idempotent and
	// safe to call from concurrent qualifying events; completed stages are
	// never re-completed.
	Service struct {
		repo      Repository
		reports   ReportSource
		founders  *founder.Service
		directory founder.Directory
		notifier  Notifier
		auditor   Auditor
		clock     core.Clock
		conf      *core.Config
		logger    core.Logger
	}
)

func NewService(
	repo Repository,
	reports ReportSource,
	founders *founder.Service,
	directory founder.Directory,
	notifier Notifier,
	auditor Auditor,
	clock core.Clock,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:      repo,
		reports:   reports,
		founders:  founders,
		directory: directory,
		notifier:  notifier,
		auditor:   auditor,
		clock:     clock,
		conf:      conf,
		logger:    logger,
	}
}

// InitProgress creates the stage-1 row as in_progress at enrollment.
func (svc *Service) InitProgress(ctx context.Context, founderID string) error {
	if _, err := svc.repo.GetProgress(ctx, founderID, 1); err == nil {
		return nil
	} else if errors.Cause(err) != ErrNotFound {
		return err
	}

	now := svc.clock.Now().UTC()
	_, err := svc.repo.CreateProgress(ctx, Progress{
		FounderID:   founderID,
		StageNumber: 1,
		Status:      StatusInProgress,
		UnlockedAt:  null.TimeFrom(now),
	})
	return errors.Wrap(err, "creating stage 1 progress")
}

// QueryByFounder returns the full ladder for GET /founders/{id}/stages.
func (svc *Service) QueryByFounder(ctx context.Context, founderID string) ([]Progress, error) {
	return svc.repo.QueryProgressByFounder(ctx, founderID)
}

// current returns the founder's in_progress row, ErrNoStageInFly if the
// founder has graduated or was never initialized.
func (svc *Service) current(ctx context.Context, founderID string) (Progress, error) {
	rows, err := svc.repo.QueryProgressByFounder(ctx, founderID)
	if err != nil {
		return Progress{}, err
	}
	for _, p := range rows {
		if p.Status == StatusInProgress {
			return p, nil
		}
	}
	return Progress{}, ErrNoStageInFly
}

// ApproveMentor records a mentor's approval on the founder's current stage
// and re-evaluates the ladder.
func (svc *Service) ApproveMentor(ctx context.Context, founderID, approverID string) error {
	p, err := svc.current(ctx, founderID)
	if err != nil {
		return err
	}
	if !p.MentorApproved {
		p.MentorApproved = true
		p.UpdatedAt = svc.clock.Now().UTC()
		if p, err = svc.repo.UpdateProgress(ctx, p); err != nil {
			return errors.Wrap(err, "recording mentor approval")
		}
	}

	svc.auditor.Record(ctx, audit.Entry{
		FounderID: founderID,
		ActorID:   approverID,
		Action:    audit.ActionStageAdvance,
		Decision:  audit.DecisionApply,
		Reason:    fmt.Sprintf("mentor approval on stage %d", p.StageNumber),
	})
	return svc.Evaluate(ctx, founderID, TriggerMentorAction)
}

// SubmitRSD records the founder's Revenue System Document completion
// percentage and re-evaluates the ladder.
func (svc *Service) SubmitRSD(ctx context.Context, founderID string, completion float64) error {
	if completion < 0 || completion > 100 {
		return core.NewValidationError(
			errors.New("invalid RSD completion"),
			core.FieldError{Field: "completion", Error: "must be between 0 and 100"},
		)
	}

	p, err := svc.current(ctx, founderID)
	if err != nil {
		return err
	}
	p.RSDCompletion = completion
	p.UpdatedAt = svc.clock.Now().UTC()
	if _, err = svc.repo.UpdateProgress(ctx, p); err != nil {
		return errors.Wrap(err, "recording RSD completion")
	}
	return svc.Evaluate(ctx, founderID, TriggerRSD)
}

// stageTriggers lists the qualifying events per stage. Revenue-ratio
// predicates re-evaluate on every report, as soon as the threshold is
// crossed.
var stageTriggers = map[int][]Trigger{
	1: {TriggerReport},
	2: {TriggerMentorAction},
	3: {TriggerReport},
	4: {TriggerRSD, TriggerMentorAction},
	5: {TriggerWeek12, TriggerManual},
}

func qualifies(stageNumber int, trigger Trigger) bool {
	for _, t := range stageTriggers[stageNumber] {
		if t == trigger {
			return true
		}
	}
	return false
}

// Evaluate checks the founder's current stage predicate against the trigger
// and advances the ladder while predicates keep passing. A completed stage
// is never re-completed, so concurrent qualifying events in the same tick
// collapse to one advancement.
func (svc *Service) Evaluate(ctx context.Context, founderID string, trigger Trigger) error {
	f, err := svc.directory.GetFounder(ctx, founderID)
	if err != nil {
		return errors.Wrap(err, "looking up founder")
	}
	state, err := svc.founders.GetState(ctx, founderID)
	if err != nil {
		return errors.Wrap(err, "getting cycle state")
	}

	for {
		p, err := svc.current(ctx, founderID)
		if err == ErrNoStageInFly {
			return nil
		}
		if err != nil {
			return err
		}
		if !qualifies(p.StageNumber, trigger) {
			return nil
		}

		ok, err := svc.predicate(ctx, f, p)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err = svc.advance(ctx, f, p, state.CurrentWeek); err != nil {
			return err
		}
		if p.StageNumber == FinalStage {
			return nil
		}
		// the next stage may already qualify under the same trigger
	}
}

func (svc *Service) predicate(ctx context.Context, f founder.Founder, p Progress) (bool, error) {
	switch p.StageNumber {
	case 1:
		n, err := svc.reports.ValidReportCount(ctx, f.ID)
		if err != nil {
			return false, err
		}
		return n >= svc.conf.Program.StageReportsNeeded, nil

	case 2:
		return p.MentorApproved, nil

	case 3:
		ratio, ok, err := svc.revenueRatio(ctx, f)
		if err != nil || !ok {
			return false, err
		}
		return ratio >= svc.conf.Program.Stage3Multiplier, nil

	case 4:
		if p.RSDCompletion < 100 || !p.MentorApproved {
			return false, nil
		}
		ratio, ok, err := svc.revenueRatio(ctx, f)
		if err != nil || !ok {
			return false, err
		}
		// revenue maintained means the stage-3 bar still holds
		return ratio >= svc.conf.Program.Stage3Multiplier, nil

	case 5:
		if !f.ExitInterviewDone {
			return false, nil
		}
		ratio, ok, err := svc.revenueRatio(ctx, f)
		if err != nil || !ok {
			return false, err
		}
		return ratio >= svc.conf.Program.GraduationMultiplier, nil
	}
	return false, nil
}

// revenueRatio is the rolling-average revenue over the founder's baseline.
// It needs a full window of accepted reports and a positive baseline;
// anything less fails the predicate rather than erroring.
func (svc *Service) revenueRatio(ctx context.Context, f founder.Founder) (float64, bool, error) {
	window := svc.conf.Program.RollingWindow
	revenues, err := svc.reports.RecentRevenues(ctx, f.ID, window)
	if err != nil {
		return 0, false, err
	}
	if len(revenues) < window || f.BaselineRevenue <= 0 {
		return 0, false, nil
	}
	var sum float64
	for _, r := range revenues {
		sum += r
	}
	avg := sum / float64(len(revenues))
	return avg / f.BaselineRevenue, true, nil
}

// advance completes p and unlocks the next stage, or graduates the founder
// when p is the final stage.
func (svc *Service) advance(ctx context.Context, f founder.Founder, p Progress, week int) error {
	now := svc.clock.Now().UTC()
	p.Status = StatusComplete
	p.CompletedAt = null.TimeFrom(now)
	p.UpdatedAt = now
	if _, err := svc.repo.UpdateProgress(ctx, p); err != nil {
		return errors.Wrap(err, "completing stage")
	}

	if p.StageNumber >= FinalStage {
		return svc.graduate(ctx, f, week, now)
	}

	next := p.StageNumber + 1
	if _, err := svc.repo.GetProgress(ctx, f.ID, next); errors.Cause(err) == ErrNotFound {
		_, err = svc.repo.CreateProgress(ctx, Progress{
			FounderID:   f.ID,
			StageNumber: next,
			Status:      StatusInProgress,
			UnlockedAt:  null.TimeFrom(now),
		})
		if err != nil {
			return errors.Wrap(err, "unlocking next stage")
		}
	} else if err != nil {
		return err
	}

	if _, err := svc.founders.AdvanceStage(ctx, f.ID, next); err != nil {
		return errors.Wrap(err, "advancing cycle state stage")
	}

	svc.auditor.Record(ctx, audit.Entry{
		FounderID:  f.ID,
		WeekNumber: week,
		Action:     audit.ActionStageAdvance,
		Decision:   audit.DecisionApply,
		Reason:     fmt.Sprintf("stage %d -> %d", p.StageNumber, next),
	})
	svc.notifier.Emit(ctx, notification.Intent{
		EventType:  notification.EventStageAdvanced,
		FounderID:  f.ID,
		WeekNumber: week,
		Payload:    map[string]interface{}{"completed": p.StageNumber, "stage": next},
	})
	return nil
}

func (svc *Service) graduate(ctx context.Context, f founder.Founder, week int, now time.Time) error {
	if _, err := svc.founders.Archive(ctx, f.ID); err != nil {
		return errors.Wrap(err, "archiving graduate")
	}

	svc.auditor.Record(ctx, audit.Entry{
		FounderID:  f.ID,
		WeekNumber: week,
		Action:     audit.ActionGraduate,
		Decision:   audit.DecisionApply,
		Reason:     "all stages complete",
	})
	svc.notifier.Emit(ctx, notification.Intent{
		EventType:  notification.EventGraduated,
		FounderID:  f.ID,
		WeekNumber: week,
		Payload:    map[string]interface{}{"graduated_at": now},
		Urgent:     true,
	})
	return nil
}
