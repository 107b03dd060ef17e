package stage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wakora/hatua/core"
	"github.com/wakora/hatua/core/audit"
	"github.com/wakora/hatua/core/cycle"
	"github.com/wakora/hatua/core/founder"
	"github.com/wakora/hatua/core/notification"
	"github.com/wakora/hatua/core/stage"
	inmemdb "github.com/wakora/hatua/storage/database/inmem"
)

var ctx = context.Background()

type intentRecorder struct {
	mu      sync.Mutex
	intents []notification.Intent
}

func (r *intentRecorder) Emit(_ context.Context, intent notification.Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
}

func (r *intentRecorder) byType(eventType string) []notification.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification.Intent
	for _, in := range r.intents {
		if in.EventType == eventType {
			out = append(out, in)
		}
	}
	return out
}

type fixture struct {
	db       *inmemdb.DB
	svc      *stage.Service
	founders *founder.Service
	reports  cycle.Repository
	notifs   *intentRecorder
	nextWeek int
}

const founderID = "fd-1"

func newFixture(t *testing.T, f founder.Founder) *fixture {
	t.Helper()

	conf := &core.Config{
		TestMode: true,
		Program: core.ProgramConfig{
			Timezone:             "Africa/Lagos",
			Weeks:                12,
			LockThreshold:        2,
			RollingWindow:        3,
			StageReportsNeeded:   2,
			Stage3Multiplier:     2.0,
			GraduationMultiplier: 4.0,
		},
	}
	clock := core.ClockFunc(func() time.Time {
		return time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
	})
	logger := core.NopLogger{}

	fx := &fixture{db: inmemdb.Open(), notifs: &intentRecorder{}, nextWeek: 1}
	fx.db.AddFounder(f)

	cycleRepo := inmemdb.NewCycleRepository(fx.db)
	fx.reports = cycleRepo
	auditor := audit.NewWriter(inmemdb.NewAuditRepository(fx.db), clock, logger)
	fx.founders = founder.NewService(
		inmemdb.NewFounderRepository(fx.db), fx.notifs, inmemdb.NewNotificationRepository(fx.db),
		auditor, clock, conf,
	)
	fx.svc = stage.NewService(
		inmemdb.NewStageRepository(fx.db), cycleRepo, fx.founders, inmemdb.NewFounderDirectory(fx.db),
		fx.notifs, auditor, clock, conf, logger,
	)

	if _, err := fx.founders.Enroll(ctx, founderID); err != nil {
		t.Fatalf("enrolling: %v", err)
	}
	if err := fx.svc.InitProgress(ctx, founderID); err != nil {
		t.Fatalf("initializing progress: %v", err)
	}
	return fx
}

// addReport stores an accepted report for the next week in sequence.
func (fx *fixture) addReport(t *testing.T, revenue float64) {
	t.Helper()
	_, err := fx.reports.UpsertReport(ctx, cycle.Report{
		FounderID:        founderID,
		WeekNumber:       fx.nextWeek,
		RevenueGenerated: revenue,
		HoursSpent:       30,
		Status:           cycle.ReportAccepted,
	})
	if err != nil {
		t.Fatalf("storing report: %v", err)
	}
	fx.nextWeek++
}

func (fx *fixture) stageStatus(t *testing.T, stageNumber int) stage.Status {
	t.Helper()
	rows, err := fx.svc.QueryByFounder(ctx, founderID)
	if err != nil {
		t.Fatalf("querying progress: %v", err)
	}
	for _, p := range rows {
		if p.StageNumber == stageNumber {
			return p.Status
		}
	}
	return stage.StatusLocked
}

func (fx *fixture) currentStage(t *testing.T) int {
	t.Helper()
	state, err := fx.founders.GetState(ctx, founderID)
	if err != nil {
		t.Fatalf("getting state: %v", err)
	}
	return state.CurrentStage
}

// approveAndAdvance records mentor approval on the current stage; the ladder
// re-evaluates as part of the call.
func (fx *fixture) approve(t *testing.T) {
	t.Helper()
	if err := fx.svc.ApproveMentor(ctx, founderID, "mentor-1"); err != nil {
		t.Fatalf("ApproveMentor() error = %v", err)
	}
}

func baseFounder() founder.Founder {
	return founder.Founder{
		ID:              founderID,
		Name:            "Amina Diallo",
		Email:           "amina@example.com",
		MentorEmail:     "mentor@example.com",
		BaselineRevenue: 1000,
	}
}

func TestStageOneNeedsTwoValidReports(t *testing.T) {
	fx := newFixture(t, baseFounder())

	fx.addReport(t, 500)
	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := fx.stageStatus(t, 1); got != stage.StatusInProgress {
		t.Errorf("stage 1 = %s after one report, want %s", got, stage.StatusInProgress)
	}

	fx.addReport(t, 700)
	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := fx.stageStatus(t, 1); got != stage.StatusComplete {
		t.Errorf("stage 1 = %s after two reports, want %s", got, stage.StatusComplete)
	}
	if got := fx.stageStatus(t, 2); got != stage.StatusInProgress {
		t.Errorf("stage 2 = %s, want %s", got, stage.StatusInProgress)
	}
	if got := fx.currentStage(t); got != 2 {
		t.Errorf("current stage = %d, want 2", got)
	}
	if got := fx.notifs.byType(notification.EventStageAdvanced); len(got) != 1 {
		t.Errorf("stage_advanced intents = %d, want 1", len(got))
	}
}

func TestStageAdvancedIntentPayload(t *testing.T) {
	fx := newFixture(t, baseFounder())

	fx.addReport(t, 500)
	fx.addReport(t, 700)
	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	// the email body reads both keys: the stage just completed and the one
	// now in progress
	got := fx.notifs.byType(notification.EventStageAdvanced)
	if len(got) != 1 {
		t.Fatalf("stage_advanced intents = %d, want 1", len(got))
	}
	if completed := got[0].Payload["completed"]; completed != 1 {
		t.Errorf("payload completed = %v, want 1", completed)
	}
	if next := got[0].Payload["stage"]; next != 2 {
		t.Errorf("payload stage = %v, want 2", next)
	}
}

func TestRejectedReportsDoNotCount(t *testing.T) {
	fx := newFixture(t, baseFounder())

	fx.addReport(t, 500)
	if _, err := fx.reports.UpsertReport(ctx, cycle.Report{
		FounderID: founderID, WeekNumber: fx.nextWeek, RevenueGenerated: 900,
		HoursSpent: 30, Status: cycle.ReportRejected,
	}); err != nil {
		t.Fatalf("storing rejected report: %v", err)
	}
	fx.nextWeek++

	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := fx.stageStatus(t, 1); got != stage.StatusInProgress {
		t.Errorf("stage 1 = %s, want %s (rejected report counted)", got, stage.StatusInProgress)
	}
}

func TestStageTwoNeedsMentorApproval(t *testing.T) {
	fx := newFixture(t, baseFounder())
	fx.addReport(t, 500)
	fx.addReport(t, 700)
	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	// more reports alone do nothing on stage 2
	fx.addReport(t, 800)
	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := fx.currentStage(t); got != 2 {
		t.Fatalf("current stage = %d, want 2", got)
	}

	fx.approve(t)
	if got := fx.stageStatus(t, 2); got != stage.StatusComplete {
		t.Errorf("stage 2 = %s after approval, want %s", got, stage.StatusComplete)
	}
	if got := fx.currentStage(t); got != 3 {
		t.Errorf("current stage = %d, want 3", got)
	}
}

func TestStageThreeRevenueRatio(t *testing.T) {
	tests := []struct {
		name      string
		baseline  float64
		revenues  []float64 // all accepted reports, in week order
		wantStage int
	}{
		// the ratio reads the rolling average of the last 3 reports
		{"ratio exactly 2.0 advances", 1000, []float64{2000, 2000, 2000}, 4},
		{"ratio just under stays", 1000, []float64{2000, 2000, 1999}, 3},
		{"ratio well over advances", 1000, []float64{1000, 3000, 3500}, 4},
		{"window not full stays", 1000, []float64{5000, 5000}, 3},
		{"zero baseline never advances", 0, []float64{5000, 5000, 5000}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := baseFounder()
			f.BaselineRevenue = tt.baseline
			fx := newFixture(t, f)

			// the first two reports also clear stage 1; mentor approval
			// clears stage 2
			for _, rev := range tt.revenues[:2] {
				fx.addReport(t, rev)
			}
			if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			fx.approve(t)
			if got := fx.currentStage(t); got != 3 {
				t.Fatalf("current stage = %d, want 3 before the ratio check", got)
			}

			for _, rev := range tt.revenues[2:] {
				fx.addReport(t, rev)
			}
			if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got := fx.currentStage(t); got != tt.wantStage {
				t.Errorf("current stage = %d, want %d", got, tt.wantStage)
			}
		})
	}
}

// runToStage4 walks a fresh founder to stage 4 with a doubled rolling average.
func runToStage4(t *testing.T, f founder.Founder) *fixture {
	t.Helper()
	fx := newFixture(t, f)

	fx.addReport(t, 2000)
	fx.addReport(t, 2000)
	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	fx.approve(t)
	fx.addReport(t, 2000)
	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := fx.currentStage(t); got != 4 {
		t.Fatalf("current stage = %d, want 4", got)
	}
	return fx
}

func TestStageFourNeedsRSDAndApproval(t *testing.T) {
	fx := runToStage4(t, baseFounder())

	// full RSD alone is not enough
	if err := fx.svc.SubmitRSD(ctx, founderID, 100); err != nil {
		t.Fatalf("SubmitRSD() error = %v", err)
	}
	if got := fx.currentStage(t); got != 4 {
		t.Fatalf("current stage = %d, want 4 without mentor approval", got)
	}

	fx.approve(t)
	if got := fx.currentStage(t); got != 5 {
		t.Errorf("current stage = %d, want 5", got)
	}
	if got := fx.stageStatus(t, 4); got != stage.StatusComplete {
		t.Errorf("stage 4 = %s, want %s", got, stage.StatusComplete)
	}
}

func TestStageFourPartialRSDStays(t *testing.T) {
	fx := runToStage4(t, baseFounder())

	if err := fx.svc.SubmitRSD(ctx, founderID, 90); err != nil {
		t.Fatalf("SubmitRSD() error = %v", err)
	}
	fx.approve(t)
	if got := fx.currentStage(t); got != 4 {
		t.Errorf("current stage = %d, want 4 at 90%% RSD", got)
	}
}

func TestSubmitRSDValidation(t *testing.T) {
	fx := newFixture(t, baseFounder())

	for _, completion := range []float64{-1, 101} {
		err := fx.svc.SubmitRSD(ctx, founderID, completion)
		if _, ok := err.(*core.ValidationError); !ok {
			t.Errorf("SubmitRSD(%v) error = %v, want *core.ValidationError", completion, err)
		}
	}
}

func TestGraduation(t *testing.T) {
	f := baseFounder()
	f.ExitInterviewDone = true
	fx := runToStage4(t, f)

	if err := fx.svc.SubmitRSD(ctx, founderID, 100); err != nil {
		t.Fatalf("SubmitRSD() error = %v", err)
	}
	fx.approve(t)
	if got := fx.currentStage(t); got != 5 {
		t.Fatalf("current stage = %d, want 5", got)
	}

	// push the rolling average to 4x the baseline
	fx.addReport(t, 4000)
	fx.addReport(t, 4000)
	fx.addReport(t, 4000)

	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerWeek12); err != nil {
		t.Fatalf("Evaluate(week12) error = %v", err)
	}

	if got := fx.stageStatus(t, 5); got != stage.StatusComplete {
		t.Errorf("stage 5 = %s, want %s", got, stage.StatusComplete)
	}
	state, err := fx.founders.GetState(ctx, founderID)
	if err != nil {
		t.Fatalf("getting state: %v", err)
	}
	if state.Active() {
		t.Error("state still active after graduation")
	}
	grads := fx.notifs.byType(notification.EventGraduated)
	if len(grads) != 1 || !grads[0].Urgent {
		t.Errorf("graduated intents = %+v, want one urgent intent", grads)
	}
}

func TestGraduationBlockedWithoutExitInterview(t *testing.T) {
	fx := runToStage4(t, baseFounder()) // ExitInterviewDone is false

	if err := fx.svc.SubmitRSD(ctx, founderID, 100); err != nil {
		t.Fatalf("SubmitRSD() error = %v", err)
	}
	fx.approve(t)
	fx.addReport(t, 4000)
	fx.addReport(t, 4000)
	fx.addReport(t, 4000)

	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerWeek12); err != nil {
		t.Fatalf("Evaluate(week12) error = %v", err)
	}
	if got := fx.stageStatus(t, 5); got != stage.StatusInProgress {
		t.Errorf("stage 5 = %s, want %s without the exit interview", got, stage.StatusInProgress)
	}
}

func TestReportTriggerNeverFiresStageFive(t *testing.T) {
	f := baseFounder()
	f.ExitInterviewDone = true
	fx := runToStage4(t, f)

	if err := fx.svc.SubmitRSD(ctx, founderID, 100); err != nil {
		t.Fatalf("SubmitRSD() error = %v", err)
	}
	fx.approve(t)

	fx.addReport(t, 4000)
	fx.addReport(t, 4000)
	fx.addReport(t, 4000)

	// graduation only fires on the week-12 check or a manual run
	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerReport); err != nil {
		t.Fatalf("Evaluate(report) error = %v", err)
	}
	if got := fx.stageStatus(t, 5); got != stage.StatusInProgress {
		t.Fatalf("stage 5 = %s, want %s on a report trigger", got, stage.StatusInProgress)
	}

	if err := fx.svc.Evaluate(ctx, founderID, stage.TriggerManual); err != nil {
		t.Fatalf("Evaluate(manual) error = %v", err)
	}
	if got := fx.stageStatus(t, 5); got != stage.StatusComplete {
		t.Errorf("stage 5 = %s, want %s on a manual run", got, stage.StatusComplete)
	}
}

func TestApproveMentorWithoutStageInFly(t *testing.T) {
	conf := &core.Config{TestMode: true, Program: core.ProgramConfig{Timezone: "Africa/Lagos"}}
	clock := core.ClockFunc(func() time.Time { return time.Now() })
	db := inmemdb.Open()
	db.AddFounder(baseFounder())
	auditor := audit.NewWriter(inmemdb.NewAuditRepository(db), clock, core.NopLogger{})
	notifs := &intentRecorder{}
	founders := founder.NewService(
		inmemdb.NewFounderRepository(db), notifs, inmemdb.NewNotificationRepository(db), auditor, clock, conf,
	)
	svc := stage.NewService(
		inmemdb.NewStageRepository(db), inmemdb.NewCycleRepository(db), founders,
		inmemdb.NewFounderDirectory(db), notifs, auditor, clock, conf, core.NopLogger{},
	)

	// never initialized
	if err := svc.ApproveMentor(ctx, founderID, "mentor-1"); err != stage.ErrNoStageInFly {
		t.Errorf("ApproveMentor() error = %v, want %v", err, stage.ErrNoStageInFly)
	}
}
