package cycle

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)

func instAt(phase Phase) Instance {
	return Instance{
		FounderID:  "fd-1",
		WeekNumber: 1,
		Phase:      phase,
	}
}

func TestApplySubmissions(t *testing.T) {
	tests := []struct {
		name      string
		phase     Phase
		event     Event
		wantPhase Phase
		wantErr   error
	}{
		{"commit on pending_commit", PhasePendingCommit, EventCommit, PhaseExecuting, nil},
		{"commit on executing", PhaseExecuting, EventCommit, PhaseExecuting, ErrInvalidTransition},
		{"commit on pending_report", PhasePendingReport, EventCommit, PhasePendingReport, ErrInvalidTransition},
		{"report on pending_report", PhasePendingReport, EventReport, PhaseDiagnosing, nil},
		{"report on executing", PhaseExecuting, EventReport, PhaseExecuting, ErrInvalidTransition},
		{"report on adjusting", PhaseAdjusting, EventReport, PhaseAdjusting, ErrInvalidTransition},
		{"adjust on adjusting", PhaseAdjusting, EventAdjust, PhaseComplete, nil},
		{"adjust on diagnosing", PhaseDiagnosing, EventAdjust, PhaseDiagnosing, ErrInvalidTransition},
		{"commit on complete", PhaseComplete, EventCommit, PhaseComplete, ErrInvalidTransition},
		{"report on missed", PhaseMissed, EventReport, PhaseMissed, ErrInvalidTransition},
		{"adjust on missed", PhaseMissed, EventAdjust, PhaseMissed, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(instAt(tt.phase), tt.event, testNow)
			if err != tt.wantErr {
				t.Errorf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if got.Phase != tt.wantPhase {
				t.Errorf("Apply() phase = %s, want %s", got.Phase, tt.wantPhase)
			}
		})
	}
}

func TestApplySubmissionsStampTime(t *testing.T) {
	got, err := Apply(instAt(PhasePendingCommit), EventCommit, testNow)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !got.CommitSubmittedAt.Valid || !got.CommitSubmittedAt.Time.Equal(testNow) {
		t.Errorf("CommitSubmittedAt = %v, want %v", got.CommitSubmittedAt, testNow)
	}
	if !got.UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, testNow)
	}
}

func TestApplyTicks(t *testing.T) {
	tests := []struct {
		name      string
		phase     Phase
		event     Event
		wantPhase Phase
		wantErr   error
	}{
		{"commit deadline on pending_commit", PhasePendingCommit, EventCommitDeadline, PhaseMissed, nil},
		{"commit deadline on executing", PhaseExecuting, EventCommitDeadline, PhaseExecuting, ErrNoChange},
		{"report window on executing", PhaseExecuting, EventReportWindow, PhasePendingReport, nil},
		{"report window on pending_report", PhasePendingReport, EventReportWindow, PhasePendingReport, ErrNoChange},
		{"report deadline on pending_report", PhasePendingReport, EventReportDeadline, PhaseMissed, nil},
		{"report deadline on diagnosing", PhaseDiagnosing, EventReportDeadline, PhaseDiagnosing, ErrNoChange},
		{"diagnosis end on diagnosing", PhaseDiagnosing, EventDiagnosisEnd, PhaseAdjusting, nil},
		{"diagnosis end on adjusting", PhaseAdjusting, EventDiagnosisEnd, PhaseAdjusting, ErrNoChange},
		{"adjust deadline on adjusting", PhaseAdjusting, EventAdjustDeadline, PhaseComplete, nil},
		{"adjust deadline on pending_commit", PhasePendingCommit, EventAdjustDeadline, PhasePendingCommit, ErrNoChange},
		{"any tick on complete", PhaseComplete, EventCommitDeadline, PhaseComplete, ErrNoChange},
		{"any tick on missed", PhaseMissed, EventReportDeadline, PhaseMissed, ErrNoChange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(instAt(tt.phase), tt.event, testNow)
			if err != tt.wantErr {
				t.Errorf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if got.Phase != tt.wantPhase {
				t.Errorf("Apply() phase = %s, want %s", got.Phase, tt.wantPhase)
			}
		})
	}
}

func TestApplyNeverDecreasesRank(t *testing.T) {
	phases := []Phase{
		PhasePendingCommit, PhaseExecuting, PhasePendingReport,
		PhaseDiagnosing, PhaseAdjusting, PhaseComplete, PhaseMissed,
	}
	events := []Event{
		EventCommit, EventReport, EventAdjust,
		EventCommitDeadline, EventReportWindow, EventReportDeadline,
		EventDiagnosisEnd, EventAdjustDeadline,
	}

	for _, phase := range phases {
		for _, ev := range events {
			got, _ := Apply(instAt(phase), ev, testNow)
			if got.Phase.Rank() < phase.Rank() {
				t.Errorf("Apply(%s, %s) went backwards: %s", phase, ev, got.Phase)
			}
		}
	}
}

func TestDiagnose(t *testing.T) {
	tests := []struct {
		name       string
		revenue    float64
		hours      float64
		target     float64
		wantPerHr  float64
		wantWinPct float64
	}{
		{"normal", 1200, 40, 1000, 30, 120},
		{"under target", 500, 25, 1000, 20, 50},
		{"zero hours", 800, 0, 1000, 0, 80},
		{"negative hours", 800, -3, 1000, 0, 80},
		{"zero target", 800, 40, 0, 20, 0},
		{"all zero", 0, 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diagnose(Report{RevenueGenerated: tt.revenue, HoursSpent: tt.hours}, tt.target)
			if got.DollarPerHour != tt.wantPerHr {
				t.Errorf("DollarPerHour = %v, want %v", got.DollarPerHour, tt.wantPerHr)
			}
			if got.WinRate != tt.wantWinPct {
				t.Errorf("WinRate = %v, want %v", got.WinRate, tt.wantWinPct)
			}
		})
	}
}
