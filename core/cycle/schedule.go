package cycle

import "time"

// TickKind identifies one of the six fixed wall-clock instants that drive
// scheduler transitions, in weekly order.
type TickKind string

const (
	TickWeekStart      TickKind = "week_start"      // Monday 00:00
	TickCommitDeadline TickKind = "commit_deadline" // Monday 09:00
	TickReportWindow   TickKind = "report_window"   // Friday 12:00
	TickReportDeadline TickKind = "report_deadline" // Friday 18:00
	TickDiagnosisEnd   TickKind = "diagnosis_end"   // Saturday 00:00
	TickAdjustDeadline TickKind = "adjust_deadline" // Sunday 18:00
)

// Tick is a concrete instant of a TickKind for one week.
type Tick struct {
	Kind TickKind
	At   time.Time
}

// Schedule pins the weekly workflow to a fixed timezone. Every deadline and
// tick is computed here and nowhere else.
type Schedule struct {
	loc *time.Location
}

func NewSchedule(loc *time.Location) Schedule {
	return Schedule{loc: loc}
}

func (s Schedule) Location() *time.Location { return s.loc }

// WeekStart returns Monday 00:00 of t's week in the program timezone.
func (s Schedule) WeekStart(t time.Time) time.Time {
	t = t.In(s.loc)
	daysBack := (int(t.Weekday()) + 6) % 7 // Monday -> 0, Sunday -> 6
	monday := t.AddDate(0, 0, -daysBack)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, s.loc)
}

func (s Schedule) at(weekStart time.Time, days, hours int) time.Time {
	d := weekStart.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), hours, 0, 0, 0, s.loc)
}

// CommitDeadline is Monday 09:00 of the given week.
func (s Schedule) CommitDeadline(weekStart time.Time) time.Time { return s.at(weekStart, 0, 9) }

// ReportWindow opens Friday 12:00.
func (s Schedule) ReportWindow(weekStart time.Time) time.Time { return s.at(weekStart, 4, 12) }

// ReportDeadline is Friday 18:00.
func (s Schedule) ReportDeadline(weekStart time.Time) time.Time { return s.at(weekStart, 4, 18) }

// DiagnosisEnd is Saturday 00:00.
func (s Schedule) DiagnosisEnd(weekStart time.Time) time.Time { return s.at(weekStart, 5, 0) }

// AdjustDeadline is Sunday 18:00.
func (s Schedule) AdjustDeadline(weekStart time.Time) time.Time { return s.at(weekStart, 6, 18) }

// Ticks returns the week's six ticks in strict wall-clock order. The driver
// must fire them in this order and never skip ahead.
func (s Schedule) Ticks(weekStart time.Time) []Tick {
	return []Tick{
		{TickWeekStart, weekStart},
		{TickCommitDeadline, s.CommitDeadline(weekStart)},
		{TickReportWindow, s.ReportWindow(weekStart)},
		{TickReportDeadline, s.ReportDeadline(weekStart)},
		{TickDiagnosisEnd, s.DiagnosisEnd(weekStart)},
		{TickAdjustDeadline, s.AdjustDeadline(weekStart)},
	}
}

// NextTick returns the first tick strictly after now, looking into the next
// week when the current week's ticks are exhausted.
func (s Schedule) NextTick(now time.Time) Tick {
	weekStart := s.WeekStart(now)
	for _, tick := range s.Ticks(weekStart) {
		if tick.At.After(now) {
			return tick
		}
	}
	return Tick{TickWeekStart, weekStart.AddDate(0, 0, 7)}
}

// ElapsedTicks returns the ticks whose instant is at or before now, in order,
// starting from the previous week so an outage crossing the Monday boundary
// still replays the lost ticks. Used for idempotent catch-up after a restart;
// replayed ticks only fire on instances whose own instant has been reached.
func (s Schedule) ElapsedTicks(now time.Time) []Tick {
	weekStart := s.WeekStart(now)
	ticks := append(s.Ticks(weekStart.AddDate(0, 0, -7)), s.Ticks(weekStart)...)
	var elapsed []Tick
	for _, tick := range ticks {
		if !tick.At.After(now) {
			elapsed = append(elapsed, tick)
		}
	}
	return elapsed
}

// NewInstance builds the week's Instance for a founder with all deadlines
// pinned to the schedule.
func (s Schedule) NewInstance(founderID string, weekNumber int, weekStart time.Time, now time.Time) Instance {
	return Instance{
		FounderID:      founderID,
		WeekNumber:     weekNumber,
		Phase:          PhasePendingCommit,
		WeekStart:      weekStart,
		CommitDeadline: s.CommitDeadline(weekStart),
		ReportDeadline: s.ReportDeadline(weekStart),
		AdjustDeadline: s.AdjustDeadline(weekStart),
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
}
