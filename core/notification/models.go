package notification

import (
	"errors"
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"
)

// Event types
const (
	EventMissedCommit  = "missed_commit"
	EventMissedReport  = "missed_report"
	EventAccountLocked = "account_locked"
	EventUnlocked      = "account_unlocked"
	EventStageAdvanced = "stage_advanced"
	EventGraduated     = "graduated"
	EventWeekComplete  = "week_complete"
)

// Intervention reasons
const (
	ReasonRemovalReview     = "removal_review"
	ReasonConsecutiveMisses = "consecutive_misses"
)

var (
	ErrDuplicate = errors.New("notification already emitted for this key")
	ErrNotFound  = errors.New("notification not found")
)

// Intent is what a state transition enqueues. The dispatcher owns delivery;
// the transition never waits for it.
type Intent struct {
	EventType  string
	FounderID  string
	WeekNumber int
	Payload    map[string]interface{}
	Urgent     bool
}

// Key is the idempotency key: a retried scheduler tick re-emitting the same
// intent must not produce a second email.
func (i Intent) Key() string {
	return fmt.Sprintf("%s:%s:%d", i.EventType, i.FounderID, i.WeekNumber)
}

// Record is the append-only delivery fact for one Intent. Only the delivery
// acknowledgement fields are ever updated after creation.
type Record struct {
	ID          string    `db:"id" json:"id"`
	Key         string    `db:"key" json:"key"`
	EventType   string    `db:"event_type" json:"event_type"`
	FounderID   string    `db:"founder_id" json:"founder_id"`
	WeekNumber  int       `db:"week_number" json:"week_number"`
	Payload     string    `db:"payload" json:"payload"` // JSON
	Urgent      bool      `db:"urgent" json:"urgent"`
	Delivered   bool      `db:"delivered" json:"delivered"`
	Attempts    int       `db:"attempts" json:"attempts"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"` // UTC
	DeliveredAt null.Time `db:"delivered_at" json:"delivered_at"`
}

// Intervention is an append-only escalation fact (e.g. removal review at two
// consecutive misses).
type Intervention struct {
	ID          string    `db:"id" json:"id"`
	FounderID   string    `db:"founder_id" json:"founder_id"`
	Reason      string    `db:"reason" json:"reason"`
	WeekNumber  int       `db:"week_number" json:"week_number"`
	TriggeredAt time.Time `db:"triggered_at" json:"triggered_at"` // UTC
}
