package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wakora/hatua/core"
)

type (
	Repository interface {
		// CreateRecord returns ErrDuplicate when a record with the same key exists.
		CreateRecord(ctx context.Context, record Record) (Record, error)
		MarkRecordDelivered(ctx context.Context, id string, at time.Time, attempts int) error
		MarkRecordFailed(ctx context.Context, id string, attempts int) error
		QueryRecordsByFounder(ctx context.Context, founderID string) ([]Record, error)

		CreateIntervention(ctx context.Context, iv Intervention) (Intervention, error)
		QueryInterventionsByFounder(ctx context.Context, founderID string) ([]Intervention, error)
	}

	// RecipientResolver maps a founder to the addresses a given event goes to
	// (founder + mentors). Injected at wiring so this package stays ignorant
	// of the founder directory.
	RecipientResolver func(ctx context.Context, founderID string) ([]mail.Address, error)

	// Dispatcher turns transition intents into at-least-once email deliveries.
	// Emit is cheap and non-blocking for the caller; a worker goroutine drains
	// the queue with bounded-backoff retries. Duplicate intents (same
	// event/founder/week key) are dropped before they reach the queue.
	Dispatcher struct {
		repo    Repository
		mailSvc core.EmailService
		resolve RecipientResolver
		clock   core.Clock
		logger  core.Logger
		conf    *core.Config

		maxAttempts int
		backoff     time.Duration

		queue chan Record
		wg    sync.WaitGroup
		once  sync.Once
	}
)

const defaultQueueSize = 256

func NewDispatcher(
	repo Repository,
	mailSvc core.EmailService,
	resolve RecipientResolver,
	clock core.Clock,
	logger core.Logger,
	conf *core.Config,
) *Dispatcher {
	d := &Dispatcher{
		repo:        repo,
		mailSvc:     mailSvc,
		resolve:     resolve,
		clock:       clock,
		logger:      logger,
		conf:        conf,
		maxAttempts: 3,
		backoff:     2 * time.Second,
		queue:       make(chan Record, defaultQueueSize),
	}
	if conf.TestMode {
		d.backoff = time.Millisecond
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Emit records the intent and queues it for delivery. A duplicate key is a
// no-op. Errors creating the record are logged, never returned: notification
// is a side effect, not a gate on the transition that raised it.
func (d *Dispatcher) Emit(ctx context.Context, intent Intent) {
	payload, err := json.Marshal(intent.Payload)
	if err != nil {
		d.logger.Error(fmt.Sprintf("marshalling notification payload %s: %v", intent.Key(), err), err)
		payload = []byte("{}")
	}

	record := Record{
		ID:         uuid.New().String(),
		Key:        intent.Key(),
		EventType:  intent.EventType,
		FounderID:  intent.FounderID,
		WeekNumber: intent.WeekNumber,
		Payload:    string(payload),
		Urgent:     intent.Urgent,
		CreatedAt:  d.clock.Now().UTC(),
	}

	record, err = d.repo.CreateRecord(ctx, record)
	if err != nil {
		if errors.Cause(err) == ErrDuplicate {
			return // already emitted; retried ticks land here
		}
		d.logger.Error(fmt.Sprintf("recording notification %s: %v", intent.Key(), err), err)
		return
	}

	select {
	case d.queue <- record:
	default:
		// queue full; spill onto a side goroutine so the caller never waits
		// through delivery attempts
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(record)
		}()
	}
}

// Close drains the queue and stops the worker.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for record := range d.queue {
		d.deliver(record)
	}
}

func (d *Dispatcher) deliver(record Record) {
	ctx := context.Background()

	to, err := d.resolve(ctx, record.FounderID)
	if err != nil {
		d.logger.Error(fmt.Sprintf("resolving recipients for %s: %v", record.Key, err), err)
		if err := d.repo.MarkRecordFailed(ctx, record.ID, record.Attempts); err != nil {
			d.logger.Error(fmt.Sprintf("marking notification %s failed: %v", record.Key, err), err)
		}
		return
	}

	msg := d.compose(record, to)

	attempts := record.Attempts
	for attempts < d.maxAttempts {
		attempts++
		if err = d.mailSvc.SendMessage(msg); err == nil {
			if err = d.repo.MarkRecordDelivered(ctx, record.ID, d.clock.Now().UTC(), attempts); err != nil {
				d.logger.Error(fmt.Sprintf("marking notification %s delivered: %v", record.Key, err), err)
			}
			return
		}
		d.logger.Warn(fmt.Sprintf("delivering notification %s (attempt %d/%d): %v",
			record.Key, attempts, d.maxAttempts, err), err)
		if attempts < d.maxAttempts {
			time.Sleep(d.backoff * time.Duration(attempts))
		}
	}

	d.logger.Error(fmt.Sprintf("giving up on notification %s after %d attempts", record.Key, attempts), err)
	if err := d.repo.MarkRecordFailed(ctx, record.ID, attempts); err != nil {
		d.logger.Error(fmt.Sprintf("marking notification %s failed: %v", record.Key, err), err)
	}
}

func (d *Dispatcher) compose(record Record, to []mail.Address) *core.EmailMessage {
	subject, body := renderEvent(record)
	if record.Urgent {
		subject = "URGENT: " + subject
	}
	msg := &core.EmailMessage{
		To:      to,
		Subject: subject,
		BodyStr: body,
	}
	_ = msg.Render(d.conf)
	return msg
}

func renderEvent(record Record) (subject, body string) {
	var payload map[string]interface{}
	_ = json.Unmarshal([]byte(record.Payload), &payload)

	switch record.EventType {
	case EventMissedCommit:
		return fmt.Sprintf("Week %d commitment missed", record.WeekNumber),
			fmt.Sprintf("No weekly commitment was submitted before the Monday 09:00 deadline for week %d.", record.WeekNumber)
	case EventMissedReport:
		return fmt.Sprintf("Week %d report missed", record.WeekNumber),
			fmt.Sprintf("No weekly report was submitted before the Friday 18:00 deadline for week %d.", record.WeekNumber)
	case EventAccountLocked:
		return "Account locked: removal review",
			"Two consecutive misses. The account is locked pending removal review; contact your mentor."
	case EventUnlocked:
		return "Account unlocked",
			fmt.Sprintf("The account has been unlocked. Rationale: %v", payload["rationale"])
	case EventStageAdvanced:
		return fmt.Sprintf("Stage %v unlocked", payload["stage"]),
			fmt.Sprintf("Stage %v is complete; stage %v is now in progress.", payload["completed"], payload["stage"])
	case EventGraduated:
		return "Program complete",
			"All graduation requirements are met. Congratulations."
	case EventWeekComplete:
		return fmt.Sprintf("Week %d complete", record.WeekNumber),
			fmt.Sprintf("Week %d closed with commitment, report and adjustment all in.", record.WeekNumber)
	default:
		return record.EventType, record.Payload
	}
}

// QueryRecords lists the delivery facts for a founder, newest first.
func (d *Dispatcher) QueryRecords(ctx context.Context, founderID string) ([]Record, error) {
	return d.repo.QueryRecordsByFounder(ctx, founderID)
}

// QueryInterventions lists the intervention records for a founder.
func (d *Dispatcher) QueryInterventions(ctx context.Context, founderID string) ([]Intervention, error) {
	return d.repo.QueryInterventionsByFounder(ctx, founderID)
}
