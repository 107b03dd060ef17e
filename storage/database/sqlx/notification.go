package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/wakora/hatua/core/notification"
)

const uniqueViolation = "23505"

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateRecord(ctx context.Context, record notification.Record) (notification.Record, error) {
	record.ID = uuid.New().String()
	const q = `
INSERT INTO notification_record
    (id, key, event_type, founder_id, week_number, payload, urgent, delivered, attempts, created_at, delivered_at)
VALUES
    (:id, :key, :event_type, :founder_id, :week_number, :payload, :urgent, :delivered, :attempts, :created_at, :delivered_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, record); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return notification.Record{}, notification.ErrDuplicate
		}
		return notification.Record{}, errors.Wrap(err, "inserting notification record")
	}
	return record, nil
}

func (repo *notificationRepository) MarkRecordDelivered(ctx context.Context, id string, at time.Time, attempts int) error {
	const q = `UPDATE notification_record SET delivered = TRUE, delivered_at = $2, attempts = $3 WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, q, id, at, attempts); err != nil {
		return errors.Wrap(err, "marking record delivered")
	}
	return nil
}

func (repo *notificationRepository) MarkRecordFailed(ctx context.Context, id string, attempts int) error {
	const q = `UPDATE notification_record SET delivered = FALSE, attempts = $2 WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, q, id, attempts); err != nil {
		return errors.Wrap(err, "marking record failed")
	}
	return nil
}

func (repo *notificationRepository) QueryRecordsByFounder(ctx context.Context, founderID string) ([]notification.Record, error) {
	const q = `SELECT * FROM notification_record WHERE founder_id = $1 ORDER BY created_at`
	records := make([]notification.Record, 0)
	if err := repo.db.SelectContext(ctx, &records, q, founderID); err != nil {
		return nil, errors.Wrap(err, "querying notification records")
	}
	return records, nil
}

func (repo *notificationRepository) CreateIntervention(ctx context.Context, iv notification.Intervention) (notification.Intervention, error) {
	iv.ID = uuid.New().String()
	const q = `
INSERT INTO intervention_record (id, founder_id, reason, week_number, triggered_at)
VALUES (:id, :founder_id, :reason, :week_number, :triggered_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, iv); err != nil {
		return notification.Intervention{}, errors.Wrap(err, "inserting intervention")
	}
	return iv, nil
}

func (repo *notificationRepository) QueryInterventionsByFounder(ctx context.Context, founderID string) ([]notification.Intervention, error) {
	const q = `SELECT * FROM intervention_record WHERE founder_id = $1 ORDER BY triggered_at`
	ivs := make([]notification.Intervention, 0)
	if err := repo.db.SelectContext(ctx, &ivs, q, founderID); err != nil {
		return nil, errors.Wrap(err, "querying interventions")
	}
	return ivs, nil
}
