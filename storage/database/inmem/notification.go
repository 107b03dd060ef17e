package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/wakora/hatua/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notifications}
}

func (repo *notificationRepository) CreateRecord(ctx context.Context, record notification.Record) (notification.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.records[record.Key]; ok {
		return notification.Record{}, notification.ErrDuplicate
	}
	record.ID = uuid.New().String()
	repo.db.records[record.Key] = &record
	return record, nil
}

func (repo *notificationRepository) MarkRecordDelivered(ctx context.Context, id string, at time.Time, attempts int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, record := range repo.db.records {
		if record.ID == id {
			record.Delivered = true
			record.DeliveredAt = null.TimeFrom(at)
			record.Attempts = attempts
			return nil
		}
	}
	return notification.ErrNotFound
}

func (repo *notificationRepository) MarkRecordFailed(ctx context.Context, id string, attempts int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, record := range repo.db.records {
		if record.ID == id {
			record.Delivered = false
			record.Attempts = attempts
			return nil
		}
	}
	return notification.ErrNotFound
}

func (repo *notificationRepository) QueryRecordsByFounder(ctx context.Context, founderID string) ([]notification.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]notification.Record, 0)
	for _, record := range repo.db.records {
		if record.FounderID == founderID {
			records = append(records, *record)
		}
	}
	return records, nil
}

func (repo *notificationRepository) CreateIntervention(ctx context.Context, iv notification.Intervention) (notification.Intervention, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	iv.ID = uuid.New().String()
	repo.db.interventions = append(repo.db.interventions, iv)
	return iv, nil
}

func (repo *notificationRepository) QueryInterventionsByFounder(ctx context.Context, founderID string) ([]notification.Intervention, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ivs := make([]notification.Intervention, 0)
	for _, iv := range repo.db.interventions {
		if iv.FounderID == founderID {
			ivs = append(ivs, iv)
		}
	}
	return ivs, nil
}
