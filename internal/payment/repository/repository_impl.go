package repository

import (
	"context"

	"github.com/fenuasim/portal/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) InsertEvent(ctx context.Context, event *domain.EventRecord) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO payment_webhook_events (
			id, provider, event_id, event_type, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.EventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
