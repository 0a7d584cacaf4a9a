// Package domain contains core types for payment webhook processing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord archives every verified webhook delivery. The unique
// (provider, event_id) pair keeps redeliveries out of the log.
type EventRecord struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider   string         `json:"provider" gorm:"type:text;not null"`
	EventID    string         `json:"event_id" gorm:"type:text;not null"`
	EventType  string         `json:"event_type" gorm:"type:text;not null"`
	Payload    datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ReceivedAt time.Time      `json:"received_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_webhook_events" }

// CheckoutEvent is the canonical completed-checkout event parsed by
// adapters. AmountTotal is in minor currency units as delivered by the
// processor.
type CheckoutEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PaymentIntentID string
	PartnerCode     string
	PartnerUserID   string
	CustomerEmail   string
	AmountTotal     int64
	Currency        string
	Cart            []byte
	OccurredAt      time.Time
	RawPayload      []byte
}
