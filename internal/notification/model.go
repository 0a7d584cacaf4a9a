// Package notification renders and dispatches customer emails, keeping
// an archive of every attempt.
package notification

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// SentEmail archives a dispatch attempt for downstream reconciliation.
type SentEmail struct {
	ID           snowflake.ID  `gorm:"primaryKey"`
	OrderID      *snowflake.ID `gorm:"column:order_id"`
	Recipient    string        `gorm:"column:recipient;type:text;not null"`
	Subject      string        `gorm:"column:subject;type:text;not null"`
	Status       string        `gorm:"column:status;type:text;not null"`
	ErrorMessage string        `gorm:"column:error_message;type:text;not null;default:''"`
	CreatedAt    time.Time     `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SentEmail) TableName() string { return "sent_emails" }
