// Package domain contains core types for partner attribution.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Profile links a portal user to the partner code stamped on the
// payments they originate.
type Profile struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	UserID      snowflake.ID `gorm:"column:user_id;not null;uniqueIndex"`
	PartnerCode string       `gorm:"column:partner_code;type:text;not null;uniqueIndex"`
	CompanyName string       `gorm:"column:company_name;type:text;not null;default:''"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Profile) TableName() string { return "partner_profiles" }
