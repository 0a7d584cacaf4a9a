// Package domain contains core types for reconciled orders.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusPaid = "paid"
	// StatusBackOffice marks orders provisioned directly by staff, with
	// no payment intent behind them.
	StatusBackOffice = "back_office"

	// Fulfillment lifecycle. Orders start pending, become completed
	// after provisioning and notification, and fall back to manual when
	// automation gives up.
	FulfillmentPending   = "pending"
	FulfillmentCompleted = "completed"
	FulfillmentManual    = "manual"
)

// Order is created exactly once per payment intent. Amounts are stored
// in major currency units with two decimals.
type Order struct {
	ID                    snowflake.ID   `gorm:"primaryKey"`
	StripePaymentIntentID string         `gorm:"column:stripe_payment_intent_id;type:text;not null;uniqueIndex"`
	PartnerCode           *string        `gorm:"column:partner_code;type:text"`
	CustomerEmail         string         `gorm:"column:customer_email;type:text;not null;default:''"`
	TotalAmount           float64        `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency              string         `gorm:"column:currency;type:text;not null"`
	Status                string         `gorm:"column:status;type:text;not null"`
	FulfillmentStatus     string         `gorm:"column:fulfillment_status;type:text;not null;default:'pending'"`
	Cart                  datatypes.JSON `gorm:"column:cart;type:jsonb"`
	CreatedAt             time.Time      `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// ProvisionedSim records the upstream SIM issued for an order. The
// unique order_id row guards against double provisioning.
type ProvisionedSim struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	OrderID         snowflake.ID `gorm:"column:order_id;not null;uniqueIndex"`
	ProviderOrderID string       `gorm:"column:provider_order_id;type:text;not null"`
	ICCID           string       `gorm:"column:iccid;type:text;not null"`
	QRCodeURL       string       `gorm:"column:qr_code_url;type:text;not null;default:''"`
	AppleInstallURL string       `gorm:"column:apple_install_url;type:text;not null;default:''"`
	DataBalance     string       `gorm:"column:data_balance;type:text;not null;default:''"`
	CreatedAt       time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProvisionedSim) TableName() string { return "provisioned_sims" }
