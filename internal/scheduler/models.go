package scheduler

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	reminderKindNudge    = "reminder"
	reminderKindDiscount = "discount"
)

// ReminderLogEntry records every nudge sent for an unpaid order. The dedupe
// window reads the latest row per order.
type ReminderLogEntry struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrderID   snowflake.ID `gorm:"not null;index"`
	Phone     string       `gorm:"type:text;not null"`
	Kind      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (ReminderLogEntry) TableName() string { return "payment_reminder_log" }

// RetryLogEntry records each automated retry of a failed payment, capping
// attempts per order.
type RetryLogEntry struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	OrderID       snowflake.ID `gorm:"not null;index"`
	Phone         string       `gorm:"type:text;not null"`
	ErrorCode     string       `gorm:"type:text"`
	PaymentLinkID string       `gorm:"type:text"`
	CreatedAt     time.Time    `gorm:"not null"`
}

func (RetryLogEntry) TableName() string { return "payment_retry_log" }
