package models

import "time"

// Payment record statuses.
const (
	PaymentStatusSuccess   = "success"
	PaymentStatusPresumed  = "presumed_success"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusFailed    = "failed"
)

// PaymentRecord maps to the `payment_records` table. One row per terminal
// outcome; the ops report and webhook reconciliation key off it.
type PaymentRecord struct {
	ID               uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SessionID        string    `gorm:"column:session_id;size:64;index" json:"session_id"`
	OrderID          string    `gorm:"column:order_id;size:191;index" json:"order_id"`
	Reference        string    `gorm:"column:reference;size:191;uniqueIndex" json:"reference"`
	AmountMinorUnits int64     `gorm:"column:amount_minor_units" json:"amount_minor_units"`
	Currency         string    `gorm:"column:currency;size:8" json:"currency"`
	Channel          string    `gorm:"column:channel;size:32" json:"channel"`
	Status           string    `gorm:"column:status;size:32;index" json:"status"`
	Message          string    `gorm:"column:message;type:text" json:"message"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}
