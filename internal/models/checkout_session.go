package models

import "time"

// CheckoutSession maps to the `checkout_sessions` table. One row per checkout
// attempt, kept in step with the in-memory controller so reconciliation can
// pick up sessions the process lost (restart, crash).
type CheckoutSession struct {
	ID                   string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	OrderID              string    `gorm:"column:order_id;size:191;index" json:"order_id"`
	AmountMinorUnits     int64     `gorm:"column:amount_minor_units" json:"amount_minor_units"`
	Currency             string    `gorm:"column:currency;size:8" json:"currency"`
	CustomerEmail        string    `gorm:"column:customer_email;size:255" json:"customer_email"`
	CustomerPhone        string    `gorm:"column:customer_phone;size:64" json:"customer_phone"`
	CustomerFirstName    string    `gorm:"column:customer_first_name;size:128" json:"customer_first_name"`
	CustomerLastName     string    `gorm:"column:customer_last_name;size:128" json:"customer_last_name"`
	Channel              string    `gorm:"column:channel;size:32" json:"channel"`
	Reference            string    `gorm:"column:reference;size:191;index" json:"reference"`
	AuthorizationURL     string    `gorm:"column:authorization_url;type:text" json:"authorization_url"`
	State                string    `gorm:"column:state;size:32;index" json:"state"`
	VerificationAttempts int       `gorm:"column:verification_attempts" json:"verification_attempts"`
	ErrorMessage         string    `gorm:"column:error_message;type:text" json:"error_message"`
	Presumed             bool      `gorm:"column:presumed" json:"presumed"`
	Platform             string    `gorm:"column:platform;size:32" json:"platform"`
	CreatedAt            time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (CheckoutSession) TableName() string {
	return "checkout_sessions"
}
