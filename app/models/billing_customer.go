package models

import "time"

const BillingProviderStripe = "stripe"

// BillingCustomer links a local user to their customer object at the billing
// provider. One row per user and provider.
type BillingCustomer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;uniqueIndex:ux_billing_customers_user_provider,priority:1" json:"user_id"`
	Provider           string    `gorm:"type:varchar(20);not null;uniqueIndex:ux_billing_customers_user_provider,priority:2" json:"provider"`
	ProviderCustomerID string    `gorm:"type:varchar(191);not null;index" json:"provider_customer_id"`
	Email              string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
