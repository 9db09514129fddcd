package models

import "time"

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

// BillingPlan is the local plan catalog. It maps the plan codes the clients
// send (e.g. "exec_monthly") to the provider price used for checkout, plus the
// entitlement limits attached to the plan.
type BillingPlan struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Code             string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Name             string    `gorm:"type:varchar(100);not null" json:"name"`
	Provider         string    `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	ProviderPriceRef string    `gorm:"type:varchar(191);not null;index" json:"provider_price_ref"`
	AmountCents      int64     `gorm:"not null;default:0" json:"amount_cents"`
	Currency         string    `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	BillingInterval  string    `gorm:"type:varchar(16);not null;default:'month'" json:"billing_interval"`
	AnalysisLimit    int64     `gorm:"not null;default:0" json:"analysis_limit"`
	SortOrder        uint      `gorm:"not null;default:0" json:"sort_order"`
	IsActive         bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFree reports whether selecting this plan involves no immediate charge.
func (p *BillingPlan) IsFree() bool {
	return p.AmountCents == 0
}
