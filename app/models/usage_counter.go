package models

import "time"

// UsageCounter tracks how many conversation analyses a user has consumed in a
// billing period. One row per user and period start.
type UsageCounter struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;uniqueIndex:ux_usage_counters_user_period,priority:1" json:"user_id"`
	PeriodStart  time.Time `gorm:"type:timestamp;not null;uniqueIndex:ux_usage_counters_user_period,priority:2" json:"period_start"`
	PeriodEnd    time.Time `gorm:"type:timestamp;not null" json:"period_end"`
	AnalysesUsed int64     `gorm:"not null;default:0" json:"analyses_used"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
