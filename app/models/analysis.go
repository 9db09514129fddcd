package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AnalysisStatusPending   = "pending"
	AnalysisStatusCompleted = "completed"
	AnalysisStatusFailed    = "failed"
)

// Analysis is one analyzed leadership conversation. The recording itself is
// processed elsewhere; this row tracks ownership, scenario and status.
type Analysis struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UUID            string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	Title           string         `gorm:"type:varchar(200);not null" json:"title" validate:"required,min=1,max=200"`
	Scenario        string         `gorm:"type:varchar(100);default:''" json:"scenario"`
	CustomScenario  bool           `gorm:"default:false" json:"custom_scenario"`
	DurationSeconds int            `gorm:"not null;default:0" json:"duration_seconds" validate:"gte=0"`
	Status          string         `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Summary         string         `gorm:"type:text" json:"summary,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns the public identifier.
func (a *Analysis) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == "" {
		a.UUID = uuid.New().String()
	}
	return nil
}
