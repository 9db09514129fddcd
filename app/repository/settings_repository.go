package repository

import (
	"github.com/DanielKovacs/CoachEcho/app/models"
	"gorm.io/gorm"
)

// settingsRepository implements the SettingsRepository interface
type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new user settings repository instance
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetOrCreate(userID uint) (*models.UserSettings, error) {
	return models.GetOrCreateUserSettings(r.db, userID)
}

func (r *settingsRepository) Update(settings *models.UserSettings) error {
	return r.db.Save(settings).Error
}
