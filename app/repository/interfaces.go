package repository

import (
	"github.com/DanielKovacs/CoachEcho/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// SettingsRepository defines the interface for user settings operations
type SettingsRepository interface {
	GetOrCreate(userID uint) (*models.UserSettings, error)
	Update(settings *models.UserSettings) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User     UserRepository
	Settings SettingsRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:     NewUserRepository(db),
		Settings: NewSettingsRepository(db),
	}
}
