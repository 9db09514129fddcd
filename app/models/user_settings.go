package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// UserSettings stores per-user preferences, the effective plan and the mobile
// client API key.
type UserSettings struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"uniqueIndex" json:"user_id"`
	Plan             string         `gorm:"type:varchar(50);default:'starter'" json:"plan"`
	LeadershipStyle  string         `gorm:"type:varchar(50);default:''" json:"leadership_style"`
	APIKeyHash       string         `gorm:"type:char(64);default:''" json:"-"`
	APIKeyPrefix     string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time     `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time     `json:"api_key_last_used_at"`
	APIKeyRevokedAt  *time.Time     `json:"api_key_revoked_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "cec_"

// GetOrCreateUserSettings returns existing settings or creates defaults
func GetOrCreateUserSettings(db *gorm.DB, userID uint) (*UserSettings, error) {
	var us UserSettings
	if err := db.Where("user_id = ?", userID).First(&us).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			us = UserSettings{UserID: userID, Plan: "starter"}
			if err := db.Create(&us).Error; err != nil {
				return nil, err
			}
			return &us, nil
		}
		return nil, err
	}
	return &us, nil
}

// HasActiveAPIKey reports whether the user has an active API key configured
func (us *UserSettings) HasActiveAPIKey() bool {
	return us != nil && us.APIKeyHash != "" && us.APIKeyRevokedAt == nil
}

// IssueAPIKey generates a new API key, persists metadata on the struct, and returns the raw secret.
// Callers must persist the struct via the database after invoking this method.
func (us *UserSettings) IssueAPIKey() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	secret := strings.ToLower(apiKeyEncoding.EncodeToString(raw))
	key := apiKeyPrefix + secret

	now := time.Now()
	us.APIKeyHash = HashAPIKey(key)
	us.APIKeyPrefix = key[:len(apiKeyPrefix)+4]
	us.APIKeyCreatedAt = &now
	us.APIKeyLastUsedAt = nil
	us.APIKeyRevokedAt = nil

	return key, nil
}

// RevokeAPIKey marks the current key as revoked without deleting audit metadata
func (us *UserSettings) RevokeAPIKey() {
	now := time.Now()
	us.APIKeyRevokedAt = &now
}

// HashAPIKey returns the hex-encoded SHA-256 digest stored for lookups
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MaskedAPIKey renders the stored prefix for display, e.g. "cec_ab12…"
func (us *UserSettings) MaskedAPIKey() string {
	if us.APIKeyPrefix == "" {
		return ""
	}
	return fmt.Sprintf("%s…", us.APIKeyPrefix)
}
