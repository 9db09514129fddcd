package controllers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/DanielKovacs/CoachEcho/app/repository"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/entitlements"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user (API key or session).
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	repos := repository.GetGlobalFactory()
	account, err := repos.GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	settings, err := repos.GetSettingsRepository().GetOrCreate(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user settings")
	}

	plan := entitlements.Normalize(settings.Plan)

	return c.JSON(fiber.Map{
		"id":            account.ID,
		"name":          account.Name,
		"email":         account.Email,
		"role":          account.Role,
		"last_login_at": formatTimePtr(account.LastLoginAt),
		"plan": fiber.Map{
			"code":                  string(plan),
			"analysis_limit":        entitlements.AnalysisLimit(plan),
			"max_recording_seconds": entitlements.MaxRecordingSeconds(plan),
			"custom_scenarios":      entitlements.CanUseCustomScenarios(plan),
		},
		"api_key": fiber.Map{
			"active":       settings.HasActiveAPIKey(),
			"masked":       settings.MaskedAPIKey(),
			"created_at":   formatTimePtr(settings.APIKeyCreatedAt),
			"last_used_at": formatTimePtr(settings.APIKeyLastUsedAt),
		},
	})
}

// HandleIssueAPIKey creates (or rotates) the user's API key. The raw secret
// appears in this response only.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	repos := repository.GetGlobalFactory()

	settings, err := repos.GetSettingsRepository().GetOrCreate(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user settings")
	}

	key, err := settings.IssueAPIKey()
	if err != nil {
		log.Printf("[Account] api key generation failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to generate API key")
	}
	if err := repos.GetSettingsRepository().Update(settings); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store API key")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key":    key,
		"masked":     settings.MaskedAPIKey(),
		"created_at": formatTimePtr(settings.APIKeyCreatedAt),
	})
}

// HandleRevokeAPIKey revokes the user's API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	repos := repository.GetGlobalFactory()

	settings, err := repos.GetSettingsRepository().GetOrCreate(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user settings")
	}
	if !settings.HasActiveAPIKey() {
		return jsonError(c, fiber.StatusNotFound, "not_found", "No active API key")
	}

	settings.RevokeAPIKey()
	if err := repos.GetSettingsRepository().Update(settings); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to revoke API key")
	}
	return c.JSON(fiber.Map{"status": "revoked"})
}
