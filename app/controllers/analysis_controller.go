package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/DanielKovacs/CoachEcho/app/models"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/billing"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/database"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/entitlements"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/usercontext"
)

type createAnalysisRequest struct {
	Title           string `json:"title"`
	Scenario        string `json:"scenario"`
	CustomScenario  bool   `json:"custom_scenario"`
	DurationSeconds int    `json:"duration_seconds"`
}

// HandleCreateAnalysis records a new conversation analysis after enforcing
// the plan's limits for the current billing period.
func HandleCreateAnalysis(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	plan := entitlements.Normalize(userCtx.Plan)

	var req createAnalysisRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "title is required")
	}
	if req.DurationSeconds < 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "duration_seconds must not be negative")
	}

	if req.DurationSeconds > entitlements.MaxRecordingSeconds(plan) {
		return jsonError(c, fiber.StatusUnprocessableEntity, "recording_too_long",
			"This recording exceeds the maximum length for your plan")
	}
	if req.CustomScenario && !entitlements.CanUseCustomScenarios(plan) {
		return jsonError(c, fiber.StatusForbidden, "plan_required",
			"Custom scenarios require an Executive plan")
	}

	counter, err := currentUsageCounter(userCtx.UserID)
	if err != nil {
		log.Printf("[Analysis] usage lookup failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not check your usage")
	}
	if !entitlements.WithinLimit(plan, counter.AnalysesUsed) {
		return jsonError(c, fiber.StatusForbidden, "limit_reached",
			"You have used all analyses included in your plan for this period")
	}

	analysis := models.Analysis{
		UserID:          userCtx.UserID,
		Title:           req.Title,
		Scenario:        strings.TrimSpace(req.Scenario),
		CustomScenario:  req.CustomScenario,
		DurationSeconds: req.DurationSeconds,
		Status:          models.AnalysisStatusPending,
	}
	if err := database.GetDB().Create(&analysis).Error; err != nil {
		log.Printf("[Analysis] create failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create the analysis")
	}

	if err := billingRepo.IncrementAnalyses(counter.ID); err != nil {
		log.Printf("[Analysis] usage increment failed for user %d: %v", userCtx.UserID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"uuid":             analysis.UUID,
		"title":            analysis.Title,
		"scenario":         analysis.Scenario,
		"custom_scenario":  analysis.CustomScenario,
		"duration_seconds": analysis.DurationSeconds,
		"status":           analysis.Status,
		"created_at":       analysis.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// HandleListAnalyses returns the user's analyses, newest first.
func HandleListAnalyses(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var analyses []models.Analysis
	if err := database.GetDB().
		Where("user_id = ?", userCtx.UserID).
		Order("created_at desc").
		Limit(100).
		Find(&analyses).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load analyses")
	}

	out := make([]fiber.Map, 0, len(analyses))
	for _, a := range analyses {
		out = append(out, fiber.Map{
			"uuid":             a.UUID,
			"title":            a.Title,
			"scenario":         a.Scenario,
			"custom_scenario":  a.CustomScenario,
			"duration_seconds": a.DurationSeconds,
			"status":           a.Status,
			"created_at":       a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{"analyses": out})
}

// currentUsageCounter resolves the usage counter for the user's active
// billing period, falling back to the calendar month for the free tier.
func currentUsageCounter(userID uint) (*models.UsageCounter, error) {
	if billingRepo == nil {
		return nil, errors.New("billing repository not initialized")
	}

	if billingFetcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
		defer cancel()
		if snapshot, err := billingFetcher.Current(ctx, userID); err == nil {
			return billingRepo.GetOrCreateUsage(userID,
				snapshot.CurrentPeriodStart.Truncate(time.Second),
				snapshot.CurrentPeriodEnd.Truncate(time.Second))
		} else if !errors.Is(err, billing.ErrNoSubscription) {
			log.Printf("[Analysis] subscription read failed for user %d, using monthly window: %v", userID, err)
		}
	}

	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return billingRepo.GetOrCreateUsage(userID, start, end)
}
