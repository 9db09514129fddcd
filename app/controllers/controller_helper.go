package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/DanielKovacs/CoachEcho/internal/pkg/usercontext"
)

// Session/Locals keys shared with the middlewares
const (
	AUTH_KEY       string = usercontext.AuthKey
	USER_ID        string = usercontext.KeyUserID
	USER_NAME      string = usercontext.KeyUsername
	USER_IS_ADMIN  string = usercontext.KeyIsAdmin
	FROM_PROTECTED string = usercontext.KeyFromProtected
)

// jsonError renders the shared API error envelope.
func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

// formatTimePtr renders a nullable timestamp as RFC3339 or nil.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
