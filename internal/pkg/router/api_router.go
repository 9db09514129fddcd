package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/DanielKovacs/CoachEcho/app/controllers"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{Max: 120}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// auth (public)
	auth := v1.Group("/auth")
	auth.Post("/register", controllers.HandleAuthRegister)
	auth.Post("/login", controllers.HandleAuthLogin)
	auth.Post("/logout", controllers.HandleAuthLogout)

	// webhooks are signed by the provider, not session-authenticated
	v1.Post("/webhooks/stripe", controllers.HandleStripeWebhook)

	// session-authenticated API
	account := v1.Group("/account", middleware.RequireAPISessionAuth)
	account.Get("/", controllers.HandleGetUserAccount)
	account.Post("/api-key", controllers.HandleIssueAPIKey)
	account.Delete("/api-key", controllers.HandleRevokeAPIKey)

	billing := v1.Group("/billing", middleware.RequireAPISessionAuth)
	billing.Get("/plans", controllers.HandleListPlans)
	billing.Get("/payment-methods", controllers.HandleListPaymentMethods)
	billing.Post("/payment-methods/setup", controllers.HandleBeginPaymentMethodSetup)
	billing.Post("/payment-methods/confirm", controllers.HandleConfirmPaymentMethod)
	billing.Post("/payment-methods/set-default", controllers.HandleSetDefaultPaymentMethod)
	billing.Get("/subscriptions/current", controllers.HandleGetCurrentSubscription)
	billing.Post("/subscriptions/update", controllers.HandleUpdateSubscription)
	billing.Post("/subscriptions/confirm", controllers.HandleConfirmSubscriptionPayment)
	billing.Post("/subscriptions/abandon", controllers.HandleAbandonSubscriptionChange)
	billing.Post("/subscriptions/cancel", controllers.HandleCancelSubscription)

	analyses := v1.Group("/analyses", middleware.RequireAPISessionAuth)
	analyses.Get("/", controllers.HandleListAnalyses)
	analyses.Post("/", controllers.HandleCreateAnalysis)

	// mobile clients authenticate with an API key instead of a session
	client := v1.Group("/client", middleware.APIKeyAuthMiddleware())
	client.Get("/account", controllers.HandleGetUserAccount)
	client.Get("/analyses", controllers.HandleListAnalyses)
	client.Post("/analyses", controllers.HandleCreateAnalysis)
	client.Get("/subscriptions/current", controllers.HandleGetCurrentSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
