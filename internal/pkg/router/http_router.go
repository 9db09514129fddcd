package router

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/DanielKovacs/CoachEcho/app/controllers"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/billing"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/cache"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/database"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/middleware"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	initializeBilling()

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

// initializeBilling wires the billing services. Without a Stripe key the
// provider-backed endpoints answer 503, but the repository is wired anyway:
// usage counting for analyses only needs the database.
func initializeBilling() {
	repo := billing.NewRepository(database.GetDB())

	provider, err := billing.NewStripeProviderFromEnv()
	if err != nil {
		log.Printf("[Billing] disabled: %v", err)
		controllers.InitializeBillingController(nil, nil, nil, repo, nil)
		return
	}

	store := cache.NewStore()
	customers := billing.NewCustomerResolver(repo, provider)
	methods := billing.NewMethodStore(provider, customers, store)
	fetcher := billing.NewFetcher(provider, repo, customers, store)
	sync := billing.NewSyncService(repo)
	coordinator := billing.NewCoordinator(provider, repo, customers, methods, fetcher, sync, store)
	webhook := billing.NewWebhookHandler(sync, repo, fetcher, methods, provider.WebhookSecret())

	controllers.InitializeBillingController(coordinator, methods, fetcher, repo, webhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
