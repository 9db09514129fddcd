package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/DanielKovacs/CoachEcho/internal/pkg/billing"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/entitlements"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/session"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/usercontext"
)

// Billing wiring, set once at startup. A nil coordinator means billing is not
// configured (e.g. missing Stripe key) and the endpoints answer 503.
var (
	billingCoordinator   *billing.Coordinator
	billingMethods       *billing.MethodStore
	billingFetcher       *billing.Fetcher
	billingRepo          billing.Repository
	billingWebhookIngest *billing.WebhookHandler
)

// InitializeBillingController wires the billing services into the handlers.
func InitializeBillingController(coordinator *billing.Coordinator, methods *billing.MethodStore, fetcher *billing.Fetcher, repo billing.Repository, webhook *billing.WebhookHandler) {
	billingCoordinator = coordinator
	billingMethods = methods
	billingFetcher = fetcher
	billingRepo = repo
	billingWebhookIngest = webhook
}

const billingRequestTimeout = 20 * time.Second

func billingReady(c *fiber.Ctx) error {
	if billingCoordinator == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, string(billing.KindProviderUnavailable), "Billing is not configured")
	}
	return nil
}

func billingErrorResponse(c *fiber.Ctx, err error, fallback string) error {
	kind := billing.KindOf(err)
	status := fiber.StatusBadGateway
	switch kind {
	case billing.KindProviderUnavailable:
		status = fiber.StatusServiceUnavailable
	case billing.KindMutationInFlight:
		status = fiber.StatusConflict
	case billing.KindPaymentConfirmationFailed:
		status = fiber.StatusBadRequest
	case "":
		kind = billing.KindMutationFailed
	}
	log.Printf("[Billing] %s: %v", kind, err)
	return jsonError(c, status, string(kind), billing.UserMessage(err, fallback))
}

// refreshSessionPlan drops the session's cached plan after a subscription
// mutation so the next request re-reads user_settings instead of serving the
// pre-mutation plan for the rest of the session.
func refreshSessionPlan(c *fiber.Ctx) {
	if err := session.SetSessionValue(c, usercontext.KeyUserPlan, ""); err != nil {
		log.Printf("[Billing] could not refresh session plan: %v", err)
	}
}

// presentPaymentMethod shapes one payment method for the JSON boundary.
func presentPaymentMethod(m billing.PaymentMethod) fiber.Map {
	out := fiber.Map{
		"id":         m.ID,
		"type":       string(m.Type),
		"is_default": m.IsDefault,
		"created_at": m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.Card != nil {
		out["card"] = fiber.Map{
			"brand":     m.Card.Brand,
			"last4":     m.Card.Last4,
			"exp_month": m.Card.ExpMonth,
			"exp_year":  m.Card.ExpYear,
		}
	}
	if m.Email != "" {
		out["email"] = m.Email
	}
	return out
}

func presentPaymentMethods(methods []billing.PaymentMethod) []fiber.Map {
	out := make([]fiber.Map, 0, len(methods))
	for _, m := range methods {
		out = append(out, presentPaymentMethod(m))
	}
	return out
}

// presentSnapshot shapes the subscription read model for the JSON boundary.
// Formatted strings are produced here and only here.
func presentSnapshot(s *billing.Snapshot) fiber.Map {
	return fiber.Map{
		"plan_code":                s.PlanCode,
		"plan_name":                s.PlanName,
		"status":                   s.Status,
		"amount_cents":             s.AmountCents,
		"currency":                 s.Currency,
		"billing_interval":         s.BillingInterval,
		"price_formatted":          billing.FormatAmount(s.AmountCents, s.Currency, s.BillingInterval),
		"current_period_start":     s.CurrentPeriodStart.UTC().Format(time.RFC3339),
		"current_period_end":       s.CurrentPeriodEnd.UTC().Format(time.RFC3339),
		"next_renewal_date":        s.NextRenewalDate.UTC().Format(time.RFC3339),
		"next_renewal_formatted":   billing.FormatDate(s.NextRenewalDate),
		"cancel_at_period_end":     s.CancelAtPeriodEnd,
		"provider_subscription_id": s.ProviderSubscriptionID,
		"usage": fiber.Map{
			"analyses_used":  s.Usage.AnalysesUsed,
			"analyses_limit": s.Usage.AnalysesLimit,
		},
	}
}

// presentStarter renders the implicit free tier for users without a
// subscription.
func presentStarter(userID uint) fiber.Map {
	usage := billing.Usage{AnalysesLimit: entitlements.AnalysisLimit(entitlements.PlanStarter)}
	if billingFetcher != nil {
		if u, err := billingFetcher.MonthlyUsage(userID, usage.AnalysesLimit); err == nil {
			usage = u
		}
	}
	return fiber.Map{
		"plan_code":            string(entitlements.PlanStarter),
		"plan_name":            "Starter",
		"status":               "none",
		"amount_cents":         0,
		"currency":             "usd",
		"billing_interval":     "month",
		"price_formatted":      "Free",
		"cancel_at_period_end": false,
		"usage": fiber.Map{
			"analyses_used":  usage.AnalysesUsed,
			"analyses_limit": usage.AnalysesLimit,
		},
	}
}

// HandleListPlans returns the purchasable plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	plans, err := billingRepo.ListActivePlans()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not load plans")
	}
	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		out = append(out, fiber.Map{
			"code":             p.Code,
			"name":             p.Name,
			"amount_cents":     p.AmountCents,
			"currency":         p.Currency,
			"billing_interval": p.BillingInterval,
			"price_formatted":  billing.FormatAmount(p.AmountCents, p.Currency, p.BillingInterval),
			"analysis_limit":   p.AnalysisLimit,
		})
	}
	return c.JSON(fiber.Map{"plans": out})
}

// HandleListPaymentMethods returns the user's saved payment methods.
func HandleListPaymentMethods(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	methods, err := billingMethods.List(ctx, userCtx.UserID)
	if err != nil {
		return billingErrorResponse(c, err, "Could not load payment methods")
	}
	return c.JSON(fiber.Map{"payment_methods": presentPaymentMethods(methods)})
}

// HandleBeginPaymentMethodSetup opens a collection session and hands the
// client secret to the caller. The secret is not stored anywhere server-side.
func HandleBeginPaymentMethodSetup(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	session, err := billingMethods.BeginAdd(ctx, userCtx.UserID)
	if err != nil {
		return billingErrorResponse(c, err, "Could not start adding a payment method")
	}
	return c.JSON(fiber.Map{
		"setup_intent_id": session.SetupIntentID,
		"client_secret":   session.ClientSecret,
	})
}

type confirmSetupRequest struct {
	SetupIntentID string `json:"setup_intent_id"`
}

// HandleConfirmPaymentMethod finalizes a collection session and returns the
// refreshed method list.
func HandleConfirmPaymentMethod(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	userCtx := usercontext.GetUserContext(c)

	var req confirmSetupRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SetupIntentID) == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "setup_intent_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	methods, err := billingMethods.ConfirmAdd(ctx, userCtx.UserID, strings.TrimSpace(req.SetupIntentID))
	if err != nil {
		return billingErrorResponse(c, err, "Payment setup could not be confirmed")
	}
	return c.JSON(fiber.Map{"payment_methods": presentPaymentMethods(methods)})
}

type setDefaultRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// HandleSetDefaultPaymentMethod marks an existing method as default.
func HandleSetDefaultPaymentMethod(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	userCtx := usercontext.GetUserContext(c)

	var req setDefaultRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.PaymentMethodID) == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "payment_method_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	methods, err := billingMethods.SetDefault(ctx, userCtx.UserID, strings.TrimSpace(req.PaymentMethodID))
	if err != nil {
		return billingErrorResponse(c, err, "Could not update the default payment method")
	}
	return c.JSON(fiber.Map{"payment_methods": presentPaymentMethods(methods)})
}

// HandleGetCurrentSubscription returns the subscription snapshot, or the
// implicit starter tier when the user has none.
func HandleGetCurrentSubscription(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	snapshot, err := billingFetcher.Current(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			return c.JSON(fiber.Map{"subscription": presentStarter(userCtx.UserID)})
		}
		return billingErrorResponse(c, err, "Could not load your subscription")
	}
	return c.JSON(fiber.Map{"subscription": presentSnapshot(snapshot)})
}

type updateSubscriptionRequest struct {
	PlanCode string `json:"plan_code"`
}

// presentChangeResult shapes the coordinator outcome. When payment setup is
// required the client secret rides along exactly once.
func presentChangeResult(r *billing.ChangeResult) fiber.Map {
	out := fiber.Map{
		"requires_payment": r.RequiresPayment,
		"plan_code":        r.PlanCode,
	}
	if r.RequiresPayment {
		out["client_secret"] = r.ClientSecret
		out["setup_intent_id"] = r.SetupIntentID
		return out
	}
	out["category"] = string(r.Category)
	if r.Subscription != nil {
		out["subscription"] = presentSnapshot(r.Subscription)
	}
	return out
}

// HandleUpdateSubscription switches the user's plan.
func HandleUpdateSubscription(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	userCtx := usercontext.GetUserContext(c)

	var req updateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.PlanCode) == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "plan_code is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	result, err := billingCoordinator.ChangePlan(ctx, userCtx.UserID, strings.TrimSpace(req.PlanCode))
	if err != nil {
		return billingErrorResponse(c, err, "Could not change your plan")
	}
	if !result.RequiresPayment {
		refreshSessionPlan(c)
	}
	return c.JSON(presentChangeResult(result))
}

// HandleConfirmSubscriptionPayment resumes a plan change after payment setup.
func HandleConfirmSubscriptionPayment(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	userCtx := usercontext.GetUserContext(c)

	var req confirmSetupRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SetupIntentID) == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "setup_intent_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	result, err := billingCoordinator.ConfirmPaymentSetup(ctx, userCtx.UserID, strings.TrimSpace(req.SetupIntentID))
	if err != nil {
		return billingErrorResponse(c, err, "Payment setup could not be confirmed")
	}
	refreshSessionPlan(c)
	return c.JSON(presentChangeResult(result))
}

// HandleAbandonSubscriptionChange discards a pending plan change.
func HandleAbandonSubscriptionChange(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	billingCoordinator.Abandon(ctx, userCtx.UserID)
	return c.JSON(fiber.Map{"status": "abandoned"})
}

// HandleCancelSubscription requests cancellation at period end.
func HandleCancelSubscription(c *fiber.Ctx) error {
	if err := billingReady(c); err != nil {
		return err
	}
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	result, err := billingCoordinator.CancelSubscription(ctx, userCtx.UserID)
	if err != nil {
		return billingErrorResponse(c, err, "Could not cancel your subscription")
	}
	refreshSessionPlan(c)
	return c.JSON(presentChangeResult(result))
}

// HandleStripeWebhook ingests Stripe event deliveries.
func HandleStripeWebhook(c *fiber.Ctx) error {
	if billingWebhookIngest == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, string(billing.KindProviderUnavailable), "Billing is not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), billingRequestTimeout)
	defer cancel()

	if err := billingWebhookIngest.HandleStripePayload(ctx, c.Body(), c.Get("Stripe-Signature")); err != nil {
		log.Printf("[Billing] webhook processing failed: %v", err)
		return jsonError(c, fiber.StatusBadRequest, "webhook_failed", "Event could not be processed")
	}
	return c.JSON(fiber.Map{"received": true})
}
