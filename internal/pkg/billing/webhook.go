package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/DanielKovacs/CoachEcho/app/models"
)

// WebhookHandler ingests Stripe webhook deliveries: verify, persist once,
// sync the mirror, drop stale read caches.
type WebhookHandler struct {
	sync    *SyncService
	repo    Repository
	fetcher *Fetcher
	methods *MethodStore
	secret  string
}

func NewWebhookHandler(sync *SyncService, repo Repository, fetcher *Fetcher, methods *MethodStore, secret string) *WebhookHandler {
	return &WebhookHandler{sync: sync, repo: repo, fetcher: fetcher, methods: methods, secret: secret}
}

// HandleStripePayload processes one webhook delivery. Replays are absorbed by
// the event store; unknown event types are recorded and acknowledged.
func (h *WebhookHandler) HandleStripePayload(ctx context.Context, payload []byte, signature string) error {
	signatureValid := false
	if h.secret != "" {
		_, err := webhook.ConstructEventWithOptions(payload, signature, h.secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return fmt.Errorf("webhook signature verification failed: %w", err)
		}
		signatureValid = true
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("webhook payload parse failed: %w", err)
	}

	record, created, err := h.sync.RecordWebhookEvent(WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return fmt.Errorf("webhook event persistence failed: %w", err)
	}
	// a delivery that previously failed processing must run again on retry;
	// only cleanly processed events are absorbed here
	if !created && record.ProcessedAt != nil && record.ProcessingError == "" {
		return nil
	}

	processingErr := h.dispatch(ctx, &event)

	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	if err := h.sync.MarkWebhookProcessed(record.ID, errMsg); err != nil {
		log.Printf("[Billing] could not mark webhook %s processed: %v", record.ProviderEventID, err)
	}
	return processingErr
}

func (h *WebhookHandler) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return h.handleSubscriptionEvent(ctx, event)
	case "setup_intent.succeeded", "payment_method.attached", "payment_method.detached":
		return h.handlePaymentMethodEvent(ctx, event)
	default:
		// recorded for audit, nothing to do
		return nil
	}
}

func (h *WebhookHandler) handleSubscriptionEvent(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("subscription event parse failed: %w", err)
	}
	if sub.Customer == nil {
		return fmt.Errorf("subscription event %s has no customer", event.ID)
	}

	customer, err := h.repo.GetBillingCustomerByProviderID(models.BillingProviderStripe, sub.Customer.ID)
	if err != nil {
		// customer not ours (e.g. created outside the app), acknowledge
		log.Printf("[Billing] webhook for unknown customer %s, skipping", sub.Customer.ID)
		return nil
	}

	norm := NormalizedSubscription{
		UserID:                 customer.UserID,
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: sub.ID,
		Status:                 normalizeStatus(string(sub.Status)),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		RawPayloadJSON:         string(event.Data.Raw),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			norm.ProviderPriceRef = item.Price.ID
			if item.Price.Recurring != nil {
				norm.BillingInterval = normalizeInterval(string(item.Price.Recurring.Interval))
			}
		}
		start := time.Unix(item.CurrentPeriodStart, 0).UTC()
		end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
		norm.CurrentPeriodStart = &start
		norm.CurrentPeriodEnd = &end
	}

	if err := h.sync.SyncSubscription(norm); err != nil {
		return err
	}

	h.fetcher.Invalidate(ctx, customer.UserID)
	return nil
}

func (h *WebhookHandler) handlePaymentMethodEvent(ctx context.Context, event *stripe.Event) error {
	// the cached method list is stale, force a re-read
	var probe struct {
		Customer string `json:"customer"`
	}
	if err := json.Unmarshal(event.Data.Raw, &probe); err != nil || probe.Customer == "" {
		return nil
	}
	customer, err := h.repo.GetBillingCustomerByProviderID(models.BillingProviderStripe, probe.Customer)
	if err != nil {
		return nil
	}
	h.methods.Invalidate(ctx, customer.UserID)
	return nil
}
