package billing

import (
	"encoding/json"
	"log"

	"github.com/DanielKovacs/CoachEcho/app/models"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/entitlements"
)

// SyncService keeps the local mirror and the user's effective plan in step
// with the provider. It is fed from two directions, mutation results and
// webhook deliveries, and both paths converge on the same upsert.
type SyncService struct {
	repo Repository
}

func NewSyncService(repo Repository) *SyncService {
	return &SyncService{repo: repo}
}

// SyncProviderSubscription records a mutation result into the mirror and
// reconciles the user's plan.
func (s *SyncService) SyncProviderSubscription(userID uint, sub *ProviderSubscription) error {
	raw, _ := json.Marshal(sub)
	start, end := sub.CurrentPeriodStart, sub.CurrentPeriodEnd

	norm := NormalizedSubscription{
		UserID:                 userID,
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: sub.ID,
		ProviderPriceRef:       sub.PriceRef,
		Status:                 normalizeStatus(sub.Status),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		RawPayloadJSON:         string(raw),
	}
	if !start.IsZero() {
		norm.CurrentPeriodStart = &start
	}
	if !end.IsZero() {
		norm.CurrentPeriodEnd = &end
	}
	return s.SyncSubscription(norm)
}

// SyncSubscription upserts a normalized subscription into the mirror. The
// plan code and interval are resolved from the catalog when the price is
// known there.
func (s *SyncService) SyncSubscription(norm NormalizedSubscription) error {
	planCode := "starter"
	interval := norm.BillingInterval
	if plan, err := s.repo.GetPlanByPriceRef(norm.Provider, norm.ProviderPriceRef); err == nil {
		planCode = plan.Code
		if interval == "" || interval == models.BillingIntervalUnknown {
			interval = plan.BillingInterval
		}
	}
	if interval == "" {
		interval = models.BillingIntervalUnknown
	}

	sub := &models.BillingSubscription{
		UserID:                 norm.UserID,
		Provider:               norm.Provider,
		ProviderSubscriptionID: norm.ProviderSubscriptionID,
		ProviderPriceRef:       norm.ProviderPriceRef,
		PlanCode:               planCode,
		BillingInterval:        interval,
		Status:                 norm.Status,
		CurrentPeriodStart:     norm.CurrentPeriodStart,
		CurrentPeriodEnd:       norm.CurrentPeriodEnd,
		CancelAtPeriodEnd:      norm.CancelAtPeriodEnd,
		RawPayloadJSON:         norm.RawPayloadJSON,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return err
	}
	return s.ReconcileUserPlan(norm.UserID)
}

// ReconcileUserPlan recomputes the user's effective plan from the mirror. The
// highest-ranking plan among entitling subscriptions wins; with none left the
// user falls back to starter.
func (s *SyncService) ReconcileUserPlan(userID uint) error {
	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return err
	}

	effective := string(entitlements.PlanStarter)
	for _, sub := range subs {
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		if planRank(sub.PlanCode) > planRank(effective) {
			effective = sub.PlanCode
		}
	}

	settings, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return err
	}
	if settings.Plan == effective {
		return nil
	}

	log.Printf("[Billing] user %d plan %s -> %s", userID, settings.Plan, effective)
	settings.Plan = effective
	return s.repo.SaveUserSettings(settings)
}

// RecordWebhookEvent persists a webhook delivery exactly once. Deliveries
// without an event id get a stable hash-derived one so replays still dedupe.
func (s *SyncService) RecordWebhookEvent(input WebhookEventInput) (*models.BillingWebhookEvent, bool, error) {
	eventID := input.ProviderEventID
	if eventID == "" {
		eventID = fallbackEventID([]byte(input.PayloadJSON))
	}

	event := &models.BillingWebhookEvent{
		Provider:        input.Provider,
		ProviderEventID: eventID,
		EventType:       input.EventType,
		PayloadJSON:     input.PayloadJSON,
		SignatureValid:  input.SignatureValid,
	}
	created, err := s.repo.CreateWebhookEventIfNotExists(event)
	if err != nil {
		return nil, false, err
	}
	return event, created, nil
}

// MarkWebhookProcessed closes out a webhook event, recording the processing
// error if any.
func (s *SyncService) MarkWebhookProcessed(eventID uint, processingError string) error {
	return s.repo.MarkWebhookProcessed(eventID, processingError)
}
