package controllers

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/DanielKovacs/CoachEcho/app/models"
)

// stubUsageRepo is the minimal billing.Repository for usage counting; the
// catalog and mirror methods are never reached without a provider.
type stubUsageRepo struct {
	counters map[string]*models.UsageCounter
	nextID   uint
}

func newStubUsageRepo() *stubUsageRepo {
	return &stubUsageRepo{counters: map[string]*models.UsageCounter{}}
}

func (r *stubUsageRepo) GetPlanByCode(string) (*models.BillingPlan, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUsageRepo) GetPlanByPriceRef(string, string) (*models.BillingPlan, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUsageRepo) ListActivePlans() ([]models.BillingPlan, error) {
	return nil, nil
}

func (r *stubUsageRepo) GetUserByID(uint) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUsageRepo) GetBillingCustomer(uint, string) (*models.BillingCustomer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUsageRepo) GetBillingCustomerByProviderID(string, string) (*models.BillingCustomer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUsageRepo) SaveBillingCustomer(*models.BillingCustomer) error { return nil }

func (r *stubUsageRepo) UpsertSubscription(*models.BillingSubscription) error { return nil }

func (r *stubUsageRepo) ListSubscriptionsByUser(uint) ([]models.BillingSubscription, error) {
	return nil, nil
}

func (r *stubUsageRepo) GetOrCreateUserSettings(uint) (*models.UserSettings, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUsageRepo) SaveUserSettings(*models.UserSettings) error { return nil }

func (r *stubUsageRepo) CreateWebhookEventIfNotExists(*models.BillingWebhookEvent) (bool, error) {
	return false, nil
}

func (r *stubUsageRepo) MarkWebhookProcessed(uint, string) error { return nil }

func (r *stubUsageRepo) GetOrCreateUsage(userID uint, periodStart, periodEnd time.Time) (*models.UsageCounter, error) {
	key := fmt.Sprintf("%d/%d", userID, periodStart.Unix())
	if counter, ok := r.counters[key]; ok {
		return counter, nil
	}
	r.nextID++
	counter := &models.UsageCounter{ID: r.nextID, UserID: userID, PeriodStart: periodStart, PeriodEnd: periodEnd}
	r.counters[key] = counter
	return counter, nil
}

func (r *stubUsageRepo) IncrementAnalyses(counterID uint) error {
	for _, counter := range r.counters {
		if counter.ID == counterID {
			counter.AnalysesUsed++
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// A deployment without a Stripe key still counts usage: the repository is
// wired on its own and the counter falls back to the calendar-month window
// when no subscription fetcher exists.
func TestUsageCounterWorksWithoutProviderWiring(t *testing.T) {
	prevCoordinator := billingCoordinator
	prevMethods := billingMethods
	prevFetcher := billingFetcher
	prevRepo := billingRepo
	prevWebhook := billingWebhookIngest
	defer func() {
		InitializeBillingController(prevCoordinator, prevMethods, prevFetcher, prevRepo, prevWebhook)
	}()

	InitializeBillingController(nil, nil, nil, newStubUsageRepo(), nil)

	counter, err := currentUsageCounter(7)
	assert.NoError(t, err)
	assert.NotNil(t, counter)

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monthStart, counter.PeriodStart)
	assert.Equal(t, monthStart.AddDate(0, 1, 0), counter.PeriodEnd)

	again, err := currentUsageCounter(7)
	assert.NoError(t, err)
	assert.Equal(t, counter.ID, again.ID)
}
