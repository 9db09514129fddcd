package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/DanielKovacs/CoachEcho/app/models"
)

const (
	subscriptionCacheKeyFmt = "billing:subscription:%d"
	subscriptionCacheTTL    = 2 * time.Minute
)

// Fetcher builds the read model of a user's subscription. The provider is
// authoritative for subscription state; the local catalog supplies plan names
// and limits, the usage counters supply consumption.
type Fetcher struct {
	provider  Provider
	repo      Repository
	customers *CustomerResolver
	cache     KeyValueCache
}

func NewFetcher(provider Provider, repo Repository, customers *CustomerResolver, cache KeyValueCache) *Fetcher {
	return &Fetcher{provider: provider, repo: repo, customers: customers, cache: cache}
}

func subscriptionCacheKey(userID uint) string {
	return fmt.Sprintf(subscriptionCacheKeyFmt, userID)
}

// Current returns the user's subscription snapshot, or ErrNoSubscription when
// the user has none. Absence is not cached; only real snapshots are.
func (f *Fetcher) Current(ctx context.Context, userID uint) (*Snapshot, error) {
	var cached Snapshot
	if hit, err := f.cache.GetJSON(ctx, subscriptionCacheKey(userID), &cached); err == nil && hit {
		return &cached, nil
	}

	customer, err := f.customers.Lookup(userID)
	if err != nil {
		return nil, newError(KindFetchFailed, "Could not load your subscription.", err)
	}
	if customer == nil {
		return nil, ErrNoSubscription
	}

	sub, err := f.provider.CurrentSubscription(ctx, customer.ProviderCustomerID)
	if err != nil {
		return nil, newError(KindFetchFailed, "Could not load your subscription.", err)
	}
	if sub == nil {
		return nil, ErrNoSubscription
	}

	snapshot, err := f.buildSnapshot(userID, sub)
	if err != nil {
		return nil, newError(KindFetchFailed, "Could not load your subscription.", err)
	}

	_ = f.cache.SetJSON(ctx, subscriptionCacheKey(userID), snapshot, subscriptionCacheTTL)
	return snapshot, nil
}

func (f *Fetcher) buildSnapshot(userID uint, sub *ProviderSubscription) (*Snapshot, error) {
	snapshot := &Snapshot{
		Status:                 normalizeStatus(sub.Status),
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		NextRenewalDate:        sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		ProviderSubscriptionID: sub.ID,
	}

	plan, err := f.repo.GetPlanByPriceRef(models.BillingProviderStripe, sub.PriceRef)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// price not in the catalog, show the raw ref rather than fail the read
		snapshot.PlanCode = sub.PriceRef
		snapshot.PlanName = sub.PriceRef
		snapshot.Usage = Usage{AnalysesLimit: 0}
		return snapshot, nil
	}

	snapshot.PlanCode = plan.Code
	snapshot.PlanName = plan.Name
	snapshot.AmountCents = plan.AmountCents
	snapshot.Currency = plan.Currency
	snapshot.BillingInterval = plan.BillingInterval

	usage, err := f.usageFor(userID, plan.AnalysisLimit, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return nil, err
	}
	snapshot.Usage = usage
	return snapshot, nil
}

func (f *Fetcher) usageFor(userID uint, limit int64, periodStart, periodEnd time.Time) (Usage, error) {
	counter, err := f.repo.GetOrCreateUsage(userID, periodStart.Truncate(time.Second), periodEnd.Truncate(time.Second))
	if err != nil {
		return Usage{}, err
	}
	return Usage{AnalysesUsed: counter.AnalysesUsed, AnalysesLimit: limit}, nil
}

// MonthlyUsage returns calendar-month usage for users without a subscription
// period, i.e. the free tier.
func (f *Fetcher) MonthlyUsage(userID uint, limit int64) (Usage, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return f.usageFor(userID, limit, start, end)
}

// Invalidate drops the cached snapshot so the next read hits the provider.
func (f *Fetcher) Invalidate(ctx context.Context, userID uint) {
	_ = f.cache.Invalidate(ctx, subscriptionCacheKey(userID))
}
