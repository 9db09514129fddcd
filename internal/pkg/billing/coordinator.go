package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DanielKovacs/CoachEcho/app/models"
)

// CheckoutPhase names the states of an in-progress plan change. The union is
// explicit: a user is in exactly one phase at a time, and each phase carries
// only the data valid for it.
type CheckoutPhase string

const (
	// PhaseIdle is the implicit phase when no state is persisted.
	PhaseIdle CheckoutPhase = "idle"
	// PhaseRequesting marks a mutation in flight against the provider.
	PhaseRequesting CheckoutPhase = "requesting"
	// PhaseAwaitingPaymentSetup means a collection session is open and the
	// change resumes once the client confirms it.
	PhaseAwaitingPaymentSetup CheckoutPhase = "awaiting_payment_setup"
)

// checkoutState is the persisted phase record. The client secret is handed to
// the client once and deliberately absent here; only the setup intent id is
// kept for matching the confirmation.
type checkoutState struct {
	Phase         CheckoutPhase `json:"phase"`
	PlanCode      string        `json:"plan_code"`
	SetupIntentID string        `json:"setup_intent_id,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
}

const (
	checkoutCacheKeyFmt = "billing:checkout:%d"
	// checkoutTTL bounds how long an abandoned change blocks new ones.
	checkoutTTL = 30 * time.Minute
	// requestingTTL bounds the in-flight lock; a crashed mutation unlocks
	// itself after this.
	requestingTTL = 2 * time.Minute
)

// ChangeResult is the outcome of a plan change request. Either the change
// completed and Subscription is set, or payment setup is required and the
// collection fields are set.
type ChangeResult struct {
	RequiresPayment bool           `json:"requires_payment"`
	ClientSecret    string         `json:"client_secret,omitempty"`
	SetupIntentID   string         `json:"setup_intent_id,omitempty"`
	PlanCode        string         `json:"plan_code"`
	Category        ChangeCategory `json:"category"`
	Subscription    *Snapshot      `json:"subscription,omitempty"`
}

// Coordinator drives plan changes end to end: it decides whether payment
// setup is needed, keeps the per-user checkout phase in the cache, enforces
// one mutation in flight per user, and invalidates the read caches after
// every completed mutation.
type Coordinator struct {
	provider  Provider
	repo      Repository
	customers *CustomerResolver
	methods   *MethodStore
	fetcher   *Fetcher
	sync      *SyncService
	cache     KeyValueCache
}

func NewCoordinator(provider Provider, repo Repository, customers *CustomerResolver, methods *MethodStore, fetcher *Fetcher, sync *SyncService, cache KeyValueCache) *Coordinator {
	return &Coordinator{
		provider:  provider,
		repo:      repo,
		customers: customers,
		methods:   methods,
		fetcher:   fetcher,
		sync:      sync,
		cache:     cache,
	}
}

func checkoutCacheKey(userID uint) string {
	return fmt.Sprintf(checkoutCacheKeyFmt, userID)
}

// Phase returns the user's current checkout phase and, when a collection
// session is open, the plan it belongs to.
func (c *Coordinator) Phase(ctx context.Context, userID uint) (CheckoutPhase, string, error) {
	var state checkoutState
	hit, err := c.cache.GetJSON(ctx, checkoutCacheKey(userID), &state)
	if err != nil {
		return PhaseIdle, "", err
	}
	if !hit {
		return PhaseIdle, "", nil
	}
	return state.Phase, state.PlanCode, nil
}

// acquire transitions the user from idle into the given phase, failing when
// any phase is already persisted. This is the single-flight gate.
func (c *Coordinator) acquire(ctx context.Context, userID uint, state checkoutState, ttl time.Duration) error {
	won, err := c.cache.SetJSONNX(ctx, checkoutCacheKey(userID), state, ttl)
	if err != nil {
		return newError(KindMutationFailed, "Could not start the plan change.", err)
	}
	if !won {
		return newError(KindMutationInFlight, "Another plan change is already in progress.", nil)
	}
	return nil
}

func (c *Coordinator) release(ctx context.Context, userID uint) {
	_ = c.cache.Invalidate(ctx, checkoutCacheKey(userID))
}

// ChangePlan switches the user to the named plan. Free plans never touch
// payment methods; paid plans without a default payment method get a
// collection session instead of an immediate mutation.
func (c *Coordinator) ChangePlan(ctx context.Context, userID uint, planCode string) (*ChangeResult, error) {
	plan, err := c.repo.GetPlanByCode(planCode)
	if err != nil {
		return nil, newError(KindMutationFailed, "Unknown plan.", err)
	}

	if plan.IsFree() {
		return c.downgradeToFree(ctx, userID, plan)
	}

	if err := c.acquire(ctx, userID, checkoutState{
		Phase:     PhaseRequesting,
		PlanCode:  plan.Code,
		StartedAt: time.Now().UTC(),
	}, requestingTTL); err != nil {
		return nil, err
	}

	hasDefault, err := c.methods.HasDefault(ctx, userID)
	if err != nil {
		c.release(ctx, userID)
		return nil, err
	}

	if !hasDefault {
		session, err := c.methods.BeginAdd(ctx, userID)
		if err != nil {
			c.release(ctx, userID)
			return nil, err
		}
		// replace the lock with the awaiting record; confirmation or
		// abandonment clears it
		if err := c.cache.SetJSON(ctx, checkoutCacheKey(userID), checkoutState{
			Phase:         PhaseAwaitingPaymentSetup,
			PlanCode:      plan.Code,
			SetupIntentID: session.SetupIntentID,
			StartedAt:     time.Now().UTC(),
		}, checkoutTTL); err != nil {
			c.release(ctx, userID)
			return nil, newError(KindSetupRequestFailed, "Could not start the plan change.", err)
		}
		return &ChangeResult{
			RequiresPayment: true,
			ClientSecret:    session.ClientSecret,
			SetupIntentID:   session.SetupIntentID,
			PlanCode:        plan.Code,
		}, nil
	}

	result, err := c.applyPaidChange(ctx, userID, plan)
	c.release(ctx, userID)
	return result, err
}

// ConfirmPaymentSetup resumes a plan change after the client-side widget
// collected a payment method. The setup intent must match the open session.
func (c *Coordinator) ConfirmPaymentSetup(ctx context.Context, userID uint, setupIntentID string) (*ChangeResult, error) {
	var state checkoutState
	hit, err := c.cache.GetJSON(ctx, checkoutCacheKey(userID), &state)
	if err != nil || !hit || state.Phase != PhaseAwaitingPaymentSetup {
		return nil, newError(KindPaymentConfirmationFailed, "No payment setup is in progress.", err)
	}
	if state.SetupIntentID != setupIntentID {
		return nil, newError(KindPaymentConfirmationFailed, "This payment setup is no longer current.", nil)
	}

	if _, err := c.methods.ConfirmAdd(ctx, userID, setupIntentID); err != nil {
		// keep the awaiting state so the client can retry in the widget
		return nil, err
	}

	plan, err := c.repo.GetPlanByCode(state.PlanCode)
	if err != nil {
		c.release(ctx, userID)
		return nil, newError(KindMutationFailed, "Unknown plan.", err)
	}

	result, err := c.applyPaidChange(ctx, userID, plan)
	c.release(ctx, userID)
	return result, err
}

// Abandon discards any open checkout state. Safe to call in every phase.
func (c *Coordinator) Abandon(ctx context.Context, userID uint) {
	c.release(ctx, userID)
}

// applyPaidChange performs the actual subscription mutation for a paid plan:
// price change when a subscription exists, creation otherwise. On success the
// mirror is synced and both read caches are invalidated.
func (c *Coordinator) applyPaidChange(ctx context.Context, userID uint, plan *models.BillingPlan) (*ChangeResult, error) {
	customer, err := c.customers.Ensure(ctx, userID)
	if err != nil {
		return nil, newError(KindMutationFailed, "Could not change your plan.", err)
	}

	current, err := c.provider.CurrentSubscription(ctx, customer.ProviderCustomerID)
	if err != nil {
		return nil, newError(KindMutationFailed, "Could not change your plan.", err)
	}

	fromCode := "starter"
	var mutated *ProviderSubscription
	if current != nil {
		if p, err := c.repo.GetPlanByPriceRef(models.BillingProviderStripe, current.PriceRef); err == nil {
			fromCode = p.Code
		}
		mutated, err = c.provider.ChangeSubscriptionPrice(ctx, current.ID, plan.ProviderPriceRef)
	} else {
		mutated, err = c.provider.CreateSubscription(ctx, customer.ProviderCustomerID, plan.ProviderPriceRef, uuid.New().String())
	}
	if err != nil {
		return nil, newError(KindMutationFailed, "Could not change your plan.", err)
	}

	if err := c.sync.SyncProviderSubscription(userID, mutated); err != nil {
		// the provider-side change happened; stale reads must not outlive it
		c.invalidateReads(ctx, userID)
		return nil, newError(KindMutationFailed, "Plan changed but could not be recorded.", err)
	}

	c.invalidateReads(ctx, userID)

	snapshot, err := c.fetcher.Current(ctx, userID)
	if err != nil {
		// the mutation succeeded; a failed re-read must not undo that
		snapshot = nil
	}

	return &ChangeResult{
		PlanCode:     plan.Code,
		Category:     CategorizeChange(fromCode, plan.Code),
		Subscription: snapshot,
	}, nil
}

// downgradeToFree cancels any paid subscription at period end. No payment
// method is read, listed or created on this path.
func (c *Coordinator) downgradeToFree(ctx context.Context, userID uint, plan *models.BillingPlan) (*ChangeResult, error) {
	if err := c.acquire(ctx, userID, checkoutState{
		Phase:     PhaseRequesting,
		PlanCode:  plan.Code,
		StartedAt: time.Now().UTC(),
	}, requestingTTL); err != nil {
		return nil, err
	}
	defer c.release(ctx, userID)

	customer, err := c.customers.Lookup(userID)
	if err != nil {
		return nil, newError(KindMutationFailed, "Could not change your plan.", err)
	}

	fromCode := "starter"
	if customer != nil {
		current, err := c.provider.CurrentSubscription(ctx, customer.ProviderCustomerID)
		if err != nil {
			return nil, newError(KindMutationFailed, "Could not change your plan.", err)
		}
		if current != nil && !current.CancelAtPeriodEnd {
			if p, err := c.repo.GetPlanByPriceRef(models.BillingProviderStripe, current.PriceRef); err == nil {
				fromCode = p.Code
			}
			canceled, err := c.provider.CancelAtPeriodEnd(ctx, current.ID)
			if err != nil {
				return nil, newError(KindMutationFailed, "Could not change your plan.", err)
			}
			if err := c.sync.SyncProviderSubscription(userID, canceled); err != nil {
				c.invalidateSubscriptionRead(ctx, userID)
				return nil, newError(KindMutationFailed, "Plan changed but could not be recorded.", err)
			}
		}
	}

	c.invalidateSubscriptionRead(ctx, userID)

	snapshot, _ := c.currentOrNil(ctx, userID)
	return &ChangeResult{
		PlanCode:     plan.Code,
		Category:     CategorizeChange(fromCode, plan.Code),
		Subscription: snapshot,
	}, nil
}

// CancelSubscription requests cancellation at period end. Access and renewal
// date stay as they are until the period closes.
func (c *Coordinator) CancelSubscription(ctx context.Context, userID uint) (*ChangeResult, error) {
	if err := c.acquire(ctx, userID, checkoutState{
		Phase:     PhaseRequesting,
		StartedAt: time.Now().UTC(),
	}, requestingTTL); err != nil {
		return nil, err
	}
	defer c.release(ctx, userID)

	customer, err := c.customers.Lookup(userID)
	if err != nil {
		return nil, newError(KindMutationFailed, "Could not cancel your subscription.", err)
	}
	if customer == nil {
		return nil, newError(KindMutationFailed, "There is no subscription to cancel.", nil)
	}

	current, err := c.provider.CurrentSubscription(ctx, customer.ProviderCustomerID)
	if err != nil {
		return nil, newError(KindMutationFailed, "Could not cancel your subscription.", err)
	}
	if current == nil {
		return nil, newError(KindMutationFailed, "There is no subscription to cancel.", nil)
	}

	planCode := current.PriceRef
	if p, err := c.repo.GetPlanByPriceRef(models.BillingProviderStripe, current.PriceRef); err == nil {
		planCode = p.Code
	}

	canceled, err := c.provider.CancelAtPeriodEnd(ctx, current.ID)
	if err != nil {
		return nil, newError(KindMutationFailed, "Could not cancel your subscription.", err)
	}
	if err := c.sync.SyncProviderSubscription(userID, canceled); err != nil {
		c.invalidateSubscriptionRead(ctx, userID)
		return nil, newError(KindMutationFailed, "Cancellation succeeded but could not be recorded.", err)
	}

	// payment methods did not change, only the subscription read is stale
	c.invalidateSubscriptionRead(ctx, userID)

	snapshot, _ := c.currentOrNil(ctx, userID)
	return &ChangeResult{
		PlanCode:     planCode,
		Category:     ChangeDowngrade,
		Subscription: snapshot,
	}, nil
}

func (c *Coordinator) invalidateReads(ctx context.Context, userID uint) {
	c.methods.Invalidate(ctx, userID)
	c.fetcher.Invalidate(ctx, userID)
}

func (c *Coordinator) invalidateSubscriptionRead(ctx context.Context, userID uint) {
	c.fetcher.Invalidate(ctx, userID)
}

func (c *Coordinator) currentOrNil(ctx context.Context, userID uint) (*Snapshot, error) {
	snapshot, err := c.fetcher.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
