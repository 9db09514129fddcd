package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/DanielKovacs/CoachEcho/app/models"
)

// fakeCache is an in-memory KeyValueCache.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) GetJSON(_ context.Context, key string, v interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *fakeCache) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *fakeCache) SetJSONNX(_ context.Context, key string, v interface{}, _ time.Duration) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[key]; exists {
		return false, nil
	}
	c.data[key] = raw
	return true, nil
}

func (c *fakeCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// fakeProvider implements Provider with scripted state and call counters.
type fakeProvider struct {
	customers        map[string]bool
	methods          map[string][]PaymentMethod
	subscription     *ProviderSubscription
	setupIntents     map[string]*SetupIntentState
	nextCustomerID   int
	nextSetupIntent  int
	listMethodCalls  int
	setDefaultCalls  int
	createSubCalls   int
	changePriceCalls int
	cancelCalls      int
	failListMethods  bool
	failSetDefault   bool
	failCreateSub    bool
	failSetupIntent  bool
	failListSubs     bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		customers:    map[string]bool{},
		methods:      map[string][]PaymentMethod{},
		setupIntents: map[string]*SetupIntentState{},
	}
}

func (p *fakeProvider) CreateCustomer(_ context.Context, _ CustomerParams) (string, error) {
	p.nextCustomerID++
	id := fmt.Sprintf("cus_%d", p.nextCustomerID)
	p.customers[id] = true
	return id, nil
}

func (p *fakeProvider) CreateSetupIntent(_ context.Context, customerID, _ string) (*CollectionSession, error) {
	if p.failSetupIntent {
		return nil, fmt.Errorf("fake: setup intent refused")
	}
	p.nextSetupIntent++
	id := fmt.Sprintf("seti_%d", p.nextSetupIntent)
	p.setupIntents[id] = &SetupIntentState{ID: id, Status: "requires_payment_method"}
	return &CollectionSession{SetupIntentID: id, ClientSecret: id + "_secret_test"}, nil
}

func (p *fakeProvider) GetSetupIntent(_ context.Context, setupIntentID string) (*SetupIntentState, error) {
	state, ok := p.setupIntents[setupIntentID]
	if !ok {
		return nil, fmt.Errorf("fake: unknown setup intent %s", setupIntentID)
	}
	return state, nil
}

func (p *fakeProvider) ListPaymentMethods(_ context.Context, customerID string) ([]PaymentMethod, error) {
	p.listMethodCalls++
	if p.failListMethods {
		return nil, fmt.Errorf("fake: network down")
	}
	return p.methods[customerID], nil
}

func (p *fakeProvider) SetDefaultPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	p.setDefaultCalls++
	if p.failSetDefault {
		return fmt.Errorf("fake: set default refused")
	}
	found := false
	for i := range p.methods[customerID] {
		isTarget := p.methods[customerID][i].ID == paymentMethodID
		p.methods[customerID][i].IsDefault = isTarget
		if isTarget {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("fake: no such payment method %s", paymentMethodID)
	}
	return nil
}

func (p *fakeProvider) CurrentSubscription(_ context.Context, _ string) (*ProviderSubscription, error) {
	if p.failListSubs {
		return nil, fmt.Errorf("fake: network down")
	}
	return p.subscription, nil
}

func (p *fakeProvider) CreateSubscription(_ context.Context, customerID, priceRef, _ string) (*ProviderSubscription, error) {
	p.createSubCalls++
	if p.failCreateSub {
		return nil, fmt.Errorf("fake: create refused")
	}
	now := time.Now().UTC().Truncate(time.Second)
	p.subscription = &ProviderSubscription{
		ID:                 fmt.Sprintf("sub_%d", p.createSubCalls),
		CustomerID:         customerID,
		PriceRef:           priceRef,
		Status:             "active",
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
	return p.subscription, nil
}

func (p *fakeProvider) ChangeSubscriptionPrice(_ context.Context, subscriptionID, priceRef string) (*ProviderSubscription, error) {
	p.changePriceCalls++
	if p.subscription == nil || p.subscription.ID != subscriptionID {
		return nil, fmt.Errorf("fake: no such subscription %s", subscriptionID)
	}
	p.subscription.PriceRef = priceRef
	p.subscription.CancelAtPeriodEnd = false
	return p.subscription, nil
}

func (p *fakeProvider) CancelAtPeriodEnd(_ context.Context, subscriptionID string) (*ProviderSubscription, error) {
	p.cancelCalls++
	if p.subscription == nil || p.subscription.ID != subscriptionID {
		return nil, fmt.Errorf("fake: no such subscription %s", subscriptionID)
	}
	p.subscription.CancelAtPeriodEnd = true
	return p.subscription, nil
}

// addCardMethod seeds a saved card for a customer.
func (p *fakeProvider) addCardMethod(customerID, id string, isDefault bool) {
	p.methods[customerID] = append(p.methods[customerID], PaymentMethod{
		ID:        id,
		Type:      PaymentMethodCard,
		IsDefault: isDefault,
		CreatedAt: time.Now().UTC(),
		Card:      &CardDetails{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
	})
}

// succeedSetupIntent scripts a collection session to completion and attaches
// the resulting method.
func (p *fakeProvider) succeedSetupIntent(customerID, setupIntentID, paymentMethodID string) {
	p.setupIntents[setupIntentID] = &SetupIntentState{
		ID:              setupIntentID,
		Status:          "succeeded",
		PaymentMethodID: paymentMethodID,
	}
	p.addCardMethod(customerID, paymentMethodID, false)
}

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	users         map[uint]*models.User
	plans         []models.BillingPlan
	customers     map[uint]*models.BillingCustomer
	subscriptions map[string]*models.BillingSubscription
	settings      map[uint]*models.UserSettings
	webhookEvents map[string]*models.BillingWebhookEvent
	usage         map[string]*models.UsageCounter
	nextID        uint

	failUpsertOnce bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         map[uint]*models.User{},
		customers:     map[uint]*models.BillingCustomer{},
		subscriptions: map[string]*models.BillingSubscription{},
		settings:      map[uint]*models.UserSettings{},
		webhookEvents: map[string]*models.BillingWebhookEvent{},
		usage:         map[string]*models.UsageCounter{},
	}
}

func (r *fakeRepo) id() uint {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) seedPlans() {
	r.plans = []models.BillingPlan{
		{ID: 1, Code: "starter", Name: "Starter", Provider: "stripe", AmountCents: 0, Currency: "usd", BillingInterval: "month", AnalysisLimit: 5, IsActive: true},
		{ID: 2, Code: "exec_monthly", Name: "Executive Monthly", Provider: "stripe", ProviderPriceRef: "price_exec_monthly", AmountCents: 2900, Currency: "usd", BillingInterval: "month", AnalysisLimit: 200, IsActive: true},
		{ID: 3, Code: "exec_yearly", Name: "Executive Yearly", Provider: "stripe", ProviderPriceRef: "price_exec_yearly", AmountCents: 29900, Currency: "usd", BillingInterval: "year", AnalysisLimit: 200, IsActive: true},
	}
}

func (r *fakeRepo) seedUser(id uint, email string) {
	r.users[id] = &models.User{ID: id, Name: "Test User", Email: email}
}

func (r *fakeRepo) GetPlanByCode(code string) (*models.BillingPlan, error) {
	for i := range r.plans {
		if r.plans[i].Code == code && r.plans[i].IsActive {
			plan := r.plans[i]
			return &plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetPlanByPriceRef(provider, priceRef string) (*models.BillingPlan, error) {
	if priceRef == "" {
		return nil, gorm.ErrRecordNotFound
	}
	for i := range r.plans {
		if r.plans[i].Provider == provider && r.plans[i].ProviderPriceRef == priceRef {
			plan := r.plans[i]
			return &plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListActivePlans() ([]models.BillingPlan, error) {
	return r.plans, nil
}

func (r *fakeRepo) GetUserByID(userID uint) (*models.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *fakeRepo) GetBillingCustomer(userID uint, provider string) (*models.BillingCustomer, error) {
	customer, ok := r.customers[userID]
	if !ok || customer.Provider != provider {
		return nil, gorm.ErrRecordNotFound
	}
	return customer, nil
}

func (r *fakeRepo) GetBillingCustomerByProviderID(provider, providerCustomerID string) (*models.BillingCustomer, error) {
	for _, customer := range r.customers {
		if customer.Provider == provider && customer.ProviderCustomerID == providerCustomerID {
			return customer, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) SaveBillingCustomer(customer *models.BillingCustomer) error {
	if customer.ID == 0 {
		customer.ID = r.id()
	}
	r.customers[customer.UserID] = customer
	return nil
}

func (r *fakeRepo) UpsertSubscription(sub *models.BillingSubscription) error {
	if r.failUpsertOnce {
		r.failUpsertOnce = false
		return fmt.Errorf("fake: upsert refused")
	}
	key := sub.Provider + "/" + sub.ProviderSubscriptionID
	if existing, ok := r.subscriptions[key]; ok {
		sub.ID = existing.ID
	} else if sub.ID == 0 {
		sub.ID = r.id()
	}
	copied := *sub
	r.subscriptions[key] = &copied
	return nil
}

func (r *fakeRepo) ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error) {
	var out []models.BillingSubscription
	for _, sub := range r.subscriptions {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	if settings, ok := r.settings[userID]; ok {
		return settings, nil
	}
	settings := &models.UserSettings{ID: r.id(), UserID: userID, Plan: "starter"}
	r.settings[userID] = settings
	return settings, nil
}

func (r *fakeRepo) SaveUserSettings(settings *models.UserSettings) error {
	r.settings[settings.UserID] = settings
	return nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := r.webhookEvents[key]; ok {
		*event = *existing
		return false, nil
	}
	event.ID = r.id()
	copied := *event
	r.webhookEvents[key] = &copied
	return true, nil
}

func (r *fakeRepo) MarkWebhookProcessed(eventID uint, processingError string) error {
	now := time.Now()
	for _, event := range r.webhookEvents {
		if event.ID == eventID {
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetOrCreateUsage(userID uint, periodStart, periodEnd time.Time) (*models.UsageCounter, error) {
	key := fmt.Sprintf("%d/%d", userID, periodStart.Unix())
	if counter, ok := r.usage[key]; ok {
		return counter, nil
	}
	counter := &models.UsageCounter{ID: r.id(), UserID: userID, PeriodStart: periodStart, PeriodEnd: periodEnd}
	r.usage[key] = counter
	return counter, nil
}

func (r *fakeRepo) IncrementAnalyses(counterID uint) error {
	for _, counter := range r.usage {
		if counter.ID == counterID {
			counter.AnalysesUsed++
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// testHarness bundles the billing services over the fakes.
type testHarness struct {
	provider    *fakeProvider
	repo        *fakeRepo
	cache       *fakeCache
	customers   *CustomerResolver
	methods     *MethodStore
	fetcher     *Fetcher
	sync        *SyncService
	coordinator *Coordinator
}

func newTestHarness() *testHarness {
	provider := newFakeProvider()
	repo := newFakeRepo()
	repo.seedPlans()
	repo.seedUser(1, "lead@example.com")
	cache := newFakeCache()

	customers := NewCustomerResolver(repo, provider)
	methods := NewMethodStore(provider, customers, cache)
	fetcher := NewFetcher(provider, repo, customers, cache)
	sync := NewSyncService(repo)
	coordinator := NewCoordinator(provider, repo, customers, methods, fetcher, sync, cache)

	return &testHarness{
		provider:    provider,
		repo:        repo,
		cache:       cache,
		customers:   customers,
		methods:     methods,
		fetcher:     fetcher,
		sync:        sync,
		coordinator: coordinator,
	}
}

// withCustomer links user 1 to a provider customer.
func (h *testHarness) withCustomer() string {
	customerID := "cus_test"
	h.provider.customers[customerID] = true
	h.repo.customers[1] = &models.BillingCustomer{
		ID: h.repo.id(), UserID: 1, Provider: "stripe", ProviderCustomerID: customerID,
	}
	return customerID
}

// withActiveSubscription puts user 1 on exec_monthly.
func (h *testHarness) withActiveSubscription() string {
	customerID := h.withCustomer()
	now := time.Now().UTC().Truncate(time.Second)
	h.provider.subscription = &ProviderSubscription{
		ID:                 "sub_live",
		CustomerID:         customerID,
		PriceRef:           "price_exec_monthly",
		Status:             "active",
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
	return customerID
}
