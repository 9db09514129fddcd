package billing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/customer"
	"github.com/stripe/stripe-go/v83/paymentmethod"
	"github.com/stripe/stripe-go/v83/setupintent"
	"github.com/stripe/stripe-go/v83/subscription"
)

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	webhookSecret string
}

// ErrStripeNotConfigured is returned when STRIPE_SECRET_KEY is missing.
var ErrStripeNotConfigured = errors.New("STRIPE_SECRET_KEY is not set")

// NewStripeProviderFromEnv configures the global Stripe client from
// STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET.
func NewStripeProviderFromEnv() (*StripeProvider, error) {
	key := os.Getenv("STRIPE_SECRET_KEY")
	if key == "" {
		return nil, ErrStripeNotConfigured
	}
	stripe.Key = key
	return &StripeProvider{
		webhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
	}, nil
}

// WebhookSecret returns the endpoint signing secret for webhook verification.
func (p *StripeProvider) WebhookSecret() string {
	return p.webhookSecret
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, in CustomerParams) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(in.Email),
		Name:  stripe.String(in.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", fmt.Sprintf("%d", in.UserID))

	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateSetupIntent(ctx context.Context, customerID, idempotencyKey string) (*CollectionSession, error) {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customerID),
		Usage:    stripe.String(string(stripe.SetupIntentUsageOffSession)),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	si, err := setupintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create setup intent: %w", err)
	}
	return &CollectionSession{SetupIntentID: si.ID, ClientSecret: si.ClientSecret}, nil
}

func (p *StripeProvider) GetSetupIntent(ctx context.Context, setupIntentID string) (*SetupIntentState, error) {
	params := &stripe.SetupIntentParams{}
	params.Context = ctx

	si, err := setupintent.Get(setupIntentID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get setup intent: %w", err)
	}

	state := &SetupIntentState{ID: si.ID, Status: string(si.Status)}
	if si.PaymentMethod != nil {
		state.PaymentMethodID = si.PaymentMethod.ID
	}
	if si.LastSetupError != nil {
		state.LastError = si.LastSetupError.Msg
	}
	return state, nil
}

func (p *StripeProvider) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	defaultID, err := p.defaultPaymentMethodID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx

	var methods []PaymentMethod
	iter := paymentmethod.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		methods = append(methods, normalizePaymentMethod(pm, defaultID))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list payment methods: %w", err)
	}
	return methods, nil
}

func (p *StripeProvider) defaultPaymentMethodID(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := customer.Get(customerID, params)
	if err != nil {
		return "", fmt.Errorf("stripe: get customer: %w", err)
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		return c.InvoiceSettings.DefaultPaymentMethod.ID, nil
	}
	return "", nil
}

func normalizePaymentMethod(pm *stripe.PaymentMethod, defaultID string) PaymentMethod {
	out := PaymentMethod{
		ID:        pm.ID,
		Type:      PaymentMethodOther,
		IsDefault: pm.ID == defaultID,
		CreatedAt: time.Unix(pm.Created, 0).UTC(),
	}
	switch pm.Type {
	case stripe.PaymentMethodTypeCard:
		out.Type = PaymentMethodCard
		if pm.Card != nil {
			out.Card = &CardDetails{
				Brand:    string(pm.Card.Brand),
				Last4:    pm.Card.Last4,
				ExpMonth: pm.Card.ExpMonth,
				ExpYear:  pm.Card.ExpYear,
			}
		}
	case stripe.PaymentMethodTypeLink:
		out.Type = PaymentMethodLink
		if pm.Link != nil {
			out.Email = pm.Link.Email
		}
	}
	return out
}

func (p *StripeProvider) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx

	if _, err := customer.Update(customerID, params); err != nil {
		return fmt.Errorf("stripe: set default payment method: %w", err)
	}
	return nil
}

func (p *StripeProvider) CurrentSubscription(ctx context.Context, customerID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(10)

	var newest *stripe.Subscription
	iter := subscription.List(params)
	for iter.Next() {
		s := iter.Subscription()
		if s.Status == stripe.SubscriptionStatusCanceled || s.Status == stripe.SubscriptionStatusIncompleteExpired {
			continue
		}
		if newest == nil || s.Created > newest.Created {
			newest = s
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list subscriptions: %w", err)
	}
	if newest == nil {
		return nil, nil
	}
	return normalizeSubscription(newest), nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, customerID, priceRef, idempotencyKey string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceRef)},
		},
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	s, err := subscription.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create subscription: %w", err)
	}
	return normalizeSubscription(s), nil
}

func (p *StripeProvider) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceRef string) (*ProviderSubscription, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx

	current, err := subscription.Get(subscriptionID, getParams)
	if err != nil {
		return nil, fmt.Errorf("stripe: get subscription: %w", err)
	}
	if len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe: subscription %s has no items", subscriptionID)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(priceRef),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.Context = ctx

	s, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: update subscription: %w", err)
	}
	return normalizeSubscription(s), nil
}

func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	s, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: cancel subscription: %w", err)
	}
	return normalizeSubscription(s), nil
}

// normalizeSubscription maps a Stripe subscription to the provider-neutral
// shape. Billing periods live on the subscription item.
func normalizeSubscription(s *stripe.Subscription) *ProviderSubscription {
	out := &ProviderSubscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			out.PriceRef = item.Price.ID
		}
		out.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	return out
}
