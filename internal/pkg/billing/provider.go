package billing

import "context"

// CustomerParams identifies the local user when creating a provider customer.
type CustomerParams struct {
	UserID uint
	Email  string
	Name   string
}

// Provider is the capability interface over the hosted billing provider. The
// stores and the coordinator never look behind it; the hosted payment widget
// on the client side is driven purely by the client secrets it hands out.
type Provider interface {
	// CreateCustomer creates a customer object and returns its provider id.
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)

	// CreateSetupIntent opens a new payment-method collection session. The
	// idempotency key guards against duplicate intents on retries.
	CreateSetupIntent(ctx context.Context, customerID, idempotencyKey string) (*CollectionSession, error)

	// GetSetupIntent fetches the state of a collection session.
	GetSetupIntent(ctx context.Context, setupIntentID string) (*SetupIntentState, error)

	// ListPaymentMethods returns the customer's saved methods with the
	// default flagged.
	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)

	// SetDefaultPaymentMethod marks a method as the customer default.
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	// CurrentSubscription returns the customer's newest non-canceled
	// subscription, or nil when there is none.
	CurrentSubscription(ctx context.Context, customerID string) (*ProviderSubscription, error)

	// CreateSubscription starts a subscription on the given price, charging
	// the customer's default payment method.
	CreateSubscription(ctx context.Context, customerID, priceRef, idempotencyKey string) (*ProviderSubscription, error)

	// ChangeSubscriptionPrice switches an existing subscription to a new price.
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceRef string) (*ProviderSubscription, error)

	// CancelAtPeriodEnd requests cancellation at the end of the current
	// period. The access-until date is whatever the provider returns.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}
