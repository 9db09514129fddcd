package billing

import "time"

// PaymentMethodType buckets provider payment methods into the shapes the
// clients render.
type PaymentMethodType string

const (
	PaymentMethodCard  PaymentMethodType = "card"
	PaymentMethodLink  PaymentMethodType = "link"
	PaymentMethodOther PaymentMethodType = "other"
)

// CardDetails describes a stored card.
type CardDetails struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// PaymentMethod is the provider-neutral view of a saved payment method.
type PaymentMethod struct {
	ID        string            `json:"id"`
	Type      PaymentMethodType `json:"type"`
	IsDefault bool              `json:"is_default"`
	CreatedAt time.Time         `json:"created_at"`
	Card      *CardDetails      `json:"card,omitempty"`
	Email     string            `json:"email,omitempty"` // redirect-based methods (link)
}

// CollectionSession is an in-progress payment-method collection attempt. The
// client secret authorizes exactly one confirmation with the hosted widget and
// is never persisted to the database.
type CollectionSession struct {
	SetupIntentID string `json:"setup_intent_id"`
	ClientSecret  string `json:"client_secret"`
}

// SetupIntentState is the provider's view of a collection attempt.
type SetupIntentState struct {
	ID              string
	Status          string // "succeeded", "requires_payment_method", ...
	PaymentMethodID string
	LastError       string
}

// ProviderSubscription is the provider-neutral subscription shape returned by
// Provider implementations.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	PriceRef           string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// Usage reports consumed vs. allowed analyses for the current period. A limit
// of -1 means unlimited.
type Usage struct {
	AnalysesUsed  int64 `json:"analyses_used"`
	AnalysesLimit int64 `json:"analyses_limit"`
}

// Snapshot is the canonical read model of a user's subscription. It is derived
// from the provider at read time and never locally mutated; display formatting
// happens at the API boundary, comparisons use the raw codes and timestamps.
type Snapshot struct {
	PlanCode               string    `json:"plan_code"`
	PlanName               string    `json:"plan_name"`
	Status                 string    `json:"status"`
	AmountCents            int64     `json:"amount_cents"`
	Currency               string    `json:"currency"`
	BillingInterval        string    `json:"billing_interval"`
	CurrentPeriodStart     time.Time `json:"current_period_start"`
	CurrentPeriodEnd       time.Time `json:"current_period_end"`
	NextRenewalDate        time.Time `json:"next_renewal_date"`
	CancelAtPeriodEnd      bool      `json:"cancel_at_period_end"`
	ProviderSubscriptionID string    `json:"provider_subscription_id"`
	Usage                  Usage     `json:"usage"`
}

// NormalizedSubscription is the provider-agnostic shape used when syncing
// webhook or mutation results into the local mirror.
type NormalizedSubscription struct {
	UserID                 uint
	Provider               string
	ProviderSubscriptionID string
	ProviderPriceRef       string
	BillingInterval        string
	Status                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	RawPayloadJSON         string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
