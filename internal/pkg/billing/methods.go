package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KeyValueCache is the slice of the cache layer the billing package needs.
type KeyValueCache interface {
	GetJSON(ctx context.Context, key string, v interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	SetJSONNX(ctx context.Context, key string, v interface{}, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

const (
	methodsCacheKeyFmt = "billing:methods:%d"
	methodsCacheTTL    = 5 * time.Minute
)

// MethodStore serves a user's saved payment methods through a read-through
// cache. Mutations invalidate the cache instead of patching it, so the next
// read reflects the provider's truth.
type MethodStore struct {
	provider  Provider
	customers *CustomerResolver
	cache     KeyValueCache
}

func NewMethodStore(provider Provider, customers *CustomerResolver, cache KeyValueCache) *MethodStore {
	return &MethodStore{provider: provider, customers: customers, cache: cache}
}

func methodsCacheKey(userID uint) string {
	return fmt.Sprintf(methodsCacheKeyFmt, userID)
}

// List returns the user's saved payment methods. Users without a provider
// customer have none; no provider call is made for them.
func (s *MethodStore) List(ctx context.Context, userID uint) ([]PaymentMethod, error) {
	var cached []PaymentMethod
	if hit, err := s.cache.GetJSON(ctx, methodsCacheKey(userID), &cached); err == nil && hit {
		return cached, nil
	}

	customer, err := s.customers.Lookup(userID)
	if err != nil {
		return nil, newError(KindFetchFailed, "Could not load payment methods.", err)
	}
	if customer == nil {
		return []PaymentMethod{}, nil
	}

	methods, err := s.provider.ListPaymentMethods(ctx, customer.ProviderCustomerID)
	if err != nil {
		return nil, newError(KindFetchFailed, "Could not load payment methods.", err)
	}
	if methods == nil {
		methods = []PaymentMethod{}
	}

	// cache failures are not load failures
	_ = s.cache.SetJSON(ctx, methodsCacheKey(userID), methods, methodsCacheTTL)
	return methods, nil
}

// HasDefault reports whether the user has a default payment method on file.
func (s *MethodStore) HasDefault(ctx context.Context, userID uint) (bool, error) {
	methods, err := s.List(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, m := range methods {
		if m.IsDefault {
			return true, nil
		}
	}
	return false, nil
}

// BeginAdd opens a payment-method collection session. The returned client
// secret goes straight to the client and is never persisted.
func (s *MethodStore) BeginAdd(ctx context.Context, userID uint) (*CollectionSession, error) {
	customer, err := s.customers.Ensure(ctx, userID)
	if err != nil {
		return nil, newError(KindSetupRequestFailed, "Could not start adding a payment method.", err)
	}

	session, err := s.provider.CreateSetupIntent(ctx, customer.ProviderCustomerID, uuid.New().String())
	if err != nil {
		return nil, newError(KindSetupRequestFailed, "Could not start adding a payment method.", err)
	}
	return session, nil
}

// ConfirmAdd finalizes a collection session after the client-side widget
// reported success. The new method becomes the default and the cached list is
// invalidated so the next read includes it.
func (s *MethodStore) ConfirmAdd(ctx context.Context, userID uint, setupIntentID string) ([]PaymentMethod, error) {
	customer, err := s.customers.Lookup(userID)
	if err != nil || customer == nil {
		return nil, newError(KindPaymentConfirmationFailed, "Payment setup could not be confirmed.", err)
	}

	state, err := s.provider.GetSetupIntent(ctx, setupIntentID)
	if err != nil {
		return nil, newError(KindPaymentConfirmationFailed, "Payment setup could not be confirmed.", err)
	}
	if state.Status != "succeeded" || state.PaymentMethodID == "" {
		msg := "Payment setup did not complete."
		if state.LastError != "" {
			msg = state.LastError
		}
		return nil, newError(KindPaymentConfirmationFailed, msg, nil)
	}

	if err := s.provider.SetDefaultPaymentMethod(ctx, customer.ProviderCustomerID, state.PaymentMethodID); err != nil {
		return nil, newError(KindDefaultUpdateFailed, "Could not set the new payment method as default.", err)
	}

	_ = s.cache.Invalidate(ctx, methodsCacheKey(userID))
	return s.List(ctx, userID)
}

// SetDefault marks an existing method as the customer default. On failure the
// cached list stays valid and unchanged.
func (s *MethodStore) SetDefault(ctx context.Context, userID uint, paymentMethodID string) ([]PaymentMethod, error) {
	customer, err := s.customers.Lookup(userID)
	if err != nil {
		return nil, newError(KindDefaultUpdateFailed, "Could not update the default payment method.", err)
	}
	if customer == nil {
		return nil, newError(KindDefaultUpdateFailed, "No billing account exists for this user.", nil)
	}

	if err := s.provider.SetDefaultPaymentMethod(ctx, customer.ProviderCustomerID, paymentMethodID); err != nil {
		return nil, newError(KindDefaultUpdateFailed, "Could not update the default payment method.", err)
	}

	_ = s.cache.Invalidate(ctx, methodsCacheKey(userID))
	return s.List(ctx, userID)
}

// Invalidate drops the cached method list for the user.
func (s *MethodStore) Invalidate(ctx context.Context, userID uint) {
	_ = s.cache.Invalidate(ctx, methodsCacheKey(userID))
}
