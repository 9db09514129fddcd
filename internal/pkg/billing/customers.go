package billing

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/DanielKovacs/CoachEcho/app/models"
)

// CustomerResolver maps local users to provider customers, creating the
// customer object lazily on first billing interaction.
type CustomerResolver struct {
	repo     Repository
	provider Provider
}

func NewCustomerResolver(repo Repository, provider Provider) *CustomerResolver {
	return &CustomerResolver{repo: repo, provider: provider}
}

// Lookup returns the existing mapping or nil when the user has never touched
// billing. It never creates a provider customer.
func (r *CustomerResolver) Lookup(userID uint) (*models.BillingCustomer, error) {
	customer, err := r.repo.GetBillingCustomer(userID, models.BillingProviderStripe)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return customer, nil
}

// Ensure returns the provider customer for the user, creating one on demand.
func (r *CustomerResolver) Ensure(ctx context.Context, userID uint) (*models.BillingCustomer, error) {
	existing, err := r.Lookup(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	user, err := r.repo.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("resolve user %d: %w", userID, err)
	}

	providerCustomerID, err := r.provider.CreateCustomer(ctx, CustomerParams{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
	if err != nil {
		return nil, err
	}

	customer := &models.BillingCustomer{
		UserID:             user.ID,
		Provider:           models.BillingProviderStripe,
		ProviderCustomerID: providerCustomerID,
		Email:              user.Email,
	}
	if err := r.repo.SaveBillingCustomer(customer); err != nil {
		return nil, err
	}
	return customer, nil
}
