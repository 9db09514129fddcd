package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DanielKovacs/CoachEcho/app/models"
)

// Repository is the persistence boundary of the billing package. Only the
// local mirror lives behind it; authoritative subscription reads go through
// the Provider.
type Repository interface {
	GetPlanByCode(code string) (*models.BillingPlan, error)
	GetPlanByPriceRef(provider, priceRef string) (*models.BillingPlan, error)
	ListActivePlans() ([]models.BillingPlan, error)

	GetUserByID(userID uint) (*models.User, error)

	GetBillingCustomer(userID uint, provider string) (*models.BillingCustomer, error)
	GetBillingCustomerByProviderID(provider, providerCustomerID string) (*models.BillingCustomer, error)
	SaveBillingCustomer(customer *models.BillingCustomer) error

	UpsertSubscription(sub *models.BillingSubscription) error
	ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error)

	GetOrCreateUserSettings(userID uint) (*models.UserSettings, error)
	SaveUserSettings(settings *models.UserSettings) error

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, error)
	MarkWebhookProcessed(eventID uint, processingError string) error

	GetOrCreateUsage(userID uint, periodStart, periodEnd time.Time) (*models.UsageCounter, error)
	IncrementAnalyses(counterID uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns the GORM-backed repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetPlanByCode(code string) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	if err := r.db.Where("code = ? AND is_active = ?", code, true).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) GetPlanByPriceRef(provider, priceRef string) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	err := r.db.Where("provider = ? AND provider_price_ref = ?", provider, priceRef).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) ListActivePlans() ([]models.BillingPlan, error) {
	var plans []models.BillingPlan
	err := r.db.Where("is_active = ?", true).Order("sort_order asc").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) GetUserByID(userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetBillingCustomer(userID uint, provider string) (*models.BillingCustomer, error) {
	var customer models.BillingCustomer
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormRepository) GetBillingCustomerByProviderID(provider, providerCustomerID string) (*models.BillingCustomer, error) {
	var customer models.BillingCustomer
	err := r.db.Where("provider = ? AND provider_customer_id = ?", provider, providerCustomerID).First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormRepository) SaveBillingCustomer(customer *models.BillingCustomer) error {
	return r.db.Save(customer).Error
}

// UpsertSubscription inserts or updates the mirror row keyed by provider and
// provider subscription id.
func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "provider_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_price_ref", "plan_code", "billing_interval", "status",
			"current_period_start", "current_period_end", "cancel_at_period_end",
			"raw_payload_json", "updated_at",
		}),
	}).Create(sub).Error
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("user_id = ?", userID).Order("updated_at desc").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	return models.GetOrCreateUserSettings(r.db, userID)
}

func (r *gormRepository) SaveUserSettings(settings *models.UserSettings) error {
	return r.db.Save(settings).Error
}

// CreateWebhookEventIfNotExists inserts the event and reports whether the row
// is new. Replays of the same provider event id are absorbed by the unique
// index and return created=false.
func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.BillingWebhookEvent
		err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).First(&existing).Error
		if err == nil {
			*event = existing
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *gormRepository) MarkWebhookProcessed(eventID uint, processingError string) error {
	now := time.Now()
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", eventID).Updates(map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}).Error
}

func (r *gormRepository) GetOrCreateUsage(userID uint, periodStart, periodEnd time.Time) (*models.UsageCounter, error) {
	var counter models.UsageCounter
	err := r.db.Where("user_id = ? AND period_start = ?", userID, periodStart).First(&counter).Error
	if err == nil {
		return &counter, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	counter = models.UsageCounter{UserID: userID, PeriodStart: periodStart, PeriodEnd: periodEnd}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_start"}},
		DoNothing: true,
	}).Create(&counter).Error; err != nil {
		return nil, err
	}
	if counter.ID == 0 {
		// lost the race, load the winner
		if err := r.db.Where("user_id = ? AND period_start = ?", userID, periodStart).First(&counter).Error; err != nil {
			return nil, err
		}
	}
	return &counter, nil
}

func (r *gormRepository) IncrementAnalyses(counterID uint) error {
	return r.db.Model(&models.UsageCounter{}).Where("id = ?", counterID).
		UpdateColumn("analyses_used", gorm.Expr("analyses_used + 1")).Error
}

// fallbackEventID derives a stable event id from the payload for providers or
// test fixtures that deliver without one.
func fallbackEventID(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "gen_" + hex.EncodeToString(sum[:16])
}
