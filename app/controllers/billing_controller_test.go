package controllers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DanielKovacs/CoachEcho/internal/pkg/billing"
)

func TestFormatTimePtr(t *testing.T) {
	assert.Nil(t, formatTimePtr(nil))

	now := time.Date(2026, 5, 1, 12, 34, 56, 0, time.Local)
	formatted := formatTimePtr(&now)
	assert.IsType(t, "", formatted)

	expected := now.UTC().Format(time.RFC3339)
	assert.Equal(t, expected, formatted)
}

func TestPresentPaymentMethod(t *testing.T) {
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	card := presentPaymentMethod(billing.PaymentMethod{
		ID:        "pm_1",
		Type:      billing.PaymentMethodCard,
		IsDefault: true,
		CreatedAt: created,
		Card:      &billing.CardDetails{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
	})
	assert.Equal(t, "pm_1", card["id"])
	assert.Equal(t, "card", card["type"])
	assert.Equal(t, true, card["is_default"])
	assert.Equal(t, "2026-02-03T04:05:06Z", card["created_at"])
	assert.NotNil(t, card["card"])
	assert.NotContains(t, card, "email")

	link := presentPaymentMethod(billing.PaymentMethod{
		ID:    "pm_2",
		Type:  billing.PaymentMethodLink,
		Email: "lead@example.com",
	})
	assert.Equal(t, "lead@example.com", link["email"])
	assert.NotContains(t, link, "card")
}

func TestPresentSnapshotFormatsAtTheBoundary(t *testing.T) {
	end := time.Date(2026, 9, 28, 0, 0, 0, 0, time.UTC)
	out := presentSnapshot(&billing.Snapshot{
		PlanCode:         "exec_monthly",
		PlanName:         "Executive Monthly",
		Status:           "active",
		AmountCents:      2900,
		Currency:         "usd",
		BillingInterval:  "month",
		CurrentPeriodEnd: end,
		NextRenewalDate:  end,
	})

	assert.Equal(t, "$29.00/month", out["price_formatted"])
	assert.Equal(t, "September 28, 2026", out["next_renewal_formatted"])
	assert.Equal(t, "2026-09-28T00:00:00Z", out["next_renewal_date"])
}

func TestPresentChangeResultHidesSecretUnlessRequired(t *testing.T) {
	pending := presentChangeResult(&billing.ChangeResult{
		RequiresPayment: true,
		PlanCode:        "exec_monthly",
		ClientSecret:    "seti_1_secret",
		SetupIntentID:   "seti_1",
	})
	assert.Equal(t, true, pending["requires_payment"])
	assert.Equal(t, "seti_1_secret", pending["client_secret"])
	assert.NotContains(t, pending, "category")

	done := presentChangeResult(&billing.ChangeResult{
		PlanCode: "exec_monthly",
		Category: billing.ChangeUpgrade,
	})
	assert.NotContains(t, done, "client_secret")
	assert.Equal(t, "upgrade", done["category"])
}
