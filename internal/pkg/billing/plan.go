package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/DanielKovacs/CoachEcho/app/models"
)

// normalizeInterval maps provider interval strings onto the local constants.
func normalizeInterval(interval string) string {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "month", "monthly":
		return models.BillingIntervalMonth
	case "year", "yearly", "annual":
		return models.BillingIntervalYear
	default:
		return models.BillingIntervalUnknown
	}
}

// normalizeStatus maps provider status strings onto the local constants.
func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.BillingStatusActive
	case "trialing":
		return models.BillingStatusTrialing
	case "past_due", "unpaid":
		return models.BillingStatusPastDue
	case "canceled", "cancelled":
		return models.BillingStatusCanceled
	case "incomplete":
		return models.BillingStatusIncomplete
	case "incomplete_expired":
		return models.BillingStatusExpired
	case "paused":
		return models.BillingStatusPaused
	default:
		return status
	}
}

// isEntitlingStatus reports whether a subscription status grants plan access.
// past_due keeps access during the provider's retry window.
func isEntitlingStatus(status string) bool {
	switch status {
	case models.BillingStatusActive, models.BillingStatusTrialing, models.BillingStatusPastDue:
		return true
	default:
		return false
	}
}

// planRank orders plans for upgrade/downgrade classification. Unknown codes
// rank below starter so a missing catalog entry never reads as an upgrade.
func planRank(code string) int {
	switch code {
	case "exec_yearly":
		return 3
	case "exec_monthly":
		return 2
	case "starter":
		return 1
	default:
		return 0
	}
}

// ChangeCategory is the presentation label attached to a plan change result.
type ChangeCategory string

const (
	ChangeUpgrade   ChangeCategory = "upgrade"
	ChangeDowngrade ChangeCategory = "downgrade"
	ChangeLateral   ChangeCategory = "change"
)

// CategorizeChange classifies a plan switch for messaging purposes only; the
// mutation path does not branch on it.
func CategorizeChange(fromCode, toCode string) ChangeCategory {
	from, to := planRank(fromCode), planRank(toCode)
	switch {
	case to > from:
		return ChangeUpgrade
	case to < from:
		return ChangeDowngrade
	default:
		return ChangeLateral
	}
}

// FormatAmount renders an amount for display, e.g. "$29.00/month". Formatting
// is an API-boundary concern; nothing inside the package compares formatted
// strings.
func FormatAmount(amountCents int64, currency, interval string) string {
	symbol := "$"
	switch strings.ToLower(currency) {
	case "eur":
		symbol = "€"
	case "gbp":
		symbol = "£"
	}
	amount := fmt.Sprintf("%s%.2f", symbol, float64(amountCents)/100)
	switch interval {
	case models.BillingIntervalMonth:
		return amount + "/month"
	case models.BillingIntervalYear:
		return amount + "/year"
	default:
		return amount
	}
}

// FormatDate renders a date for display, e.g. "January 2, 2026".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}
