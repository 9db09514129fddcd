package billing

import (
	"testing"
	"time"

	"github.com/DanielKovacs/CoachEcho/app/models"
)

func TestNormalizeInterval(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "month", want: models.BillingIntervalMonth},
		{in: "Monthly", want: models.BillingIntervalMonth},
		{in: "year", want: models.BillingIntervalYear},
		{in: "annual", want: models.BillingIntervalYear},
		{in: "", want: models.BillingIntervalUnknown},
		{in: "weekly", want: models.BillingIntervalUnknown},
	}

	for _, tt := range tests {
		if got := normalizeInterval(tt.in); got != tt.want {
			t.Fatalf("normalizeInterval(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "active", want: models.BillingStatusActive},
		{in: "trialing", want: models.BillingStatusTrialing},
		{in: "past_due", want: models.BillingStatusPastDue},
		{in: "unpaid", want: models.BillingStatusPastDue},
		{in: "canceled", want: models.BillingStatusCanceled},
		{in: "incomplete_expired", want: models.BillingStatusExpired},
		{in: "paused", want: models.BillingStatusPaused},
	}

	for _, tt := range tests {
		if got := normalizeStatus(tt.in); got != tt.want {
			t.Fatalf("normalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsEntitlingStatus(t *testing.T) {
	entitling := []string{models.BillingStatusActive, models.BillingStatusTrialing, models.BillingStatusPastDue}
	for _, s := range entitling {
		if !isEntitlingStatus(s) {
			t.Fatalf("expected %q to entitle", s)
		}
	}
	notEntitling := []string{models.BillingStatusCanceled, models.BillingStatusIncomplete, models.BillingStatusExpired, models.BillingStatusPaused}
	for _, s := range notEntitling {
		if isEntitlingStatus(s) {
			t.Fatalf("expected %q not to entitle", s)
		}
	}
}

func TestCategorizeChange(t *testing.T) {
	tests := []struct {
		from, to string
		want     ChangeCategory
	}{
		{from: "starter", to: "exec_monthly", want: ChangeUpgrade},
		{from: "exec_monthly", to: "exec_yearly", want: ChangeUpgrade},
		{from: "exec_yearly", to: "starter", want: ChangeDowngrade},
		{from: "exec_monthly", to: "exec_monthly", want: ChangeLateral},
		{from: "unknown_plan", to: "starter", want: ChangeUpgrade},
	}

	for _, tt := range tests {
		if got := CategorizeChange(tt.from, tt.to); got != tt.want {
			t.Fatalf("CategorizeChange(%q, %q) = %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents    int64
		currency string
		interval string
		want     string
	}{
		{cents: 2900, currency: "usd", interval: "month", want: "$29.00/month"},
		{cents: 29900, currency: "usd", interval: "year", want: "$299.00/year"},
		{cents: 1050, currency: "eur", interval: "month", want: "€10.50/month"},
		{cents: 0, currency: "usd", interval: "unknown", want: "$0.00"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.cents, tt.currency, tt.interval); got != tt.want {
			t.Fatalf("FormatAmount(%d, %q, %q) = %q, want %q", tt.cents, tt.currency, tt.interval, got, tt.want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	if got := FormatDate(d); got != "March 5, 2026" {
		t.Fatalf("FormatDate = %q", got)
	}
	if got := FormatDate(time.Time{}); got != "" {
		t.Fatalf("zero time should render empty, got %q", got)
	}
}
