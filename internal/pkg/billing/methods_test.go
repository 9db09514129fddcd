package billing

import (
	"context"
	"testing"
)

func TestListWithoutBillingAccountReturnsEmptyWithoutProviderCall(t *testing.T) {
	h := newTestHarness()

	methods, err := h.methods.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(methods) != 0 {
		t.Fatalf("expected no methods, got %d", len(methods))
	}
	if h.provider.listMethodCalls != 0 {
		t.Fatalf("no provider call expected for users without a billing account")
	}
}

func TestListIsServedFromCacheOnRepeat(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	customerID := h.withCustomer()
	h.provider.addCardMethod(customerID, "pm_1", true)

	if _, err := h.methods.List(ctx, 1); err != nil {
		t.Fatalf("first List: %v", err)
	}
	if _, err := h.methods.List(ctx, 1); err != nil {
		t.Fatalf("second List: %v", err)
	}
	if h.provider.listMethodCalls != 1 {
		t.Fatalf("expected one provider call, got %d", h.provider.listMethodCalls)
	}
}

func TestListFailureIsFetchFailed(t *testing.T) {
	h := newTestHarness()
	h.withCustomer()
	h.provider.failListMethods = true

	_, err := h.methods.List(context.Background(), 1)
	if !IsKind(err, KindFetchFailed) {
		t.Fatalf("expected fetch_failed, got %v", err)
	}
}

func TestBeginConfirmAddRoundTrip(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	customerID := h.withCustomer()
	h.provider.addCardMethod(customerID, "pm_old", true)

	session, err := h.methods.BeginAdd(ctx, 1)
	if err != nil {
		t.Fatalf("BeginAdd: %v", err)
	}
	if session.ClientSecret == "" {
		t.Fatalf("expected a client secret")
	}

	h.provider.succeedSetupIntent(customerID, session.SetupIntentID, "pm_new")

	methods, err := h.methods.ConfirmAdd(ctx, 1, session.SetupIntentID)
	if err != nil {
		t.Fatalf("ConfirmAdd: %v", err)
	}

	var foundNew bool
	for _, m := range methods {
		if m.ID == "pm_new" {
			foundNew = true
			if !m.IsDefault {
				t.Fatalf("newly added method must become the default")
			}
		}
		if m.ID == "pm_old" && m.IsDefault {
			t.Fatalf("old default must be replaced")
		}
	}
	if !foundNew {
		t.Fatalf("new method missing from the refreshed list: %+v", methods)
	}
}

func TestConfirmAddOnIncompleteIntentFails(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	h.withCustomer()

	session, err := h.methods.BeginAdd(ctx, 1)
	if err != nil {
		t.Fatalf("BeginAdd: %v", err)
	}

	// intent never reached succeeded
	_, err = h.methods.ConfirmAdd(ctx, 1, session.SetupIntentID)
	if !IsKind(err, KindPaymentConfirmationFailed) {
		t.Fatalf("expected payment_confirmation_failed, got %v", err)
	}
}

func TestSetDefaultFailureLeavesStoredListUnchanged(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	customerID := h.withCustomer()
	h.provider.addCardMethod(customerID, "pm_1", true)
	h.provider.addCardMethod(customerID, "pm_2", false)

	before, err := h.methods.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	h.provider.failSetDefault = true
	_, err = h.methods.SetDefault(ctx, 1, "pm_123")
	if !IsKind(err, KindDefaultUpdateFailed) {
		t.Fatalf("expected default_update_failed, got %v", err)
	}

	after, err := h.methods.List(ctx, 1)
	if err != nil {
		t.Fatalf("List after failure: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("list changed after failed set-default: %d != %d", len(after), len(before))
	}
	for i := range after {
		if after[i].ID != before[i].ID || after[i].IsDefault != before[i].IsDefault {
			t.Fatalf("method %d changed after failed set-default: %+v != %+v", i, after[i], before[i])
		}
	}
}

func TestSetDefaultSwitchesTheDefault(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()
	customerID := h.withCustomer()
	h.provider.addCardMethod(customerID, "pm_1", true)
	h.provider.addCardMethod(customerID, "pm_2", false)

	methods, err := h.methods.SetDefault(ctx, 1, "pm_2")
	if err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	for _, m := range methods {
		if m.ID == "pm_2" && !m.IsDefault {
			t.Fatalf("pm_2 should be the default now")
		}
		if m.ID == "pm_1" && m.IsDefault {
			t.Fatalf("pm_1 should no longer be the default")
		}
	}
}
