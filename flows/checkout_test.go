package flows

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grocery-cli/internal/types"
)

const (
	checkoutPageURL = "https://shop.test/checkout"
	confirmationURL = "https://shop.test/order-confirmation/1234567"
)

func TestCheckout_DryRunBelowMinimumStopsAfterBasketLoad(t *testing.T) {
	h := newHarness(t)
	h.saveSession(t)
	h.page.present[checkoutTarget] = true

	result, err := h.runner.Checkout(context.Background(), basketWithTotal("10.00"), CheckoutOptions{DryRun: true})

	assert.Nil(t, result)
	var precondition *types.PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.ErrorIs(t, err, types.ErrMinimumSpend)
	assert.Contains(t, err.Error(), "£25.00")
	assert.Contains(t, err.Error(), "£10.00")
	assert.Equal(t, []string{"https://shop.test/trolley"}, h.page.navigations)
	assert.Empty(t, h.page.clicks)
	assert.True(t, h.page.closed)
}

func TestCheckout_DryRunPreview(t *testing.T) {
	h := newHarness(t)
	h.saveSession(t)
	h.page.present[checkoutTarget] = true

	result, err := h.runner.Checkout(context.Background(), basketWithTotal("31.20"), CheckoutOptions{DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, StatePreview, result.State)
	assert.Equal(t, types.OrderIDDryRun, result.OrderID)
	assert.Equal(t, PaymentPending, result.PaymentStatus)
	assert.True(t, decimal.RequireFromString("31.20").Equal(result.Total))
	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, h.page.clicks, "dry run never presses checkout")
	assert.Equal(t, filepath.Join(h.config.DiagnosticsDir, "testmart-checkout-PREVIEW.png"), result.Screenshot)
	assert.True(t, h.page.closed)
	assert.Equal(t, "SESSION", h.page.setCookies[0].Name)

	order := result.Order()
	assert.True(t, order.IsPlaceholder())
	assert.Equal(t, "preview", order.Status)
	assert.Len(t, order.Items, 1)
}

func TestCheckout_NoSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.runner.Checkout(context.Background(), basketWithTotal("30.00"), CheckoutOptions{})

	assert.ErrorIs(t, err, types.ErrNoSession)
	assert.True(t, types.IsAuthError(err))
	assert.Equal(t, 0, h.browser.launches)
}

func TestCheckout_BasketErrorPropagates(t *testing.T) {
	h := newHarness(t)
	h.saveSession(t)
	source := &staticBasket{err: &types.TransportError{Provider: "testmart", StatusCode: 401}}

	_, err := h.runner.Checkout(context.Background(), source, CheckoutOptions{})

	assert.ErrorIs(t, err, types.ErrNotAuthenticated)
	assert.Empty(t, h.page.navigations)
}

func TestCheckout_PaymentRequiredKeepsPageOpen(t *testing.T) {
	h := newHarness(t)
	h.saveSession(t)
	h.page.present[checkoutTarget] = true
	h.page.onClick[checkoutTarget] = func(p *fakePage) {
		p.url = checkoutPageURL
		p.text = "Review your order Total: £48.10"
	}

	result, err := h.runner.Checkout(context.Background(), basketWithTotal("47.00"), CheckoutOptions{})

	require.NoError(t, err)
	assert.Equal(t, StatePaymentRequired, result.State)
	assert.Equal(t, PaymentPending, result.PaymentStatus)
	assert.Equal(t, types.OrderIDUnknown, result.OrderID)
	assert.True(t, decimal.RequireFromString("48.10").Equal(result.Total))
	assert.Equal(t, checkoutPageURL, result.PageURL)
	assert.True(t, result.SlotConfirmed)
	assert.Equal(t, []types.Target{checkoutTarget}, h.page.clicks, "only the checkout button is ever clicked")

	require.NotNil(t, result.Page)
	assert.False(t, h.page.closed)
	require.NoError(t, result.Close())
	assert.True(t, h.page.closed)
	assert.Nil(t, result.Page)
}

func TestCheckout_SlotSelectionThenCompleted(t *testing.T) {
	h := newHarness(t)
	h.saveSession(t)
	h.page.present[checkoutTarget] = true
	h.page.onClick[checkoutTarget] = func(p *fakePage) {
		p.url = checkoutPageURL
		p.present[slotMarker] = true
		p.text = "Review Total: £52.00"
	}

	slotChecks := 0
	h.page.onExists = func(p *fakePage, target types.Target) {
		if target == slotMarker && p.url == checkoutPageURL {
			slotChecks++
			if slotChecks >= 3 {
				delete(p.present, slotMarker)
			}
		}
	}
	paymentChecks := 0
	h.page.onURL = func(p *fakePage) {
		if p.url == checkoutPageURL && !p.present[slotMarker] {
			paymentChecks++
			if paymentChecks >= 2 {
				p.url = confirmationURL
				p.text = "Thank you for your order. Order number: 1234567 Total: £52.40"
			}
		}
	}

	result, err := h.runner.Checkout(context.Background(), basketWithTotal("50.00"), CheckoutOptions{})

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, "1234567", result.OrderID)
	assert.Equal(t, PaymentCompleted, result.PaymentStatus)
	assert.True(t, result.SlotConfirmed)
	assert.True(t, decimal.RequireFromString("52.40").Equal(result.Total))
	assert.Equal(t, confirmationURL, result.PageURL)
	assert.Nil(t, result.Page)
	assert.True(t, h.page.closed)
	assert.Contains(t, h.transitions, "PROCEED_TO_CHECKOUT->SLOT_SELECTION")
	assert.Contains(t, h.transitions, "SLOT_SELECTION->PAYMENT_CHECKPOINT")
	assert.Contains(t, h.transitions, "PAYMENT_CHECKPOINT->COMPLETED")
	assert.False(t, result.Order().IsPlaceholder())
}

func TestCheckout_ConfirmationWithoutOrderNumber(t *testing.T) {
	h := newHarness(t)
	h.saveSession(t)
	h.page.present[checkoutTarget] = true
	h.page.onClick[checkoutTarget] = func(p *fakePage) { p.url = checkoutPageURL }
	h.page.onURL = func(p *fakePage) {
		if p.url == checkoutPageURL && len(p.clicks) == 1 && p.text == "" {
			p.text = "Thanks!"
		} else if p.text == "Thanks!" {
			p.url = confirmationURL
		}
	}

	result, err := h.runner.Checkout(context.Background(), basketWithTotal("30.00"), CheckoutOptions{})

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, types.OrderIDUnknown, result.OrderID)
	assert.True(t, decimal.RequireFromString("30.00").Equal(result.Total), "falls back to the basket total")
}

func TestCheckout_SlotSelectionTimesOut(t *testing.T) {
	h := newHarness(t)
	h.config.SlotSelectionTimeout = 20 * time.Millisecond
	h.saveSession(t)
	h.page.present[checkoutTarget] = true
	h.page.onClick[checkoutTarget] = func(p *fakePage) {
		p.url = checkoutPageURL
		p.present[slotMarker] = true
	}

	_, err := h.runner.Checkout(context.Background(), basketWithTotal("30.00"), CheckoutOptions{})

	var automationErr *types.AutomationError
	require.ErrorAs(t, err, &automationErr)
	assert.Equal(t, "SLOT_SELECTION", automationErr.State)
	assert.FileExists(t, filepath.Join(h.config.DiagnosticsDir, "testmart-checkout-SLOT_SELECTION.html"))
	assert.True(t, h.page.closed)
}

func TestCheckout_MissingCheckoutButton(t *testing.T) {
	h := newHarness(t)
	h.saveSession(t)

	_, err := h.runner.Checkout(context.Background(), basketWithTotal("30.00"), CheckoutOptions{})

	var automationErr *types.AutomationError
	require.ErrorAs(t, err, &automationErr)
	assert.Equal(t, "PROCEED_TO_CHECKOUT", automationErr.State)
	assert.NotEmpty(t, automationErr.Screenshot)
}

func TestCheckout_CancelledDuringPaymentClosesBrowser(t *testing.T) {
	h := newHarness(t)
	h.config.PaymentTimeout = time.Minute
	h.saveSession(t)
	h.page.present[checkoutTarget] = true
	h.page.onClick[checkoutTarget] = func(p *fakePage) { p.url = checkoutPageURL }

	ctx, cancel := context.WithCancel(context.Background())
	polls := 0
	h.page.onURL = func(p *fakePage) {
		if p.url == checkoutPageURL {
			polls++
			if polls == 3 {
				cancel()
			}
		}
	}

	_, err := h.runner.Checkout(ctx, basketWithTotal("30.00"), CheckoutOptions{})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, h.page.closed)
}

func TestCheckMinimumSpend(t *testing.T) {
	basket := &types.Basket{TotalCost: decimal.RequireFromString("24.99")}

	err := CheckMinimumSpend("ocado", basket, decimal.NewFromInt(25))
	assert.ErrorIs(t, err, types.ErrMinimumSpend)

	assert.NoError(t, CheckMinimumSpend("ocado", basket, decimal.Zero))
	basket.TotalCost = decimal.NewFromInt(25)
	assert.NoError(t, CheckMinimumSpend("ocado", basket, decimal.NewFromInt(25)))
}
