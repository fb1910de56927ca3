package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"grocery-cli/internal/types"
)

// Payment statuses reported by a checkout run
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

// BasketSource reads the authoritative basket before checkout starts
type BasketSource interface {
	GetBasket(ctx context.Context) (*types.Basket, error)
}

// CheckoutOptions controls a checkout run
type CheckoutOptions struct {
	// DryRun stops at PREVIEW, before the checkout button is pressed
	DryRun bool
}

// BrowserCheckouter is implemented by providers whose checkout runs in the browser
type BrowserCheckouter interface {
	BrowserCheckout(ctx context.Context, opts CheckoutOptions) (*CheckoutResult, error)
}

// CheckoutResult is where a checkout run stopped
type CheckoutResult struct {
	State         State           `json:"state"`
	RunID         string          `json:"run_id"`
	Provider      string          `json:"provider"`
	OrderID       string          `json:"order_id"`
	Total         decimal.Decimal `json:"total"`
	SlotConfirmed bool            `json:"slot_confirmed"`
	PaymentStatus string          `json:"payment_status"`
	PageURL       string          `json:"page_url,omitempty"`
	Screenshot    string          `json:"screenshot,omitempty"`
	Basket        *types.Basket   `json:"basket,omitempty"`

	// Page is the still-open browser page when State is PAYMENT_REQUIRED.
	// The caller owns it and must Close it.
	Page types.Page `json:"-"`
}

// Close releases the page held by a PAYMENT_REQUIRED result
func (c *CheckoutResult) Close() error {
	if c.Page == nil {
		return nil
	}
	err := c.Page.Close()
	c.Page = nil
	return err
}

// Order converts the result into an Order
func (c *CheckoutResult) Order() *types.Order {
	order := &types.Order{
		OrderID: c.OrderID,
		Status:  strings.ToLower(string(c.State)),
		Total:   c.Total,
	}
	if c.Basket != nil {
		order.Items = c.Basket.Items
	}
	return order
}

// Checkout drives LOAD_BASKET -> VALIDATE_MIN_SPEND -> PROCEED_TO_CHECKOUT ->
// SLOT_SELECTION -> PAYMENT_CHECKPOINT. The human completes payment in the open
// browser; no payment action is ever submitted by the runner.
func (r *Runner) Checkout(ctx context.Context, source BasketSource, opts CheckoutOptions) (*CheckoutResult, error) {
	result := &CheckoutResult{
		RunID:         uuid.NewString(),
		Provider:      r.profile.Provider,
		OrderID:       types.OrderIDUnknown,
		PaymentStatus: PaymentPending,
	}
	r.logger.Infof("[%s] Starting checkout run %s (dry-run=%v)", r.profile.Provider, result.RunID, opts.DryRun)

	page, err := r.openSession(ctx)
	if err != nil {
		return nil, err
	}
	keepOpen := false
	defer func() {
		if !keepOpen {
			page.Close()
		}
	}()

	var checkoutURL string

	m := r.machine(FlowCheckout).
		on(StateLoadBasket, func(ctx context.Context) (State, error) {
			basket, err := source.GetBasket(ctx)
			if err != nil {
				return "", err
			}
			result.Basket = basket
			result.Total = basket.TotalCost

			if err := page.Navigate(ctx, r.profile.BasketURL); err != nil {
				return "", r.fail(ctx, page, FlowCheckout, StateLoadBasket, err)
			}
			if err := r.dismissConsent(ctx, page); err != nil {
				return "", err
			}
			return StateValidateMinSpend, nil
		}).
		on(StateValidateMinSpend, func(ctx context.Context) (State, error) {
			if err := CheckMinimumSpend(r.profile.Provider, result.Basket, r.profile.MinimumSpend); err != nil {
				return "", err
			}
			if opts.DryRun {
				return StatePreview, nil
			}
			return StateProceedToCheckout, nil
		}).
		on(StateProceedToCheckout, func(ctx context.Context) (State, error) {
			var button types.Target
			found, err := waitFor(ctx, r.config.ElementTimeout, r.elementPoll(), func(ctx context.Context) (bool, error) {
				target, ok, err := firstPresent(ctx, page, r.profile.CheckoutButtons)
				button = target
				return ok, err
			})
			if err == nil && !found {
				err = errors.New("checkout button not found, the basket may not meet the minimum spend")
			}
			if err != nil {
				return "", r.fail(ctx, page, FlowCheckout, StateProceedToCheckout, err)
			}

			before, err := page.URL(ctx)
			if err != nil {
				return "", r.fail(ctx, page, FlowCheckout, StateProceedToCheckout, err)
			}
			if err := page.Click(ctx, button); err != nil {
				return "", r.fail(ctx, page, FlowCheckout, StateProceedToCheckout, err)
			}

			moved, err := waitFor(ctx, r.config.ElementTimeout, r.elementPoll(), func(ctx context.Context) (bool, error) {
				current, err := page.URL(ctx)
				checkoutURL = current
				return current != before, err
			})
			if err == nil && !moved {
				err = errors.New("checkout page did not load")
			}
			if err != nil {
				return "", r.fail(ctx, page, FlowCheckout, StateProceedToCheckout, err)
			}

			_, slotRequired, err := firstPresent(ctx, page, r.profile.SlotRequired)
			if err != nil {
				return "", r.fail(ctx, page, FlowCheckout, StateProceedToCheckout, err)
			}
			if slotRequired {
				return StateSlotSelection, nil
			}
			result.SlotConfirmed = true
			return StatePaymentCheckpoint, nil
		}).
		on(StateSlotSelection, func(ctx context.Context) (State, error) {
			r.logger.Infof("[%s] Select a delivery slot in the browser window (waiting up to %s)",
				r.profile.Provider, r.config.SlotSelectionTimeout)

			chosen, err := waitFor(ctx, r.config.SlotSelectionTimeout, r.config.PollInterval, func(ctx context.Context) (bool, error) {
				_, pending, err := firstPresent(ctx, page, r.profile.SlotRequired)
				return !pending, err
			})
			if err == nil && !chosen {
				err = errors.New("no delivery slot was selected in time")
			}
			if err != nil {
				return "", r.fail(ctx, page, FlowCheckout, StateSlotSelection, err)
			}
			result.SlotConfirmed = true
			return StatePaymentCheckpoint, nil
		}).
		on(StatePaymentCheckpoint, func(ctx context.Context) (State, error) {
			if text, err := page.Text(ctx); err == nil {
				if total := extractAmount(text, r.profile.TotalPattern); !total.IsZero() {
					result.Total = total
				}
			}
			r.logger.Infof("[%s] Order total £%s. Complete payment in the browser window; it will not be submitted automatically (waiting up to %s)",
				r.profile.Provider, result.Total.StringFixed(2), r.config.PaymentTimeout)

			confirmed, err := waitFor(ctx, r.config.PaymentTimeout, r.config.PollInterval, func(ctx context.Context) (bool, error) {
				current, err := page.URL(ctx)
				if err != nil {
					return false, err
				}
				checkoutURL = current
				return r.profile.ConfirmationURL != nil && r.profile.ConfirmationURL.MatchString(current), nil
			})
			if err != nil {
				return "", r.fail(ctx, page, FlowCheckout, StatePaymentCheckpoint, err)
			}
			if !confirmed {
				return StatePaymentRequired, nil
			}

			text, err := page.Text(ctx)
			if err != nil {
				r.logger.Warnf("[%s] could not read confirmation page: %v", r.profile.Provider, err)
			}
			result.OrderID = extract(text, r.profile.OrderIDPattern, types.OrderIDUnknown)
			if total := extractAmount(text, r.profile.TotalPattern); !total.IsZero() {
				result.Total = total
			}
			return StateCompleted, nil
		}).
		terminalStates(StatePreview, StateCompleted, StatePaymentRequired)

	final, err := m.run(ctx, StateLoadBasket)
	if err != nil {
		return nil, err
	}
	result.State = final
	result.PageURL = checkoutURL

	switch final {
	case StatePreview:
		result.OrderID = types.OrderIDDryRun
		result.Screenshot, _ = r.capture(ctx, page, FlowCheckout, StatePreview)
		r.logger.Infof("[%s] Dry run, not placing order (basket total £%s)", r.profile.Provider, result.Total.StringFixed(2))
	case StateCompleted:
		result.PaymentStatus = PaymentCompleted
		result.Screenshot, _ = r.capture(ctx, page, FlowCheckout, StateCompleted)
		r.logger.Infof("[%s] Order placed: %s", r.profile.Provider, result.OrderID)
	case StatePaymentRequired:
		keepOpen = true
		result.Page = page
		r.logger.Warnf("[%s] Payment not completed, the browser is left open at %s", r.profile.Provider, result.PageURL)
	}

	return result, nil
}
