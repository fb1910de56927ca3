package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"grocery-cli/internal/types"
)

// DiscoverSlots reads the delivery slots shown on the retailer's slot page.
// Zero slots is not an error unless the page reports the minimum spend is unmet.
func (r *Runner) DiscoverSlots(ctx context.Context) ([]types.DeliverySlot, error) {
	page, err := r.openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	var slots []types.DeliverySlot

	m := r.machine(FlowSlots).
		on(StateNavigateSlots, func(ctx context.Context) (State, error) {
			if err := page.Navigate(ctx, r.profile.SlotsURL); err != nil {
				return "", r.fail(ctx, page, FlowSlots, StateNavigateSlots, err)
			}
			return StateConsentDismiss, nil
		}).
		on(StateConsentDismiss, func(ctx context.Context) (State, error) {
			if err := r.dismissConsent(ctx, page); err != nil {
				return "", err
			}
			return StateWaitForSlots, nil
		}).
		on(StateWaitForSlots, func(ctx context.Context) (State, error) {
			found, err := r.waitForTarget(ctx, page, types.Target{CSS: r.profile.SlotElements})
			if err != nil {
				return "", r.fail(ctx, page, FlowSlots, StateWaitForSlots, err)
			}
			if !found {
				r.logger.Debugf("[%s] no slot elements after %s", r.profile.Provider, r.config.ElementTimeout)
			}
			return StateExtractSlots, nil
		}).
		on(StateExtractSlots, func(ctx context.Context) (State, error) {
			html, err := page.HTML(ctx)
			if err != nil {
				return "", r.fail(ctx, page, FlowSlots, StateExtractSlots, err)
			}
			slots, err = parseSlots(html, r.profile.SlotElements, r.now().Format("2006-01-02"))
			if err != nil {
				return "", r.fail(ctx, page, FlowSlots, StateExtractSlots, err)
			}
			if len(slots) > 0 {
				return StateSlotsLoaded, nil
			}

			r.capture(ctx, page, FlowSlots, StateExtractSlots)
			if r.profile.MinimumSpendText != nil {
				text, err := page.Text(ctx)
				if err == nil && r.profile.MinimumSpendText.MatchString(text) {
					return "", &types.PreconditionError{
						Provider: r.profile.Provider,
						Reason:   types.ReasonMinimumSpend,
						Minimum:  r.profile.MinimumSpend,
						Detail:   "slot page reports the basket is below the minimum spend",
					}
				}
			}
			r.logger.Warnf("[%s] No delivery slots found on %s", r.profile.Provider, r.profile.SlotsURL)
			return StateSlotsLoaded, nil
		}).
		terminalStates(StateSlotsLoaded)

	if _, err := m.run(ctx, StateNavigateSlots); err != nil {
		return nil, err
	}

	r.logger.Infof("[%s] Found %d delivery slots", r.profile.Provider, len(slots))
	return slots, nil
}

// parseSlots extracts slots from page markup. Only the innermost elements matching
// selector are read, so a container never duplicates the slots inside it.
func parseSlots(html, selector, today string) ([]types.DeliverySlot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse slot page: %w", err)
	}

	slots := []types.DeliverySlot{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if s.Find(selector).Length() > 0 {
			return
		}

		text := strings.Join(strings.Fields(s.Text()), " ")
		times := slotTimePattern.FindStringSubmatch(text)
		if times == nil {
			return
		}

		id := s.AttrOr("data-slot-id", "")
		if id == "" {
			id = s.AttrOr("id", "")
		}
		if id == "" {
			id = fmt.Sprintf("slot_%d", len(slots))
		}

		price := decimal.Zero
		if m := slotPricePattern.FindStringSubmatch(text); m != nil {
			if p, err := decimal.NewFromString(m[1]); err == nil {
				price = p
			}
		}

		slots = append(slots, types.DeliverySlot{
			SlotID:    id,
			Date:      s.AttrOr("data-slot-date", today),
			StartTime: times[1] + ":" + times[2],
			EndTime:   times[3] + ":" + times[4],
			Price:     price,
			Available: !strings.Contains(text, "Unavailable") && !strings.Contains(text, "Sold out"),
		})
	})

	return slots, nil
}
