package flows

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"grocery-cli/internal/session"
	"grocery-cli/internal/types"
)

// fakePage is a scripted types.Page. Hooks run before each lookup so a test
// can change the page while a flow is polling it.
type fakePage struct {
	url     string
	present map[types.Target]bool
	text    string
	html    string
	cookies []types.Cookie

	navigations []string
	clicks      []types.Target
	filled      map[types.Target]string
	setCookies  []types.Cookie
	closed      bool

	onClick  map[types.Target]func(p *fakePage)
	onExists func(p *fakePage, target types.Target)
	onURL    func(p *fakePage)
}

func newFakePage() *fakePage {
	return &fakePage{
		present: make(map[types.Target]bool),
		filled:  make(map[types.Target]string),
		onClick: make(map[types.Target]func(p *fakePage)),
		html:    "<html><body></body></html>",
	}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigations = append(p.navigations, url)
	p.url = url
	return nil
}

func (p *fakePage) URL(_ context.Context) (string, error) {
	if p.onURL != nil {
		p.onURL(p)
	}
	return p.url, nil
}

func (p *fakePage) Exists(_ context.Context, target types.Target) (bool, error) {
	if p.onExists != nil {
		p.onExists(p, target)
	}
	return p.present[target], nil
}

func (p *fakePage) Fill(_ context.Context, target types.Target, value string) error {
	if !p.present[target] {
		return errors.New("element not found: " + target.String())
	}
	p.filled[target] = value
	return nil
}

func (p *fakePage) Click(_ context.Context, target types.Target) error {
	if !p.present[target] {
		return errors.New("element not found: " + target.String())
	}
	p.clicks = append(p.clicks, target)
	if hook, ok := p.onClick[target]; ok {
		hook(p)
	}
	return nil
}

func (p *fakePage) Text(_ context.Context) (string, error) { return p.text, nil }

func (p *fakePage) HTML(_ context.Context) (string, error) { return p.html, nil }

func (p *fakePage) Screenshot(_ context.Context) ([]byte, error) { return []byte("png"), nil }

func (p *fakePage) Cookies(_ context.Context) ([]types.Cookie, error) { return p.cookies, nil }

func (p *fakePage) SetCookies(_ context.Context, cookies []types.Cookie) error {
	p.setCookies = append(p.setCookies, cookies...)
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	page     *fakePage
	launches int
}

func (b *fakeBrowser) Launch(_ context.Context) (types.Page, error) {
	b.launches++
	return b.page, nil
}

var (
	consentTarget  = types.Target{CSS: "#consent"}
	emailTarget    = types.Target{CSS: "#email"}
	passwordTarget = types.Target{CSS: "#password"}
	submitTarget   = types.Target{CSS: "button[type=submit]"}
	errorTarget    = types.Target{CSS: ".login-error"}
	codeTarget     = types.Target{CSS: "#code"}
	verifyTarget   = types.Target{CSS: "#verify"}
	checkoutTarget = types.Target{CSS: "button", Text: "Checkout"}
	slotMarker     = types.Target{CSS: "h2", Text: "Book a slot"}
)

func testProfile() *SiteProfile {
	return &SiteProfile{
		Provider:         "testmart",
		LoginURL:         "https://shop.test/login",
		BasketURL:        "https://shop.test/trolley",
		SlotsURL:         "https://shop.test/slots",
		LoginPageMarker:  "login",
		Consent:          consentTarget,
		Email:            emailTarget,
		Password:         passwordTarget,
		Submit:           submitTarget,
		LoginError:       errorTarget,
		MFAField:         codeTarget,
		MFASubmit:        verifyTarget,
		CheckoutButtons:  []types.Target{{CSS: "[data-testid=checkout-button]"}, checkoutTarget},
		SlotRequired:     []types.Target{slotMarker},
		SlotElements:     "[data-slot-id], .slot-option",
		ConfirmationURL:  regexp.MustCompile(`/order-confirmation`),
		TotalPattern:     regexp.MustCompile(`(?i)Total[:\s]*£(\d+\.?\d*)`),
		OrderIDPattern:   regexp.MustCompile(`(?i)Order\s+(?:ID|number)[:\s]*(\w+)`),
		MinimumSpendText: regexp.MustCompile(`(?i)minimum spend`),
		MinimumSpend:     decimal.NewFromInt(25),
	}
}

func testConfig(t *testing.T) *types.Config {
	t.Helper()
	config := types.DefaultConfig()
	config.ElementTimeout = 30 * time.Millisecond
	config.LoginTimeout = 30 * time.Millisecond
	config.PollInterval = 2 * time.Millisecond
	config.SlotSelectionTimeout = 200 * time.Millisecond
	config.PaymentTimeout = 200 * time.Millisecond
	config.DiagnosticsDir = t.TempDir()
	return config
}

type harness struct {
	runner      *Runner
	page        *fakePage
	browser     *fakeBrowser
	sessions    *session.Store
	config      *types.Config
	transitions []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	config := testConfig(t)
	page := newFakePage()
	browser := &fakeBrowser{page: page}
	sessions := session.NewStore(filepath.Join(t.TempDir(), "testmart", "session.json"), logrus.New())

	h := &harness{page: page, browser: browser, sessions: sessions, config: config}
	h.runner = NewRunner(config, logrus.New(), browser, testProfile(), sessions)
	h.runner.OnTransition = func(flow string, from, to State) {
		h.transitions = append(h.transitions, string(from)+"->"+string(to))
	}
	return h
}

func (h *harness) saveSession(t *testing.T) {
	t.Helper()
	require.NoError(t, h.sessions.Save(&session.Data{
		Cookies:   []types.Cookie{{Name: "SESSION", Value: "abc", Domain: ".shop.test"}},
		ExpiresAt: time.Now().Add(time.Hour),
		LastLogin: time.Now(),
	}))
}

type staticBasket struct {
	basket *types.Basket
	err    error
	calls  int
}

func (s *staticBasket) GetBasket(_ context.Context) (*types.Basket, error) {
	s.calls++
	return s.basket, s.err
}

func basketWithTotal(total string) *staticBasket {
	return &staticBasket{basket: &types.Basket{
		Provider:      "testmart",
		TotalCost:     decimal.RequireFromString(total),
		TotalQuantity: 1,
		Items: []types.BasketItem{{
			ItemID: "item-1", ProductUID: "P1", Name: "Milk", Quantity: 1,
			UnitPrice: decimal.RequireFromString(total), TotalPrice: decimal.RequireFromString(total),
		}},
	}}
}
