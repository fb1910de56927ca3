package adapters

import (
	"regexp"
	"strings"

	"grocery-cli/flows"
	"grocery-cli/internal/types"
)

// Page knowledge for the browser flows. Selectors drift; cmd/probe reports which still match.

// SainsburysProfile describes the Sainsbury's web application
func SainsburysProfile(config types.ProviderConfig) *flows.SiteProfile {
	web := strings.TrimRight(config.WebURL, "/")
	return &flows.SiteProfile{
		Provider:        "sainsburys",
		LoginURL:        web + "/gol-ui/login",
		BasketURL:       web + "/gol-ui/trolley",
		SlotsURL:        web + "/gol-ui/slotselection",
		LoginPageMarker: "login",

		Consent:    types.Target{CSS: "#onetrust-accept-btn-handler"},
		Email:      types.Target{CSS: `input[type="email"], input[name="email"], #username`},
		Password:   types.Target{CSS: `input[type="password"], input[name="password"], #password`},
		Submit:     types.Target{CSS: `button[type="submit"]`},
		LoginError: types.Target{CSS: `[data-testid="login-error"], .ln-c-form-group--error`},
		MFAField:   types.Target{CSS: `input[autocomplete="one-time-code"], input[name="code"], input[name="otp"]`},
		MFASubmit:  types.Target{CSS: `button[type="submit"]`},
		LoggedIn:   types.Target{CSS: `[data-testid="account-link"], a[href*="/gol-ui/my-account"], a[href*="logout"]`},

		CheckoutButtons: []types.Target{
			{CSS: `[data-testid="checkout-button"]`},
			{CSS: "button", Text: "Checkout"},
			{CSS: "a", Text: "Checkout"},
		},
		SlotRequired: []types.Target{
			{CSS: "h1, h2, h3, p, button, a", Text: "Select a delivery slot"},
			{CSS: "h1, h2, h3, p, button, a", Text: "Book a slot"},
		},
		SlotElements: `[data-testid*="slot"], [data-slot-id], .slot-option`,

		ConfirmationURL:  regexp.MustCompile(`(?i)order-confirmation|/confirmation|order-placed|thank-?you`),
		TotalPattern:     regexp.MustCompile(`(?i)Total[:\s]*£(\d+\.?\d*)`),
		OrderIDPattern:   regexp.MustCompile(`(?i)Order\s+(?:ID|number)[:\s]*(\w+)`),
		MinimumSpendText: regexp.MustCompile(`(?i)minimum (?:spend|order)`),
		MinimumSpend:     config.MinimumSpend,
	}
}

// Profiles returns the site profile of every provider with browser flows
func Profiles(config *types.Config) map[string]*flows.SiteProfile {
	return map[string]*flows.SiteProfile{
		"sainsburys": SainsburysProfile(config.Provider("sainsburys")),
	}
}
