package flows

import (
	"regexp"

	"github.com/shopspring/decimal"
	"grocery-cli/internal/types"
)

// SiteProfile is everything a flow needs to know about one retailer's web application
type SiteProfile struct {
	Provider string

	LoginURL  string
	BasketURL string
	SlotsURL  string

	// LoginPageMarker is a URL fragment present while still on the login page
	LoginPageMarker string

	Consent    types.Target
	Email      types.Target
	Password   types.Target
	Submit     types.Target
	LoginError types.Target
	MFAField   types.Target
	MFASubmit  types.Target
	// LoggedIn is an element only shown to a signed-in customer. When zero, leaving
	// the login page on two consecutive polls counts as signed in.
	LoggedIn types.Target

	// CheckoutButtons are tried in order; the first present one is clicked
	CheckoutButtons []types.Target
	// SlotRequired markers are visible while the checkout still needs a delivery slot
	SlotRequired []types.Target
	// SlotElements is the CSS selector for slot entries on the slot page
	SlotElements string

	ConfirmationURL  *regexp.Regexp
	TotalPattern     *regexp.Regexp
	OrderIDPattern   *regexp.Regexp
	MinimumSpendText *regexp.Regexp

	MinimumSpend decimal.Decimal
}

var (
	mfaCodePattern   = regexp.MustCompile(`^\d{6}$`)
	slotTimePattern  = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*-\s*(\d{1,2}):(\d{2})`)
	slotPricePattern = regexp.MustCompile(`£(\d+\.?\d*)`)
)
