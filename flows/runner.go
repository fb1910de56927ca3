package flows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"grocery-cli/internal/session"
	"grocery-cli/internal/types"
)

const consentWait = 2 * time.Second

// Runner executes the browser flows of one retailer
type Runner struct {
	config   *types.Config
	logger   types.Logger
	browser  types.Browser
	profile  *SiteProfile
	sessions *session.Store
	now      func() time.Time

	// OnTransition, when set, observes every state change
	OnTransition TransitionFunc
}

// NewRunner creates a flow runner for profile
func NewRunner(config *types.Config, logger types.Logger, browser types.Browser, profile *SiteProfile, sessions *session.Store) *Runner {
	return &Runner{
		config:   config,
		logger:   logger,
		browser:  browser,
		profile:  profile,
		sessions: sessions,
		now:      time.Now,
	}
}

func (r *Runner) machine(flow string) *machine {
	return newMachine(r.profile.Provider, flow, r.logger, r.OnTransition)
}

func (r *Runner) elementPoll() time.Duration {
	poll := 250 * time.Millisecond
	if r.config.PollInterval > 0 && r.config.PollInterval < poll {
		poll = r.config.PollInterval
	}
	return poll
}

// openSession launches a page carrying the saved session cookies
func (r *Runner) openSession(ctx context.Context) (types.Page, error) {
	data, err := r.sessions.Load()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%s: %w", r.profile.Provider, types.ErrNoSession)
	}

	page, err := r.browser.Launch(ctx)
	if err != nil {
		return nil, err
	}
	if err := page.SetCookies(ctx, data.Cookies); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

// dismissConsent clicks the cookie banner if it shows up. A missing banner is not an error.
func (r *Runner) dismissConsent(ctx context.Context, page types.Page) error {
	if r.profile.Consent.IsZero() {
		return nil
	}

	wait := consentWait
	if r.config.ElementTimeout < wait {
		wait = r.config.ElementTimeout
	}
	found, err := waitFor(ctx, wait, r.elementPoll(), func(ctx context.Context) (bool, error) {
		return page.Exists(ctx, r.profile.Consent)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Debugf("[%s] consent banner lookup failed: %v", r.profile.Provider, err)
		return nil
	}
	if !found {
		r.logger.Debugf("[%s] no consent banner", r.profile.Provider)
		return nil
	}
	if err := page.Click(ctx, r.profile.Consent); err != nil {
		r.logger.Debugf("[%s] could not dismiss consent banner: %v", r.profile.Provider, err)
	}
	return nil
}

// waitForTarget waits up to the element timeout for target to appear
func (r *Runner) waitForTarget(ctx context.Context, page types.Page, target types.Target) (bool, error) {
	return waitFor(ctx, r.config.ElementTimeout, r.elementPoll(), func(ctx context.Context) (bool, error) {
		return page.Exists(ctx, target)
	})
}

// firstPresent returns the first of targets currently on the page
func firstPresent(ctx context.Context, page types.Page, targets []types.Target) (types.Target, bool, error) {
	for _, target := range targets {
		ok, err := page.Exists(ctx, target)
		if err != nil {
			return types.Target{}, false, err
		}
		if ok {
			return target, true, nil
		}
	}
	return types.Target{}, false, nil
}

// capture writes a full-page screenshot and the raw markup to the diagnostics directory.
// Capture failures are logged, never returned.
func (r *Runner) capture(ctx context.Context, page types.Page, flow string, state State) (string, string) {
	dir := r.config.DiagnosticsDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		r.logger.Warnf("Failed to create diagnostics directory %s: %v", dir, err)
		return "", ""
	}

	base := filepath.Join(dir, fmt.Sprintf("%s-%s-%s", r.profile.Provider, flow, state))
	var shotPath, htmlPath string

	if shot, err := page.Screenshot(ctx); err != nil {
		r.logger.Warnf("Failed to capture screenshot: %v", err)
	} else if err := os.WriteFile(base+".png", shot, 0o600); err != nil {
		r.logger.Warnf("Failed to write screenshot: %v", err)
	} else {
		shotPath = base + ".png"
	}

	if html, err := page.HTML(ctx); err != nil {
		r.logger.Warnf("Failed to capture page markup: %v", err)
	} else if err := os.WriteFile(base+".html", []byte(html), 0o600); err != nil {
		r.logger.Warnf("Failed to write page markup: %v", err)
	} else {
		htmlPath = base + ".html"
	}

	if shotPath != "" || htmlPath != "" {
		r.logger.Infof("[%s] Saved diagnostics to %s.{png,html}", r.profile.Provider, base)
	}
	return shotPath, htmlPath
}

// fail captures diagnostics and builds the AutomationError for state
func (r *Runner) fail(ctx context.Context, page types.Page, flow string, state State, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	shot, html := r.capture(ctx, page, flow, state)
	return &types.AutomationError{
		Provider:   r.profile.Provider,
		Flow:       flow,
		State:      string(state),
		Screenshot: shot,
		HTML:       html,
		Err:        err,
	}
}

// CheckMinimumSpend fails with a minimum-spend PreconditionError when the basket
// total is below minimum. A zero minimum always passes.
func CheckMinimumSpend(provider string, basket *types.Basket, minimum decimal.Decimal) error {
	if minimum.IsZero() || basket == nil {
		return nil
	}
	if basket.TotalCost.LessThan(minimum) {
		return &types.PreconditionError{
			Provider: provider,
			Reason:   types.ReasonMinimumSpend,
			Minimum:  minimum,
			Observed: basket.TotalCost,
		}
	}
	return nil
}

// extract returns the first capture group of pattern in text, or fallback
func extract(text string, pattern *regexp.Regexp, fallback string) string {
	if pattern == nil {
		return fallback
	}
	m := pattern.FindStringSubmatch(text)
	if len(m) < 2 || strings.TrimSpace(m[1]) == "" {
		return fallback
	}
	return strings.TrimSpace(m[1])
}

// extractAmount parses a money amount from text, defaulting to zero
func extractAmount(text string, pattern *regexp.Regexp) decimal.Decimal {
	raw := extract(text, pattern, "")
	if raw == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return amount
}
