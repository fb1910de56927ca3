package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"grocery-cli/internal/types"
)

const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', { get: () => false });`

// findScript resolves a Target in the page: the first element matching the CSS
// selector whose innerText contains the wanted text (any element when text is empty).
const findScript = `(function(css, text) {
	const els = Array.from(document.querySelectorAll(css));
	return els.find(el => !text || (el.innerText || el.textContent || '').includes(text)) || null;
})`

// BrowserClient launches Chrome pages for the browser-driven flows
type BrowserClient struct {
	config *types.Config
	logger types.Logger
}

// NewBrowserClient creates a new browser client
func NewBrowserClient(config *types.Config, logger types.Logger) *BrowserClient {
	return &BrowserClient{
		config: config,
		logger: logger,
	}
}

// Launch starts a browser (headful unless Headless is set) with one page.
// Cancelling ctx terminates the browser process.
func (b *BrowserClient) Launch(ctx context.Context) (types.Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.config.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(b.config.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithErrorf(b.logger.Debugf))

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx)
		return err
	}))
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b.logger.Debugf("Browser launched (headless=%v)", b.config.Headless)
	return &ChromePage{
		ctx:     tabCtx,
		timeout: b.config.ElementTimeout,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}, nil
}

// ChromePage drives one Chrome tab through chromedp
type ChromePage struct {
	ctx     context.Context
	timeout time.Duration
	cancel  func()
	once    sync.Once
}

// run executes actions on the tab, bounded by the page timeout and by the caller's ctx
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads a URL and waits for the body to be ready
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// URL returns the current location
func (p *ChromePage) URL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

func targetArgs(target types.Target) string {
	css, _ := json.Marshal(target.CSS)
	text, _ := json.Marshal(target.Text)
	return string(css) + ", " + string(text)
}

// Exists reports whether the target is currently on the page
func (p *ChromePage) Exists(ctx context.Context, target types.Target) (bool, error) {
	var found bool
	script := fmt.Sprintf(`%s(%s) !== null`, findScript, targetArgs(target))
	if err := p.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", target, err)
	}
	return found, nil
}

// Click clicks the target
func (p *ChromePage) Click(ctx context.Context, target types.Target) error {
	var clicked bool
	script := fmt.Sprintf(`(function() {
		const el = %s(%s);
		if (!el) { return false; }
		el.scrollIntoView({block: 'center'});
		el.click();
		return true;
	})()`, findScript, targetArgs(target))
	if err := p.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return fmt.Errorf("failed to click %s: %w", target, err)
	}
	if !clicked {
		return fmt.Errorf("element not found: %s", target)
	}
	return nil
}

// Fill types value into the first input matching the target's selector
func (p *ChromePage) Fill(ctx context.Context, target types.Target, value string) error {
	err := p.run(ctx,
		chromedp.WaitVisible(target.CSS, chromedp.ByQuery),
		chromedp.Clear(target.CSS, chromedp.ByQuery),
		chromedp.SendKeys(target.CSS, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", target, err)
	}
	return nil
}

// Text returns the page's visible text
func (p *ChromePage) Text(ctx context.Context) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// HTML returns the full page markup
func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page markup: %w", err)
	}
	return html, nil
}

// Screenshot captures the full page as PNG
func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Cookies returns every cookie of the browser context, whatever its domain or path
func (p *ChromePage) Cookies(ctx context.Context) ([]types.Cookie, error) {
	var cookies []types.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = sessionCookies(raw)
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return cookies, nil
}

func sessionCookies(raw []*network.Cookie) []types.Cookie {
	cookies := make([]types.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, types.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return cookies
}

// SetCookies injects a saved session into the browser context
func (p *ChromePage) SetCookies(ctx context.Context, cookies []types.Cookie) error {
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				params = params.WithExpires(&expires)
			}
			if c.SameSite != "" {
				params = params.WithSameSite(network.CookieSameSite(c.SameSite))
			}
			if err := params.Do(ctx); err != nil {
				return fmt.Errorf("cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

// Close terminates the tab and the browser process
func (p *ChromePage) Close() error {
	p.once.Do(p.cancel)
	return nil
}
