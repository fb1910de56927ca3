package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"grocery-cli/flows"
	"grocery-cli/internal/session"
	"grocery-cli/internal/types"
	"grocery-cli/utils"
)

// ProductCache stores product snapshots between invocations
type ProductCache interface {
	GetProduct(ctx context.Context, provider, productUID string, maxAge time.Duration) (*types.Product, error)
	PutProduct(ctx context.Context, product *types.Product) error
}

// Deps are the collaborators shared by every provider
type Deps struct {
	Config *types.Config
	Logger types.Logger

	// Browser drives the web flows; a Chrome client is used when nil
	Browser types.Browser
	// Cache is optional
	Cache ProductCache
	// Prompter answers MFA challenges during login
	Prompter flows.CodePrompter
}

var minimumSpendBody = regexp.MustCompile(`(?i)minimum[ _-]?(?:spend|order|basket)|MIN_SPEND`)

// BaseAdapter holds the transport and session plumbing every provider shares.
// Each provider owns its BaseAdapter; nothing here is shared across providers.
type BaseAdapter struct {
	name       string
	config     *types.Config
	provider   types.ProviderConfig
	logger     types.Logger
	httpClient *utils.HTTPClient
	sessions   *session.Store
	cache      ProductCache

	authCookie *regexp.Regexp
	authHeader string
	session    *session.Data
}

// NewBaseAdapter creates a base adapter for provider name and loads its saved session.
// authCookie selects the cookie sent separately as authHeader (both optional).
func NewBaseAdapter(name string, deps Deps, authCookie *regexp.Regexp, authHeader string) *BaseAdapter {
	provider := deps.Config.Provider(name)
	b := &BaseAdapter{
		name:       name,
		config:     deps.Config,
		provider:   provider,
		logger:     deps.Logger,
		httpClient: utils.NewHTTPClient(name, provider.BaseURL, deps.Config, deps.Logger),
		sessions:   session.NewStore(session.Path(deps.Config.SessionDir, name), deps.Logger),
		cache:      deps.Cache,
		authCookie: authCookie,
		authHeader: authHeader,
	}

	data, err := b.sessions.Load()
	if err != nil {
		b.logger.Warnf("[%s] Failed to load session: %v", name, err)
	}
	b.applySession(data)
	return b
}

// applySession attaches the session's cookies (and auth token) to the transport
func (b *BaseAdapter) applySession(data *session.Data) {
	b.session = data
	if data == nil || len(data.Cookies) == 0 {
		b.httpClient.DelHeader("Cookie")
		if b.authHeader != "" {
			b.httpClient.DelHeader(b.authHeader)
		}
		return
	}

	b.httpClient.SetHeader("Cookie", data.CookieHeader())
	b.logger.Debugf("[%s] Session loaded (%d cookies, expires %s)", b.name, len(data.Cookies), data.ExpiresAt.Format(time.RFC3339))
	if b.authHeader == "" {
		return
	}
	if token, ok := data.AuthToken(b.authCookie); ok {
		b.httpClient.SetHeader(b.authHeader, token)
	} else {
		b.httpClient.DelHeader(b.authHeader)
	}
}

// Name returns the registry name
func (b *BaseAdapter) Name() string {
	return b.name
}

// MinimumSpend is the smallest basket total the retailer delivers
func (b *BaseAdapter) MinimumSpend() decimal.Decimal {
	return b.provider.MinimumSpend
}

// SessionPath returns where this provider's session lives
func (b *BaseAdapter) SessionPath() string {
	return b.sessions.Path()
}

// Logout discards the saved session
func (b *BaseAdapter) Logout(ctx context.Context) error {
	if err := b.sessions.Clear(); err != nil {
		return err
	}
	b.applySession(nil)
	b.logger.Infof("[%s] Session cleared", b.name)
	return nil
}

// Close releases the transport
func (b *BaseAdapter) Close() {
	if b.httpClient != nil {
		b.httpClient.Close()
	}
}

func (b *BaseAdapter) getObject(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	body, err := b.httpClient.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

func (b *BaseAdapter) sendObject(ctx context.Context, method, path string, query url.Values, payload any) (map[string]any, error) {
	body, err := b.httpClient.Send(ctx, method, path, query, payload)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

// probeAuth reports whether a basket read succeeds with the current session.
// Auth failures mean false; any other failure is returned.
func (b *BaseAdapter) probeAuth(ctx context.Context, read func(context.Context) (*types.Basket, error)) (bool, error) {
	if b.session == nil {
		return false, nil
	}
	if _, err := read(ctx); err != nil {
		if types.IsAuthError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// clearBasket removes every line of a fresh basket read, one call per line.
// It is not transactional: an interruption leaves the remaining lines in place.
func (b *BaseAdapter) clearBasket(ctx context.Context, read func(context.Context) (*types.Basket, error), remove func(context.Context, string) error) error {
	basket, err := read(ctx)
	if err != nil {
		return err
	}
	for i, item := range basket.Items {
		if err := remove(ctx, item.ItemID); err != nil {
			return fmt.Errorf("cleared %d of %d items: %w", i, len(basket.Items), err)
		}
	}
	b.logger.Infof("[%s] Cleared %d basket items", b.name, len(basket.Items))
	return nil
}

// cachedProduct reads through the product cache when one is configured
func (b *BaseAdapter) cachedProduct(ctx context.Context, productID string, fetch func(context.Context) (*types.Product, error)) (*types.Product, error) {
	useCache := b.cache != nil && b.config.CacheTTL > 0
	if useCache {
		product, err := b.cache.GetProduct(ctx, b.name, productID, b.config.CacheTTL)
		if err != nil {
			b.logger.Warnf("[%s] Product cache read failed: %v", b.name, err)
		} else if product != nil {
			b.logger.Debugf("[%s] Product %s served from cache", b.name, productID)
			return product, nil
		}
	}

	product, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := b.cache.PutProduct(ctx, product); err != nil {
			b.logger.Warnf("[%s] Product cache write failed: %v", b.name, err)
		}
	}
	return product, nil
}

// ordersFrom tries each history endpoint in order. A 404 moves on to the next
// endpoint; any other failure is returned. No endpoint with a list means no orders.
func (b *BaseAdapter) ordersFrom(ctx context.Context, endpoints, listKeys []string, mapOrder func(map[string]any) types.Order) ([]types.Order, error) {
	for _, endpoint := range endpoints {
		obj, err := b.getObject(ctx, endpoint, nil)
		if err != nil {
			if types.IsNotFound(err) {
				b.logger.Debugf("[%s] Order endpoint %s not found", b.name, endpoint)
				continue
			}
			return nil, err
		}

		list, ok := pickSlice(obj, listKeys...)
		if !ok {
			continue
		}
		orders := make([]types.Order, 0, len(list))
		for _, o := range list {
			orders = append(orders, mapOrder(o))
		}
		return orders, nil
	}
	return []types.Order{}, nil
}

// upstreamCondition turns retailer rejections that describe a business rule into
// PreconditionErrors. Everything else is returned unchanged.
func (b *BaseAdapter) upstreamCondition(err error) error {
	var transportErr *types.TransportError
	if !errors.As(err, &transportErr) || transportErr.IsAuth() {
		return err
	}
	if minimumSpendBody.MatchString(transportErr.Body) {
		return &types.PreconditionError{
			Provider: b.name,
			Reason:   types.ReasonMinimumSpend,
			Minimum:  b.provider.MinimumSpend,
			Detail:   fmt.Sprintf("retailer rejected the request (status %d)", transportErr.StatusCode),
		}
	}
	return err
}

func requireQuantity(provider string, quantity, min int) error {
	if quantity < min {
		return fmt.Errorf("%s: %w: %d (must be at least %d)", provider, types.ErrInvalidQuantity, quantity, min)
	}
	return nil
}

func pathID(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}
