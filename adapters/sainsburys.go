package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"grocery-cli/flows"
	"grocery-cli/internal/types"
	"grocery-cli/utils"
)

const defaultPageSize = 24

var sainsburysAuthCookie = regexp.MustCompile(`^WC_AUTHENTICATION_`)

var (
	sainsburysItem = itemFields{
		ID:         []string{"item_uid", "item_id", "id"},
		ProductUID: []string{"product.sku", "product.product_uid", "product_uid", "sku"},
		Name:       []string{"product.name", "name"},
		Quantity:   []string{"quantity"},
		UnitPrice:  []string{"unit_price", "product.retail_price.price", "price"},
		TotalPrice: []string{"subtotal_price", "total_price", "total"},
	}
	sainsburysSlot = slotFields{
		ID:    []string{"slot_id", "id"},
		Date:  []string{"date"},
		Start: []string{"start_time", "start"},
		End:   []string{"end_time", "end"},
		Price: []string{"price", "delivery_charge"},
	}
	sainsburysOrderEndpoints = []string{"/order/v1/orders", "/order/v1/history", "/orders/v1/history", "/customer/v1/orders"}
)

var (
	_ types.Provider          = (*SainsburysAdapter)(nil)
	_ flows.BrowserCheckouter = (*SainsburysAdapter)(nil)
)

// SainsburysAdapter implements the Sainsbury's groceries API, with login,
// slot discovery and checkout running in the browser
type SainsburysAdapter struct {
	*BaseAdapter
	runner   *flows.Runner
	prompter flows.CodePrompter
	now      func() time.Time
}

// NewSainsburysAdapter creates a Sainsbury's provider
func NewSainsburysAdapter(deps Deps) *SainsburysAdapter {
	base := NewBaseAdapter("sainsburys", deps, sainsburysAuthCookie, "wcauthtoken")

	browser := deps.Browser
	if browser == nil {
		browser = utils.NewBrowserClient(deps.Config, deps.Logger)
	}

	return &SainsburysAdapter{
		BaseAdapter: base,
		runner:      flows.NewRunner(deps.Config, deps.Logger, browser, SainsburysProfile(base.provider), base.sessions),
		prompter:    deps.Prompter,
		now:         time.Now,
	}
}

// basketQuery is the trolley context every basket call carries
func (s *SainsburysAdapter) basketQuery() url.Values {
	return url.Values{
		"pick_time":    {s.now().Add(24 * time.Hour).UTC().Format(time.RFC3339)},
		"store_number": {s.provider.StoreNumber},
		"slot_booked":  {"false"},
	}
}

// Login signs in through the browser and attaches the new session
func (s *SainsburysAdapter) Login(ctx context.Context, email, password string) error {
	data, err := s.runner.Login(ctx, email, password, s.prompter)
	if err != nil {
		return err
	}
	s.applySession(data)
	return nil
}

// IsAuthenticated probes the basket endpoint
func (s *SainsburysAdapter) IsAuthenticated(ctx context.Context) (bool, error) {
	return s.probeAuth(ctx, s.GetBasket)
}

// Search finds products. Offsets map onto page numbers.
func (s *SainsburysAdapter) Search(ctx context.Context, query string, opts types.SearchOptions) ([]types.Product, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	page := 1
	if opts.Offset > 0 {
		page = opts.Offset/limit + 1
	}

	params := url.Values{
		"filter[keyword]": {query},
		"page_number":     {strconv.Itoa(page)},
		"page_size":       {strconv.Itoa(limit)},
		"sort_order":      {"FAVOURITES_FIRST"},
	}
	if opts.Category != "" {
		params.Set("filter[category]", opts.Category)
	}

	obj, err := s.getObject(ctx, "/product/v1/product", params)
	if err != nil {
		return nil, err
	}

	list, _ := pickSlice(obj, "products", "results")
	products := make([]types.Product, 0, len(list))
	for _, p := range list {
		products = append(products, s.product(p))
	}
	s.logger.Debugf("[%s] Search %q returned %d products (page %d)", s.name, query, len(products), page)
	return products, nil
}

func (s *SainsburysAdapter) product(p map[string]any) types.Product {
	product := types.Product{
		ProductUID:  pickString(p, "product_uid", "sku", "id"),
		Name:        pickString(p, "name"),
		Description: plainText(pickString(p, "description", "details.description")),
		RetailPrice: types.Price{Price: pickDecimal(p, "retail_price.price", "retail_price", "price")},
		InStock:     notFalse(p, "in_stock", "is_available"),
		ImageURL:    pickString(p, "image", "image_url", "assets.plp_image"),
		Provider:    s.name,
	}
	if up := pickMap(p, "unit_price"); up != nil {
		product.UnitPrice = &types.UnitPrice{
			Measure: pickString(up, "measure"),
			Price:   pickDecimal(up, "price"),
		}
	}
	return product
}

// GetProduct fetches one product, through the cache when enabled
func (s *SainsburysAdapter) GetProduct(ctx context.Context, productID string) (*types.Product, error) {
	return s.cachedProduct(ctx, productID, func(ctx context.Context) (*types.Product, error) {
		obj, err := s.getObject(ctx, pathID("/product/v1/product", productID), nil)
		if err != nil {
			return nil, err
		}
		if list, ok := pickSlice(obj, "products"); ok {
			if len(list) == 0 {
				return nil, fmt.Errorf("%s: product %s not found", s.name, productID)
			}
			obj = list[0]
		}
		product := s.product(obj)
		if product.ProductUID == "" {
			product.ProductUID = productID
		}
		return &product, nil
	})
}

// GetCategories returns the category tree
func (s *SainsburysAdapter) GetCategories(ctx context.Context) ([]types.Category, error) {
	body, err := s.httpClient.Get(ctx, "/product/categories/tree", nil)
	if err != nil {
		return nil, err
	}
	return categoryTree(body, "category_hierarchy", "categories", "data")
}

// GetBasket reads the trolley
func (s *SainsburysAdapter) GetBasket(ctx context.Context) (*types.Basket, error) {
	obj, err := s.getObject(ctx, "/basket/v2/basket", s.basketQuery())
	if err != nil {
		return nil, err
	}

	list, _ := pickSlice(obj, "items")
	items := make([]types.BasketItem, 0, len(list))
	for _, raw := range list {
		items = append(items, normalizeItem(raw, sainsburysItem))
	}
	quantity, cost := basketTotals(obj, items, []string{"item_count", "total_quantity"}, []string{"total_price", "total_cost", "subtotal_price"})

	return &types.Basket{
		Items:         items,
		TotalQuantity: quantity,
		TotalCost:     cost,
		Provider:      s.name,
	}, nil
}

// AddToBasket adds quantity each of a product
func (s *SainsburysAdapter) AddToBasket(ctx context.Context, productID string, quantity int) error {
	if err := requireQuantity(s.name, quantity, 1); err != nil {
		return err
	}
	_, err := s.httpClient.Send(ctx, http.MethodPost, "/basket/v2/basket/item", s.basketQuery(), map[string]any{
		"product_uid":          productID,
		"quantity":             quantity,
		"uom":                  "ea",
		"selected_catchweight": "",
	})
	if err != nil {
		return err
	}
	s.logger.Infof("[%s] Added %d x %s to basket", s.name, quantity, productID)
	return nil
}

// UpdateBasketItem sets a line's quantity; zero removes it. The trolley is read
// first because the update is addressed by product as well as line id.
func (s *SainsburysAdapter) UpdateBasketItem(ctx context.Context, itemID string, quantity int) error {
	if err := requireQuantity(s.name, quantity, 0); err != nil {
		return err
	}

	basket, err := s.GetBasket(ctx)
	if err != nil {
		return err
	}
	item, ok := basket.Item(itemID)
	if !ok {
		return fmt.Errorf("%s: %w: %s", s.name, types.ErrItemNotFound, itemID)
	}

	_, err = s.httpClient.Send(ctx, http.MethodPut, "/basket/v2/basket", s.basketQuery(), map[string]any{
		"items": []map[string]any{{
			"product_uid":          item.ProductUID,
			"quantity":             quantity,
			"uom":                  "ea",
			"selected_catchweight": "",
			"item_uid":             itemID,
			"decreasing_quantity":  quantity < item.Quantity,
		}},
	})
	if err != nil {
		return err
	}
	s.logger.Infof("[%s] Set %s to quantity %d", s.name, itemID, quantity)
	return nil
}

// RemoveFromBasket is an update to quantity zero
func (s *SainsburysAdapter) RemoveFromBasket(ctx context.Context, itemID string) error {
	return s.UpdateBasketItem(ctx, itemID, 0)
}

// ClearBasket removes every line. Best-effort, not transactional.
func (s *SainsburysAdapter) ClearBasket(ctx context.Context) error {
	return s.clearBasket(ctx, s.GetBasket, s.RemoveFromBasket)
}

// GetDeliverySlots reads the slot page in the browser
func (s *SainsburysAdapter) GetDeliverySlots(ctx context.Context) ([]types.DeliverySlot, error) {
	return s.runner.DiscoverSlots(ctx)
}

// BookSlot reserves a slot. Unknown ids are rejected by the retailer.
func (s *SainsburysAdapter) BookSlot(ctx context.Context, slotID string) error {
	_, err := s.httpClient.Send(ctx, http.MethodPost, "/slot/v1/slot/reservation", nil, map[string]any{
		"slot_id": slotID,
	})
	if err != nil {
		return s.upstreamCondition(err)
	}
	s.logger.Infof("[%s] Reserved slot %s", s.name, slotID)
	return nil
}

// Checkout is not available over the API; use BrowserCheckout
func (s *SainsburysAdapter) Checkout(ctx context.Context) (*types.Order, error) {
	return nil, types.NewUnsupported(s.name, "checkout", "the checkout API requires a browser session, use the browser checkout")
}

// BrowserCheckout runs the checkout workflow in a real browser
func (s *SainsburysAdapter) BrowserCheckout(ctx context.Context, opts flows.CheckoutOptions) (*flows.CheckoutResult, error) {
	return s.runner.Checkout(ctx, s, opts)
}

// GetOrders lists order history from the first endpoint that answers
func (s *SainsburysAdapter) GetOrders(ctx context.Context) ([]types.Order, error) {
	return s.ordersFrom(ctx, sainsburysOrderEndpoints, []string{"orders", "order_history"}, func(o map[string]any) types.Order {
		order := types.Order{
			OrderID: pickString(o, "order_id", "order_number", "id"),
			Status:  pickString(o, "status", "order_status"),
			Total:   pickDecimal(o, "total", "total_cost", "order_total"),
			Items:   []types.BasketItem{},
		}
		if order.Status == "" {
			order.Status = "unknown"
		}
		if slot := pickMap(o, "delivery_slot"); slot != nil {
			ds := normalizeSlot(slot, sainsburysSlot)
			ds.Available = true
			order.DeliverySlot = &ds
		}
		if items, ok := pickSlice(o, "items"); ok {
			for _, raw := range items {
				order.Items = append(order.Items, normalizeItem(raw, sainsburysItem))
			}
		}
		return order
	})
}
