package adapters

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"grocery-cli/flows"
	"grocery-cli/internal/types"
)

// suggestionsFetchLimit is what the suggestions endpoint is asked for; the
// result is truncated locally
const suggestionsFetchLimit = 20000

var (
	ocadoItem = itemFields{
		ID:         []string{"id", "lineId"},
		ProductUID: []string{"productId", "sku"},
		Name:       []string{"title", "name"},
		Quantity:   []string{"quantity"},
		UnitPrice:  []string{"unitPrice", "price"},
		TotalPrice: []string{"total", "totalPrice"},
	}
	ocadoSlot = slotFields{
		ID:    []string{"id", "slotId"},
		Date:  []string{"date"},
		Start: []string{"startTime", "start"},
		End:   []string{"endTime", "end"},
		Price: []string{"price", "deliveryCharge"},
	}
	ocadoOrderSlot = slotFields{
		ID:    []string{"id"},
		Date:  []string{"date"},
		Start: []string{"startTime"},
		End:   []string{"endTime"},
		Price: []string{"price"},
	}
	ocadoOrderEndpoints = []string{"/orders/v1/history", "/order/v1/orders", "/customer/v1/orders"}
)

var _ types.Provider = (*OcadoAdapter)(nil)

// OcadoAdapter implements the Ocado API. Login has no browser flow yet, so a
// session must be imported into the session file.
type OcadoAdapter struct {
	*BaseAdapter
}

// NewOcadoAdapter creates an Ocado provider
func NewOcadoAdapter(deps Deps) *OcadoAdapter {
	return &OcadoAdapter{
		BaseAdapter: NewBaseAdapter("ocado", deps, nil, ""),
	}
}

// Login is not supported
func (o *OcadoAdapter) Login(ctx context.Context, email, password string) error {
	return types.NewUnsupported(o.name, "login", "export a browser session to "+o.sessions.Path())
}

// IsAuthenticated probes the trolley endpoint
func (o *OcadoAdapter) IsAuthenticated(ctx context.Context) (bool, error) {
	return o.probeAuth(ctx, o.GetBasket)
}

// Search finds products, falling back to the suggestions endpoint when the
// search endpoint is missing
func (o *OcadoAdapter) Search(ctx context.Context, query string, opts types.SearchOptions) ([]types.Product, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	params := url.Values{
		"searchTerm": {query},
		"limit":      {strconv.Itoa(limit)},
		"regionId":   {o.provider.RegionID},
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Category != "" {
		params.Set("categoryId", opts.Category)
	}

	obj, err := o.getObject(ctx, "/search/v1/products", params)
	if err != nil {
		if types.IsNotFound(err) {
			o.logger.Debugf("[%s] Search endpoint not found, using suggestions", o.name)
			return o.searchSuggestions(ctx, query, opts, limit)
		}
		return nil, err
	}

	list, _ := pickSlice(obj, "results", "products")
	products := make([]types.Product, 0, len(list))
	for _, p := range list {
		products = append(products, o.product(p))
	}
	return products, nil
}

func (o *OcadoAdapter) searchSuggestions(ctx context.Context, query string, opts types.SearchOptions, limit int) ([]types.Product, error) {
	params := url.Values{
		"searchTerm": {query},
		"limit":      {strconv.Itoa(suggestionsFetchLimit)},
		"regionId":   {o.provider.RegionID},
	}

	obj, err := o.getObject(ctx, "/search/v1/suggestions/primary", params)
	if err != nil {
		return nil, err
	}

	list, _ := pickSlice(obj, "products")
	start := opts.Offset
	if start > len(list) {
		start = len(list)
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}

	products := make([]types.Product, 0, end-start)
	for _, p := range list[start:end] {
		products = append(products, types.Product{
			ProductUID:  pickString(p, "id", "sku"),
			Name:        pickString(p, "name", "title"),
			Description: plainText(pickString(p, "description")),
			RetailPrice: types.Price{Price: pickDecimal(p, "price")},
			InStock:     true,
			Provider:    o.name,
		})
	}
	return products, nil
}

func (o *OcadoAdapter) product(p map[string]any) types.Product {
	product := types.Product{
		ProductUID:  pickString(p, "id", "sku"),
		Name:        pickString(p, "title", "name"),
		Description: plainText(pickString(p, "description")),
		RetailPrice: types.Price{Price: pickDecimal(p, "price", "currentPrice", "price.current")},
		InStock:     notFalse(p, "available", "inStock"),
		ImageURL:    pickString(p, "imageUrl", "image"),
		Provider:    o.name,
	}
	if up := pickMap(p, "unitPrice"); up != nil {
		product.UnitPrice = &types.UnitPrice{
			Measure: pickString(up, "measure", "unit"),
			Price:   pickDecimal(up, "price"),
		}
	}
	return product
}

// GetProduct fetches one product, through the cache when enabled
func (o *OcadoAdapter) GetProduct(ctx context.Context, productID string) (*types.Product, error) {
	return o.cachedProduct(ctx, productID, func(ctx context.Context) (*types.Product, error) {
		obj, err := o.getObject(ctx, pathID("/products/v1", productID), nil)
		if err != nil {
			return nil, err
		}
		product := o.product(obj)
		if product.ProductUID == "" {
			product.ProductUID = productID
		}
		return &product, nil
	})
}

// GetCategories returns the category tree
func (o *OcadoAdapter) GetCategories(ctx context.Context) ([]types.Category, error) {
	body, err := o.httpClient.Get(ctx, "/categories/v1/tree", nil)
	if err != nil {
		return nil, err
	}
	return categoryTree(body, "categories", "tree", "data")
}

// GetBasket reads the trolley
func (o *OcadoAdapter) GetBasket(ctx context.Context) (*types.Basket, error) {
	obj, err := o.getObject(ctx, "/trolley/v1/basket", nil)
	if err != nil {
		return nil, err
	}

	list, _ := pickSlice(obj, "items")
	items := make([]types.BasketItem, 0, len(list))
	for _, raw := range list {
		items = append(items, normalizeItem(raw, ocadoItem))
	}
	quantity, cost := basketTotals(obj, items, []string{"totalQuantity"}, []string{"total", "totalCost"})

	return &types.Basket{
		Items:         items,
		TotalQuantity: quantity,
		TotalCost:     cost,
		Provider:      o.name,
	}, nil
}

// AddToBasket adds quantity of a product
func (o *OcadoAdapter) AddToBasket(ctx context.Context, productID string, quantity int) error {
	if err := requireQuantity(o.name, quantity, 1); err != nil {
		return err
	}
	_, err := o.httpClient.Send(ctx, http.MethodPost, "/trolley/v1/items", nil, map[string]any{
		"productId": productID,
		"quantity":  quantity,
	})
	if err != nil {
		return err
	}
	o.logger.Infof("[%s] Added %d x %s to basket", o.name, quantity, productID)
	return nil
}

// UpdateBasketItem sets a line's quantity; zero deletes the line
func (o *OcadoAdapter) UpdateBasketItem(ctx context.Context, itemID string, quantity int) error {
	if err := requireQuantity(o.name, quantity, 0); err != nil {
		return err
	}
	if quantity == 0 {
		return o.RemoveFromBasket(ctx, itemID)
	}
	_, err := o.httpClient.Send(ctx, http.MethodPut, pathID("/trolley/v1/items", itemID), nil, map[string]any{
		"quantity": quantity,
	})
	return err
}

// RemoveFromBasket deletes a line
func (o *OcadoAdapter) RemoveFromBasket(ctx context.Context, itemID string) error {
	_, err := o.httpClient.Do(ctx, http.MethodDelete, pathID("/trolley/v1/items", itemID), nil, nil)
	return err
}

// ClearBasket removes every line. Best-effort, not transactional.
func (o *OcadoAdapter) ClearBasket(ctx context.Context) error {
	return o.clearBasket(ctx, o.GetBasket, o.RemoveFromBasket)
}

// GetDeliverySlots lists slots, unavailable ones included
func (o *OcadoAdapter) GetDeliverySlots(ctx context.Context) ([]types.DeliverySlot, error) {
	obj, err := o.getObject(ctx, "/slots/v1/available", nil)
	if err != nil {
		return nil, o.upstreamCondition(err)
	}

	list, _ := pickSlice(obj, "slots")
	if len(list) == 0 && !notFalse(obj, "minimumSpendMet", "minSpendMet") {
		return nil, &types.PreconditionError{
			Provider: o.name,
			Reason:   types.ReasonMinimumSpend,
			Minimum:  o.provider.MinimumSpend,
			Detail:   "slots are only offered once the basket meets the minimum spend",
		}
	}

	slots := make([]types.DeliverySlot, 0, len(list))
	for _, s := range list {
		slots = append(slots, normalizeSlot(s, ocadoSlot))
	}
	return slots, nil
}

// BookSlot reserves a slot. A slot listed as unavailable is refused locally;
// ids that are not listed at all are left for the retailer to reject.
func (o *OcadoAdapter) BookSlot(ctx context.Context, slotID string) error {
	slots, err := o.GetDeliverySlots(ctx)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.SlotID == slotID && !slot.Available {
			return &types.PreconditionError{
				Provider: o.name,
				Reason:   types.ReasonSlotUnavailable,
				Detail:   slotID,
			}
		}
	}

	if _, err := o.httpClient.Send(ctx, http.MethodPost, "/slots/v1/book", nil, map[string]any{"slotId": slotID}); err != nil {
		return o.upstreamCondition(err)
	}
	o.logger.Infof("[%s] Booked slot %s", o.name, slotID)
	return nil
}

// Checkout places the order through the API after checking the minimum spend
func (o *OcadoAdapter) Checkout(ctx context.Context) (*types.Order, error) {
	basket, err := o.GetBasket(ctx)
	if err != nil {
		return nil, err
	}
	if err := flows.CheckMinimumSpend(o.name, basket, o.provider.MinimumSpend); err != nil {
		return nil, err
	}

	obj, err := o.sendObject(ctx, http.MethodPost, "/checkout/v1/place-order", nil, nil)
	if err != nil {
		return nil, o.upstreamCondition(err)
	}

	order := &types.Order{
		OrderID: pickString(obj, "orderId", "id"),
		Status:  pickString(obj, "status"),
		Total:   pickDecimal(obj, "total", "totalAmount"),
		Items:   basket.Items,
	}
	if order.OrderID == "" {
		order.OrderID = "unknown"
	}
	if order.Status == "" {
		order.Status = "placed"
	}
	if order.Total.IsZero() {
		order.Total = basket.TotalCost
	}
	o.logger.Infof("[%s] Order placed: %s", o.name, order.OrderID)
	return order, nil
}

// GetOrders lists order history from the first endpoint that answers
func (o *OcadoAdapter) GetOrders(ctx context.Context) ([]types.Order, error) {
	return o.ordersFrom(ctx, ocadoOrderEndpoints, []string{"orders", "orderHistory"}, func(raw map[string]any) types.Order {
		order := types.Order{
			OrderID: pickString(raw, "id", "orderId", "orderNumber"),
			Status:  pickString(raw, "status", "orderStatus"),
			Total:   pickDecimal(raw, "total", "totalAmount"),
			Items:   []types.BasketItem{},
		}
		if order.Status == "" {
			order.Status = "unknown"
		}
		if slot := pickMap(raw, "deliverySlot"); slot != nil {
			ds := normalizeSlot(slot, ocadoOrderSlot)
			ds.Available = true
			order.DeliverySlot = &ds
		}
		if items, ok := pickSlice(raw, "items"); ok {
			for _, item := range items {
				order.Items = append(order.Items, normalizeItem(item, ocadoItem))
			}
		}
		return order
	})
}
