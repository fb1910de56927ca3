package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grocery-cli/internal/types"
)

// fakeTrolley is an in-memory Sainsbury's basket API
type fakeTrolley struct {
	t     *testing.T
	mu    sync.Mutex
	items []map[string]any
	next  int
}

func (f *fakeTrolley) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/basket/v2/basket":
		assert.Equal(f.t, "0560", r.URL.Query().Get("store_number"))
		assert.Equal(f.t, "false", r.URL.Query().Get("slot_booked"))
		_, err := time.Parse(time.RFC3339, r.URL.Query().Get("pick_time"))
		assert.NoError(f.t, err)
		writeJSON(f.t, w, map[string]any{"items": f.items})

	case r.Method == http.MethodPost && r.URL.Path == "/basket/v2/basket/item":
		body := readJSON(f.t, r)
		f.next++
		f.items = append(f.items, map[string]any{
			"item_uid": "line-" + body["product_uid"].(string),
			"product":  map[string]any{"sku": body["product_uid"], "name": "Bananas"},
			"quantity": body["quantity"],
			"unit_price": 1.50,
		})
		writeJSON(f.t, w, map[string]any{})

	case r.Method == http.MethodPut && r.URL.Path == "/basket/v2/basket":
		body := readJSON(f.t, r)
		update := body["items"].([]any)[0].(map[string]any)
		kept := f.items[:0]
		for _, item := range f.items {
			if item["item_uid"] == update["item_uid"] {
				if update["quantity"].(float64) == 0 {
					continue
				}
				item["quantity"] = update["quantity"]
			}
			kept = append(kept, item)
		}
		f.items = kept
		writeJSON(f.t, w, map[string]any{})

	default:
		http.NotFound(w, r)
	}
}

func newTestSainsburys(t *testing.T, handler http.Handler) (*SainsburysAdapter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	deps := testDeps(t, "sainsburys", server)
	saveTestSession(t, deps, "sainsburys",
		types.Cookie{Name: "JSESSIONID", Value: "abc"},
		types.Cookie{Name: "WC_AUTHENTICATION_123", Value: "token-123"},
	)
	s := NewSainsburysAdapter(deps)
	t.Cleanup(s.Close)
	return s, server
}

func TestSainsburys_AuthHeaders(t *testing.T) {
	s, _ := newTestSainsburys(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JSESSIONID=abc; WC_AUTHENTICATION_123=token-123", r.Header.Get("Cookie"))
		assert.Equal(t, "token-123", r.Header.Get("wcauthtoken"))
		writeJSON(t, w, map[string]any{"items": []any{}})
	}))

	ok, err := s.IsAuthenticated(context.Background())

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSainsburys_IsAuthenticated_Expired(t *testing.T) {
	s, _ := newTestSainsburys(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	ok, err := s.IsAuthenticated(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSainsburys_Search_Pagination(t *testing.T) {
	s, _ := newTestSainsburys(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product/v1/product", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "milk", q.Get("filter[keyword]"))
		assert.Equal(t, "3", q.Get("page_number"))
		assert.Equal(t, "24", q.Get("page_size"))
		writeJSON(t, w, map[string]any{"products": []any{
			map[string]any{
				"product_uid":  "7813",
				"name":         "Semi Skimmed Milk 2L",
				"retail_price": map[string]any{"price": 1.65},
				"unit_price":   map[string]any{"measure": "ltr", "price": 0.83},
				"in_stock":     true,
			},
			map[string]any{"product_uid": "7814", "name": "Oat Milk", "retail_price": map[string]any{"price": "£2.10"}, "in_stock": false},
		}})
	}))

	products, err := s.Search(context.Background(), "milk", types.SearchOptions{Limit: 24, Offset: 48})

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "7813", products[0].ProductUID)
	assert.Equal(t, "sainsburys", products[0].Provider)
	assertDecimal(t, "1.65", products[0].RetailPrice.Price)
	require.NotNil(t, products[0].UnitPrice)
	assert.Equal(t, "ltr", products[0].UnitPrice.Measure)
	assertDecimal(t, "2.10", products[1].RetailPrice.Price)
	assert.False(t, products[1].InStock)
}

func TestSainsburys_Search_NoResults(t *testing.T) {
	s, _ := newTestSainsburys(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"products": []any{}})
	}))

	products, err := s.Search(context.Background(), "unobtainium", types.SearchOptions{})

	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestSainsburys_GetBasket_DerivesTotals(t *testing.T) {
	s, _ := newTestSainsburys(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"items": []any{
			map[string]any{"item_uid": "a", "product": map[string]any{"sku": "P1", "name": "Bread"}, "quantity": 2, "unit_price": 1.10},
			map[string]any{"item_uid": "b", "product": map[string]any{"sku": "P2", "name": "Eggs"}, "quantity": 1, "subtotal_price": 2.35},
		}})
	}))

	basket, err := s.GetBasket(context.Background())

	require.NoError(t, err)
	require.Len(t, basket.Items, 2)
	assertDecimal(t, "2.20", basket.Items[0].TotalPrice)
	assertDecimal(t, "2.35", basket.Items[1].UnitPrice)
	assert.Equal(t, 3, basket.TotalQuantity)
	assertDecimal(t, "4.55", basket.TotalCost)
}

func TestSainsburys_BasketLifecycle(t *testing.T) {
	s, _ := newTestSainsburys(t, &fakeTrolley{t: t})
	ctx := context.Background()

	require.NoError(t, s.AddToBasket(ctx, "P1", 2))

	basket, err := s.GetBasket(ctx)
	require.NoError(t, err)
	require.Len(t, basket.Items, 1)
	assert.Equal(t, "P1", basket.Items[0].ProductUID)
	assert.Equal(t, 2, basket.TotalQuantity)
	assertDecimal(t, "3.00", basket.TotalCost)

	require.NoError(t, s.UpdateBasketItem(ctx, basket.Items[0].ItemID, 0))

	basket, err = s.GetBasket(ctx)
	require.NoError(t, err)
	assert.Empty(t, basket.Items)
	assertDecimal(t, "0", basket.TotalCost)
}

func TestSainsburys_RemoveMatchesUpdateZero(t *testing.T) {
	s, _ := newTestSainsburys(t, &fakeTrolley{t: t})
	ctx := context.Background()

	require.NoError(t, s.AddToBasket(ctx, "P1", 1))
	require.NoError(t, s.AddToBasket(ctx, "P2", 1))
	require.NoError(t, s.RemoveFromBasket(ctx, "line-P1"))

	basket, err := s.GetBasket(ctx)
	require.NoError(t, err)
	require.Len(t, basket.Items, 1)
	assert.Equal(t, "P2", basket.Items[0].ProductUID)

	require.NoError(t, s.ClearBasket(ctx))
	basket, err = s.GetBasket(ctx)
	require.NoError(t, err)
	assert.Empty(t, basket.Items)
}

func TestSainsburys_InvalidQuantity(t *testing.T) {
	s, _ := newTestSainsburys(t, &fakeTrolley{t: t})

	err := s.AddToBasket(context.Background(), "P1", 0)
	assert.ErrorIs(t, err, types.ErrInvalidQuantity)

	err = s.UpdateBasketItem(context.Background(), "line-P1", -1)
	assert.ErrorIs(t, err, types.ErrInvalidQuantity)
}

func TestSainsburys_UpdateUnknownItem(t *testing.T) {
	s, _ := newTestSainsburys(t, &fakeTrolley{t: t})

	err := s.UpdateBasketItem(context.Background(), "nope", 3)

	assert.ErrorIs(t, err, types.ErrItemNotFound)
}

func TestSainsburys_BookSlot(t *testing.T) {
	s, _ := newTestSainsburys(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/slot/v1/slot/reservation", r.URL.Path)
		body := readJSON(t, r)
		switch body["slot_id"] {
		case "good":
			writeJSON(t, w, map[string]any{"reserved": true})
		case "small-basket":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"errors":[{"code":"MINIMUM_SPEND"}]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"errors":[{"code":"SLOT_NOT_FOUND"}]}`))
		}
	}))
	ctx := context.Background()

	require.NoError(t, s.BookSlot(ctx, "good"))

	err := s.BookSlot(ctx, "unknown")
	var transportErr *types.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusBadRequest, transportErr.StatusCode)

	err = s.BookSlot(ctx, "small-basket")
	assert.ErrorIs(t, err, types.ErrMinimumSpend)
}

func TestSainsburys_CheckoutUnsupported(t *testing.T) {
	s, _ := newTestSainsburys(t, http.NotFoundHandler())

	order, err := s.Checkout(context.Background())

	assert.Nil(t, order)
	assert.ErrorIs(t, err, types.ErrUnsupported)
	var unsupported *types.UnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "checkout", unsupported.Operation)
}

func TestSainsburys_GetOrders_EndpointChain(t *testing.T) {
	var hits []string
	s, _ := newTestSainsburys(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		if r.URL.Path != "/orders/v1/history" {
			http.NotFound(w, r)
			return
		}
		writeJSON(t, w, map[string]any{"order_history": []any{
			map[string]any{
				"order_number":  "900123",
				"order_total":   "£54.10",
				"delivery_slot": map[string]any{"slot_id": "s1", "start_time": "10:00", "end_time": "11:00"},
			},
		}})
	}))

	orders, err := s.GetOrders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"/order/v1/orders", "/order/v1/history", "/orders/v1/history"}, hits)
	require.Len(t, orders, 1)
	assert.Equal(t, "900123", orders[0].OrderID)
	assert.Equal(t, "unknown", orders[0].Status)
	assertDecimal(t, "54.10", orders[0].Total)
	require.NotNil(t, orders[0].DeliverySlot)
	assert.Equal(t, "10:00", orders[0].DeliverySlot.StartTime)
}

func TestSainsburys_GetOrders_AllMissing(t *testing.T) {
	s, _ := newTestSainsburys(t, http.NotFoundHandler())

	orders, err := s.GetOrders(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestSainsburys_GetOrders_ServerError(t *testing.T) {
	s, _ := newTestSainsburys(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := s.GetOrders(context.Background())

	var transportErr *types.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
}

func TestSainsburys_Logout(t *testing.T) {
	s, _ := newTestSainsburys(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Cookie"))
		w.WriteHeader(http.StatusUnauthorized)
	}))

	require.NoError(t, s.Logout(context.Background()))
	assert.NoFileExists(t, s.SessionPath())

	ok, err := s.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
