package types

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Price is a single retail price
type Price struct {
	Price decimal.Decimal `json:"price"`
}

// UnitPrice is a price per measure, e.g. per kg or per litre
type UnitPrice struct {
	Measure string          `json:"measure"`
	Price   decimal.Decimal `json:"price"`
}

// Product is an immutable snapshot of one catalog read.
// Identity is the (Provider, ProductUID) pair; ProductUID alone is not unique across retailers.
type Product struct {
	ProductUID  string     `json:"product_uid"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	RetailPrice Price      `json:"retail_price"`
	UnitPrice   *UnitPrice `json:"unit_price,omitempty"`
	InStock     bool       `json:"in_stock"`
	ImageURL    string     `json:"image_url,omitempty"`
	Provider    string     `json:"provider"`
}

// BasketItem is one line of a retailer basket.
// ItemID is retailer-assigned and only valid within one basket session.
type BasketItem struct {
	ItemID     string          `json:"item_id"`
	ProductUID string          `json:"product_uid"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Basket is a read-through snapshot of the remote basket. It is never cached:
// every mutating call invalidates it and callers re-fetch.
type Basket struct {
	Items         []BasketItem    `json:"items"`
	TotalQuantity int             `json:"total_quantity"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Provider      string          `json:"provider"`
}

// Item returns the basket line with the given item id
func (b *Basket) Item(itemID string) (BasketItem, bool) {
	for _, item := range b.Items {
		if item.ItemID == itemID {
			return item, true
		}
	}
	return BasketItem{}, false
}

// DeliverySlot is a bookable delivery window. Unavailable slots are still listed.
type DeliverySlot struct {
	SlotID    string          `json:"slot_id"`
	Date      string          `json:"date"`
	StartTime string          `json:"start_time"`
	EndTime   string          `json:"end_time"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// Order is a placed (or previewed) order. OrderID is the idempotency anchor.
type Order struct {
	OrderID      string          `json:"order_id"`
	Status       string          `json:"status"`
	Total        decimal.Decimal `json:"total"`
	DeliverySlot *DeliverySlot   `json:"delivery_slot,omitempty"`
	Items        []BasketItem    `json:"items"`
}

// Placeholder order ids never identify a real order
const (
	OrderIDUnknown = "UNKNOWN"
	OrderIDDryRun  = "DRY_RUN"
)

// IsPlaceholder reports whether the order id is a stand-in rather than a retailer order number
func (o *Order) IsPlaceholder() bool {
	switch o.OrderID {
	case "", "unknown", OrderIDUnknown, OrderIDDryRun:
		return true
	}
	return false
}

// Category is one node of a retailer's category tree
type Category struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Children []Category `json:"children,omitempty"`
}

// SearchOptions narrows a product search
type SearchOptions struct {
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
	Category string `json:"category,omitempty"`
}

// ProviderResult is one entry of a cross-provider comparison.
// Error is nil on success; on failure Products is empty and Error holds the message.
type ProviderResult struct {
	Provider string    `json:"provider"`
	Products []Product `json:"products"`
	Error    *string   `json:"error"`
}

// Cookie is a browser cookie as captured after login
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Provider is the capability contract every supermarket implementation satisfies.
// Callers depend only on this interface, never on a concrete retailer.
type Provider interface {
	// Name returns the registry name of the provider
	Name() string

	// Login authenticates and persists a session
	Login(ctx context.Context, email, password string) error

	// Logout discards the persisted session
	Logout(ctx context.Context) error

	// IsAuthenticated probes the retailer with the current session
	IsAuthenticated(ctx context.Context) (bool, error)

	// Search returns products in retailer relevance order; no results is not an error
	Search(ctx context.Context, query string, opts SearchOptions) ([]Product, error)

	// GetProduct fetches a single product
	GetProduct(ctx context.Context, productID string) (*Product, error)

	// GetCategories returns the category tree
	GetCategories(ctx context.Context) ([]Category, error)

	// GetBasket fetches the current basket
	GetBasket(ctx context.Context) (*Basket, error)

	// AddToBasket adds quantity (>= 1) of a product
	AddToBasket(ctx context.Context, productID string, quantity int) error

	// UpdateBasketItem sets an item's quantity; zero removes it
	UpdateBasketItem(ctx context.Context, itemID string, quantity int) error

	// RemoveFromBasket removes an item
	RemoveFromBasket(ctx context.Context, itemID string) error

	// ClearBasket removes every item. Best-effort, not transactional.
	ClearBasket(ctx context.Context) error

	// GetDeliverySlots lists delivery slots, including unavailable ones
	GetDeliverySlots(ctx context.Context) ([]DeliverySlot, error)

	// BookSlot reserves a delivery slot
	BookSlot(ctx context.Context, slotID string) error

	// Checkout places the order through the JSON API, or fails with ErrUnsupported
	Checkout(ctx context.Context) (*Order, error)

	// GetOrders lists order history
	GetOrders(ctx context.Context) ([]Order, error)

	// Close releases the provider's transport
	Close()
}

// ProviderConfig holds per-retailer settings
type ProviderConfig struct {
	BaseURL      string
	WebURL       string
	StoreNumber  string
	RegionID     string
	MinimumSpend decimal.Decimal
}

// Config holds the configuration shared by all providers and flows
type Config struct {
	RequestDelay          time.Duration
	Timeout               time.Duration
	MaxConcurrentRequests int
	Headless              bool
	UserAgent             string

	SessionDir      string
	SessionLifetime time.Duration
	DiagnosticsDir  string

	CacheDBPath string
	CacheTTL    time.Duration

	LoginTimeout         time.Duration
	ElementTimeout       time.Duration
	PollInterval         time.Duration
	SlotSelectionTimeout time.Duration
	PaymentTimeout       time.Duration

	Providers map[string]ProviderConfig
}

// Provider returns the settings for one retailer (zero value when unset)
func (c *Config) Provider(name string) ProviderConfig {
	if c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[name]
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RequestDelay:          250 * time.Millisecond,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 5,
		Headless:              false,
		UserAgent:             "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",

		SessionLifetime: 7 * 24 * time.Hour,
		DiagnosticsDir:  "/tmp",

		LoginTimeout:         30 * time.Second,
		ElementTimeout:       15 * time.Second,
		PollInterval:         5 * time.Second,
		SlotSelectionTimeout: 5 * time.Minute,
		PaymentTimeout:       10 * time.Minute,

		Providers: map[string]ProviderConfig{
			"sainsburys": {
				BaseURL:      "https://www.sainsburys.co.uk/groceries-api/gol-services",
				WebURL:       "https://www.sainsburys.co.uk",
				StoreNumber:  "0560",
				MinimumSpend: decimal.NewFromInt(25),
			},
			"ocado": {
				BaseURL:      "https://www.ocado.com/api",
				WebURL:       "https://www.ocado.com",
				RegionID:     "9138094d-f307-46aa-a62d-86c8bdaeb4b9",
				MinimumSpend: decimal.NewFromInt(40),
			},
		},
	}
}

// Logger defines the logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
