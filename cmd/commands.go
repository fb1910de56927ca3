package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"grocery-cli/flows"
	"grocery-cli/internal/types"
)

const (
	defaultProvider = "sainsburys"
	// duplicateOrderWindow blocks a second checkout for the same provider
	duplicateOrderWindow = time.Hour
)

// newFlags creates a subcommand flag set with the shared -provider flag
func newFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	provider := fs.String("provider", defaultProvider, "Provider name (see 'groc providers')")
	return fs, provider
}

// withProvider creates the named provider for the duration of fn
func (c *cli) withProvider(name string, fn func(types.Provider) error) error {
	provider, err := c.app.Registry.Create(name)
	if err != nil {
		return err
	}
	defer provider.Close()
	return fn(provider)
}

func positional(fs *flag.FlagSet, names ...string) ([]string, error) {
	if fs.NArg() != len(names) {
		return nil, usagef("%s: expected %s", fs.Name(), strings.Join(names, " "))
	}
	return fs.Args(), nil
}

func parseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, usagef("invalid quantity %q", s)
	}
	return n, nil
}

func runProviders(ctx context.Context, c *cli, args []string) error {
	names := c.app.Registry.AvailableProviders()
	return c.emit(names, func(w io.Writer) {
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
	})
}

func runLogin(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("login")
	email := fs.String("email", "", "Account email (default $<PROVIDER>_EMAIL)")
	password := fs.String("password", "", "Account password (default $<PROVIDER>_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prefix := strings.ToUpper(*provider)
	if *email == "" {
		*email = os.Getenv(prefix + "_EMAIL")
	}
	if *password == "" {
		*password = os.Getenv(prefix + "_PASSWORD")
	}
	if *email == "" || *password == "" {
		return usagef("login: credentials required, pass -email/-password or set %s_EMAIL and %s_PASSWORD", prefix, prefix)
	}

	return c.withProvider(*provider, func(p types.Provider) error {
		if err := p.Login(ctx, *email, *password); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Logged in to %s\n", p.Name())
		return nil
	})
}

func runLogout(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("logout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		if err := p.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Logged out of %s\n", p.Name())
		return nil
	})
}

type sessionPather interface {
	SessionPath() string
}

func runStatus(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		ok, err := p.IsAuthenticated(ctx)
		if err != nil {
			return err
		}
		status := map[string]any{"provider": p.Name(), "authenticated": ok}
		if sp, isPather := p.(sessionPather); isPather {
			status["session"] = sp.SessionPath()
		}
		return c.emit(status, func(w io.Writer) {
			if ok {
				fmt.Fprintf(w, "%s: logged in\n", p.Name())
			} else {
				fmt.Fprintf(w, "%s: not logged in\n", p.Name())
			}
		})
	})
}

func runSearch(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("search")
	limit := fs.Int("limit", 24, "Maximum results")
	offset := fs.Int("offset", 0, "Results to skip")
	category := fs.String("category", "", "Category id filter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usagef("search: expected a query")
	}
	query := strings.Join(fs.Args(), " ")

	return c.withProvider(*provider, func(p types.Provider) error {
		products, err := p.Search(ctx, query, types.SearchOptions{Limit: *limit, Offset: *offset, Category: *category})
		if err != nil {
			return err
		}
		return c.emit(products, func(w io.Writer) { printProducts(w, products) })
	})
}

func runProduct(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("product")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "<product-id>")
	if err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		product, err := p.GetProduct(ctx, pos[0])
		if err != nil {
			return err
		}
		return c.emit(product, func(w io.Writer) { printProduct(w, product) })
	})
}

func runCategories(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("categories")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		categories, err := p.GetCategories(ctx)
		if err != nil {
			return err
		}
		return c.emit(categories, func(w io.Writer) { printCategories(w, categories, 0) })
	})
}

func runBasket(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("basket")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		basket, err := p.GetBasket(ctx)
		if err != nil {
			return err
		}
		return c.emit(basket, func(w io.Writer) { printBasket(w, basket) })
	})
}

// showBasket re-reads the basket after a mutation; mutations return nothing
func (c *cli) showBasket(ctx context.Context, p types.Provider) error {
	basket, err := p.GetBasket(ctx)
	if err != nil {
		return err
	}
	return c.emit(basket, func(w io.Writer) { printBasket(w, basket) })
}

func runAdd(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("add")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return usagef("add: expected <product-id> [quantity]")
	}
	quantity := 1
	if fs.NArg() == 2 {
		var err error
		if quantity, err = parseQuantity(fs.Arg(1)); err != nil {
			return err
		}
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		if err := p.AddToBasket(ctx, fs.Arg(0), quantity); err != nil {
			return err
		}
		return c.showBasket(ctx, p)
	})
}

func runUpdate(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("update")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "<item-id>", "<quantity>")
	if err != nil {
		return err
	}
	quantity, err := parseQuantity(pos[1])
	if err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		if err := p.UpdateBasketItem(ctx, pos[0], quantity); err != nil {
			return err
		}
		return c.showBasket(ctx, p)
	})
}

func runRemove(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("remove")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "<item-id>")
	if err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		if err := p.RemoveFromBasket(ctx, pos[0]); err != nil {
			return err
		}
		return c.showBasket(ctx, p)
	})
}

func runClear(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("clear")
	force := fs.Bool("force", false, "Confirm removing every item")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		return usagef("clear: removes every basket item, pass -force to confirm")
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		if err := p.ClearBasket(ctx); err != nil {
			return err
		}
		return c.showBasket(ctx, p)
	})
}

func runSlots(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("slots")
	availableOnly := fs.Bool("available", false, "Only show available slots")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		slots, err := p.GetDeliverySlots(ctx)
		if err != nil {
			return err
		}
		if *availableOnly {
			filtered := make([]types.DeliverySlot, 0, len(slots))
			for _, s := range slots {
				if s.Available {
					filtered = append(filtered, s)
				}
			}
			slots = filtered
		}
		return c.emit(slots, func(w io.Writer) { printSlots(w, slots) })
	})
}

func runBook(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("book")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pos, err := positional(fs, "<slot-id>")
	if err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		if err := p.BookSlot(ctx, pos[0]); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Booked slot %s\n", pos[0])
		return nil
	})
}

type minimumSpender interface {
	MinimumSpend() decimal.Decimal
}

// checkoutOptions are the flags of the checkout command
type checkoutOptions struct {
	dryRun  bool
	force   bool
	confirm bool
}

func runCheckout(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("checkout")
	var opts checkoutOptions
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Preview the checkout without proceeding")
	fs.BoolVar(&opts.force, "force", false, "Check out even if an order was placed in the last hour")
	fs.BoolVar(&opts.confirm, "confirm", false, "Allow a provider API to place the order without a payment page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		return c.checkout(ctx, p, opts)
	})
}

// checkout runs the API checkout only with -confirm, since it places the order
// unattended. Browser checkouts stop at the payment page and need no confirmation.
func (c *cli) checkout(ctx context.Context, p types.Provider, opts checkoutOptions) error {
	if opts.dryRun {
		return c.previewCheckout(ctx, p)
	}

	if !opts.force {
		if c.app.Store == nil {
			return errors.New("checkout: the order journal is unavailable, pass -force to check out without the duplicate order guard")
		}
		if err := c.app.Store.RecentOrder(ctx, p.Name(), duplicateOrderWindow); err != nil {
			return err
		}
	}

	bc, isBrowser := p.(flows.BrowserCheckouter)
	if opts.confirm {
		order, err := p.Checkout(ctx)
		if err == nil {
			c.recordOrder(ctx, p.Name(), order, uuid.NewString())
			return c.emit(order, func(w io.Writer) { printOrder(w, order) })
		}
		if !errors.Is(err, types.ErrUnsupported) || !isBrowser {
			return err
		}
		c.app.Logger.Infof("[%s] API checkout unavailable, continuing in the browser", p.Name())
	} else if !isBrowser {
		return usagef("checkout: %s places the order without a payment page, pass -confirm to proceed or -dry-run to preview", p.Name())
	}

	result, err := bc.BrowserCheckout(ctx, flows.CheckoutOptions{})
	if err != nil {
		return err
	}
	defer result.Close()

	switch result.State {
	case flows.StateCompleted:
		c.recordOrder(ctx, p.Name(), result.Order(), result.RunID)
	case flows.StatePaymentRequired:
		if err := c.emit(result, func(w io.Writer) { printCheckout(w, result) }); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Payment was not completed. Finish it in the open browser window.")
		return c.prompter.WaitForEnter(ctx, "Press Enter to close the browser: ")
	}
	return c.emit(result, func(w io.Writer) { printCheckout(w, result) })
}

// previewCheckout validates the basket without placing anything
func (c *cli) previewCheckout(ctx context.Context, p types.Provider) error {
	if bc, ok := p.(flows.BrowserCheckouter); ok {
		result, err := bc.BrowserCheckout(ctx, flows.CheckoutOptions{DryRun: true})
		if err != nil {
			return err
		}
		defer result.Close()
		return c.emit(result, func(w io.Writer) { printCheckout(w, result) })
	}

	basket, err := p.GetBasket(ctx)
	if err != nil {
		return err
	}
	if ms, ok := p.(minimumSpender); ok {
		if err := flows.CheckMinimumSpend(p.Name(), basket, ms.MinimumSpend()); err != nil {
			return err
		}
	}
	preview := &types.Order{
		OrderID: types.OrderIDDryRun,
		Status:  "preview",
		Total:   basket.TotalCost,
		Items:   basket.Items,
	}
	return c.emit(preview, func(w io.Writer) { printOrder(w, preview) })
}

func (c *cli) recordOrder(ctx context.Context, provider string, order *types.Order, runID string) {
	if c.app.Store == nil {
		return
	}
	if err := c.app.Store.RecordOrder(ctx, provider, order, runID); err != nil {
		c.app.Logger.Warnf("[%s] Failed to journal order %s: %v", provider, order.OrderID, err)
	}
}

func runOrders(ctx context.Context, c *cli, args []string) error {
	fs, provider := newFlags("orders")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.withProvider(*provider, func(p types.Provider) error {
		orders, err := p.GetOrders(ctx)
		if err != nil {
			return err
		}
		return c.emit(orders, func(w io.Writer) { printOrders(w, orders) })
	})
}

func runCompare(ctx context.Context, c *cli, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	providers := fs.String("providers", "", "Comma-separated providers (default all)")
	limit := fs.Int("limit", 5, "Results per provider")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usagef("compare: expected a query")
	}
	query := strings.Join(fs.Args(), " ")

	var names []string
	for _, name := range strings.Split(*providers, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	results := c.app.Registry.CompareProduct(ctx, query, names, *limit)
	return c.emit(results, func(w io.Writer) { printComparison(w, results) })
}
