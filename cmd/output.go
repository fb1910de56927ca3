package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"grocery-cli/flows"
	"grocery-cli/internal/types"
)

// emit prints v as indented JSON with -json, else through text
func (c *cli) emit(v any, text func(w io.Writer)) error {
	if c.json || text == nil {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

func printProducts(w io.Writer, products []types.Product) {
	if len(products) == 0 {
		fmt.Fprintln(w, "No products found")
		return
	}
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tUNIT PRICE\tSTOCK")
	for _, p := range products {
		unit := ""
		if p.UnitPrice != nil {
			unit = fmt.Sprintf("£%s/%s", p.UnitPrice.Price.StringFixed(2), p.UnitPrice.Measure)
		}
		stock := "in stock"
		if !p.InStock {
			stock = "out of stock"
		}
		fmt.Fprintf(w, "%s\t%s\t£%s\t%s\t%s\n", p.ProductUID, p.Name, p.RetailPrice.Price.StringFixed(2), unit, stock)
	}
}

func printProduct(w io.Writer, p *types.Product) {
	fmt.Fprintf(w, "ID:\t%s\n", p.ProductUID)
	fmt.Fprintf(w, "Name:\t%s\n", p.Name)
	fmt.Fprintf(w, "Price:\t£%s\n", p.RetailPrice.Price.StringFixed(2))
	if p.UnitPrice != nil {
		fmt.Fprintf(w, "Unit price:\t£%s/%s\n", p.UnitPrice.Price.StringFixed(2), p.UnitPrice.Measure)
	}
	fmt.Fprintf(w, "In stock:\t%v\n", p.InStock)
	if p.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", p.Description)
	}
}

func printCategories(w io.Writer, categories []types.Category, depth int) {
	for _, category := range categories {
		fmt.Fprintf(w, "%s%s\t%s\n", strings.Repeat("  ", depth), category.Name, category.ID)
		printCategories(w, category.Children, depth+1)
	}
}

func printBasket(w io.Writer, basket *types.Basket) {
	if len(basket.Items) == 0 {
		fmt.Fprintln(w, "Basket is empty")
		return
	}
	fmt.Fprintln(w, "ITEM\tPRODUCT\tNAME\tQTY\tUNIT\tTOTAL")
	for _, item := range basket.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t£%s\t£%s\n", item.ItemID, item.ProductUID, item.Name,
			item.Quantity, item.UnitPrice.StringFixed(2), item.TotalPrice.StringFixed(2))
	}
	fmt.Fprintf(w, "\t\tTotal\t%d\t\t£%s\n", basket.TotalQuantity, basket.TotalCost.StringFixed(2))
}

func printSlots(w io.Writer, slots []types.DeliverySlot) {
	if len(slots) == 0 {
		fmt.Fprintln(w, "No delivery slots found")
		return
	}
	fmt.Fprintln(w, "SLOT\tDATE\tTIME\tPRICE\tAVAILABLE")
	for _, s := range slots {
		fmt.Fprintf(w, "%s\t%s\t%s-%s\t£%s\t%v\n", s.SlotID, s.Date, s.StartTime, s.EndTime, s.Price.StringFixed(2), s.Available)
	}
}

func printOrders(w io.Writer, orders []types.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders found")
		return
	}
	fmt.Fprintln(w, "ORDER\tSTATUS\tTOTAL\tDELIVERY")
	for _, o := range orders {
		delivery := ""
		if o.DeliverySlot != nil {
			delivery = strings.TrimSpace(fmt.Sprintf("%s %s-%s", o.DeliverySlot.Date, o.DeliverySlot.StartTime, o.DeliverySlot.EndTime))
		}
		fmt.Fprintf(w, "%s\t%s\t£%s\t%s\n", o.OrderID, o.Status, o.Total.StringFixed(2), delivery)
	}
}

func printOrder(w io.Writer, o *types.Order) {
	fmt.Fprintf(w, "Order:\t%s\n", o.OrderID)
	fmt.Fprintf(w, "Status:\t%s\n", o.Status)
	fmt.Fprintf(w, "Total:\t£%s\n", o.Total.StringFixed(2))
	fmt.Fprintf(w, "Items:\t%d\n", len(o.Items))
}

func printCheckout(w io.Writer, r *flows.CheckoutResult) {
	fmt.Fprintf(w, "Run:\t%s\n", r.RunID)
	fmt.Fprintf(w, "State:\t%s\n", r.State)
	fmt.Fprintf(w, "Order:\t%s\n", r.OrderID)
	fmt.Fprintf(w, "Total:\t£%s\n", r.Total.StringFixed(2))
	fmt.Fprintf(w, "Slot confirmed:\t%v\n", r.SlotConfirmed)
	fmt.Fprintf(w, "Payment:\t%s\n", r.PaymentStatus)
	if r.Screenshot != "" {
		fmt.Fprintf(w, "Screenshot:\t%s\n", r.Screenshot)
	}
	if r.PageURL != "" {
		fmt.Fprintf(w, "Page:\t%s\n", r.PageURL)
	}
}

func printComparison(w io.Writer, results []types.ProviderResult) {
	for _, r := range results {
		fmt.Fprintf(w, "== %s ==\n", r.Provider)
		if r.Error != nil {
			fmt.Fprintf(w, "error:\t%s\n\n", *r.Error)
			continue
		}
		printProducts(w, r.Products)
		fmt.Fprintln(w)
	}
}
