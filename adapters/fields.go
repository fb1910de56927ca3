package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"grocery-cli/internal/types"
)

// Upstream shapes are undocumented, so every concept is read through an ordered
// list of candidate keys. Dotted keys walk nested objects ("product.sku").

func decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return v, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected response shape %T", v)
	}
	return obj, nil
}

func lookup(obj map[string]any, key string) (any, bool) {
	var cur any = obj
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func pickString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := lookup(obj, key)
		if !ok {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case bool:
			s = fmt.Sprint(t)
		case []any:
			parts := make([]string, 0, len(t))
			for _, p := range t {
				if ps, ok := p.(string); ok && strings.TrimSpace(ps) != "" {
					parts = append(parts, strings.TrimSpace(ps))
				}
			}
			s = strings.Join(parts, " ")
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func parseDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		s := strings.NewReplacer("£", "", ",", "", "GBP", "").Replace(strings.TrimSpace(t))
		if s = strings.TrimSpace(s); s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

// lookupDecimal returns the first non-zero value among keys. A present zero is
// remembered and reported as found once the list is exhausted.
func lookupDecimal(obj map[string]any, keys ...string) (decimal.Decimal, bool) {
	found := false
	for _, key := range keys {
		v, ok := lookup(obj, key)
		if !ok {
			continue
		}
		d, ok := parseDecimal(v)
		if !ok {
			continue
		}
		if !d.IsZero() {
			return d, true
		}
		found = true
	}
	return decimal.Zero, found
}

func pickDecimal(obj map[string]any, keys ...string) decimal.Decimal {
	d, _ := lookupDecimal(obj, keys...)
	return d
}

func pickInt(obj map[string]any, keys ...string) (int, bool) {
	d, ok := lookupDecimal(obj, keys...)
	return int(d.IntPart()), ok
}

// notFalse is true unless one of keys is explicitly false
func notFalse(obj map[string]any, keys ...string) bool {
	for _, key := range keys {
		v, ok := lookup(obj, key)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case bool:
			if !t {
				return false
			}
		case string:
			if strings.EqualFold(t, "false") {
				return false
			}
		}
	}
	return true
}

func pickMap(obj map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if v, ok := lookup(obj, key); ok {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func pickSlice(obj map[string]any, keys ...string) ([]map[string]any, bool) {
	for _, key := range keys {
		v, ok := lookup(obj, key)
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		return objects(list), true
	}
	return nil, false
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// plainText strips markup from product copy
func plainText(s string) string {
	if !strings.Contains(s, "<") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// itemFields names the candidate keys of one basket line
type itemFields struct {
	ID, ProductUID, Name, Quantity, UnitPrice, TotalPrice []string
}

var penny = decimal.RequireFromString("0.005")

// normalizeItem builds a basket line that keeps total = unit x quantity,
// deriving whichever price the upstream left out. Negative quantities count as
// zero. A weighed line (fractional quantity) is rounded up to whole units sharing the line total.
func normalizeItem(obj map[string]any, f itemFields) types.BasketItem {
	qty, _ := lookupDecimal(obj, f.Quantity...)
	unit, hasUnit := lookupDecimal(obj, f.UnitPrice...)
	total, hasTotal := lookupDecimal(obj, f.TotalPrice...)
	if qty.IsNegative() {
		qty = decimal.Zero
	}

	if !qty.Equal(qty.Truncate(0)) {
		if !hasTotal {
			total = unit.Mul(qty).Round(2)
		}
		qty = qty.Ceil()
		unit = total.Div(qty).Round(2)
		hasUnit, hasTotal = true, true
	}
	quantity := int(qty.IntPart())

	switch {
	case quantity == 0:
		total = decimal.Zero
	case hasUnit && !hasTotal:
		total = unit.Mul(qty).Round(2)
	case hasTotal && !hasUnit:
		unit = total.Div(qty).Round(2)
	case hasUnit && hasTotal:
		if unit.Mul(qty).Sub(total).Abs().GreaterThan(penny.Mul(qty)) {
			unit = total.Div(qty).Round(2)
		}
	}

	return types.BasketItem{
		ItemID:     pickString(obj, f.ID...),
		ProductUID: pickString(obj, f.ProductUID...),
		Name:       pickString(obj, f.Name...),
		Quantity:   quantity,
		UnitPrice:  unit,
		TotalPrice: total,
	}
}

// basketTotals fills missing basket totals from its lines
func basketTotals(obj map[string]any, items []types.BasketItem, quantityKeys, costKeys []string) (int, decimal.Decimal) {
	quantity, hasQuantity := pickInt(obj, quantityKeys...)
	cost, hasCost := lookupDecimal(obj, costKeys...)

	if !hasQuantity || !hasCost {
		sumQty := 0
		sumCost := decimal.Zero
		for _, item := range items {
			sumQty += item.Quantity
			sumCost = sumCost.Add(item.TotalPrice)
		}
		if !hasQuantity {
			quantity = sumQty
		}
		if !hasCost {
			cost = sumCost
		}
	}
	return quantity, cost
}

// slotFields names the candidate keys of a delivery slot
type slotFields struct {
	ID, Date, Start, End, Price []string
}

func normalizeSlot(obj map[string]any, f slotFields) types.DeliverySlot {
	return types.DeliverySlot{
		SlotID:    pickString(obj, f.ID...),
		Date:      pickString(obj, f.Date...),
		StartTime: pickString(obj, f.Start...),
		EndTime:   pickString(obj, f.End...),
		Price:     pickDecimal(obj, f.Price...),
		Available: notFalse(obj, "available", "is_available", "isAvailable"),
	}
}

// categoryFields names the candidate keys of a category node
var categoryFields = struct {
	ID, Name, Children []string
}{
	ID:       []string{"id", "category_id", "categoryId", "s"},
	Name:     []string{"name", "title", "label", "n"},
	Children: []string{"children", "subcategories", "categories", "c"},
}

func normalizeCategories(list []map[string]any) []types.Category {
	categories := make([]types.Category, 0, len(list))
	for _, obj := range list {
		category := types.Category{
			ID:   pickString(obj, categoryFields.ID...),
			Name: pickString(obj, categoryFields.Name...),
		}
		if children, ok := pickSlice(obj, categoryFields.Children...); ok && len(children) > 0 {
			category.Children = normalizeCategories(children)
		}
		if category.ID == "" && category.Name == "" {
			continue
		}
		categories = append(categories, category)
	}
	return categories
}

// categoryTree accepts either a bare list or an object wrapping one
func categoryTree(body []byte, keys ...string) ([]types.Category, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return normalizeCategories(objects(t)), nil
	case map[string]any:
		if list, ok := pickSlice(t, append(keys, categoryFields.Children...)...); ok {
			return normalizeCategories(list), nil
		}
	}
	return []types.Category{}, nil
}
