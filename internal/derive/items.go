package derive

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/matthewbaird/valuation/internal/form"
	"github.com/matthewbaird/valuation/internal/types"
)

// Line item field names accepted by ApplyItemChange.
const (
	ItemDescription = "description"
	ItemQty         = "qty"
	ItemRate        = "rate"
	ItemValue       = "value"
)

// ApplyItemChange sets one field of the custom line item at index and
// recomputes that item's value when its qty or rate changed. An index out
// of range or an unknown field leaves the items unchanged. items is not
// modified.
func ApplyItemChange(items []types.LineItem, index int, field, value string) []types.LineItem {
	out := make([]types.LineItem, len(items))
	copy(out, items)
	if index < 0 || index >= len(out) {
		return out
	}
	item := &out[index]
	switch field {
	case ItemDescription:
		item.Description = value
	case ItemValue:
		item.Value = value
	case ItemQty:
		item.Qty = value
		item.Value = itemProduct(*item)
	case ItemRate:
		item.Rate = value
		item.Value = itemProduct(*item)
	}
	return out
}

// ApplyFlatItemChange is ApplyItemChange over the record's line-item array.
func ApplyFlatItemChange(flat form.FlatRecord, index int, field, value string) form.FlatRecord {
	out := flat.Clone()
	out[FieldLineItems] = ApplyItemChange(flat.Items(FieldLineItems), index, field, value)
	return out
}

// AddItem appends an empty custom line item numbered after the last one.
func AddItem(flat form.FlatRecord, description string) form.FlatRecord {
	out := flat.Clone()
	items := flat.Items(FieldLineItems)
	next := 1
	if n := len(items); n > 0 {
		next = items[n-1].SNo + 1
	}
	out[FieldLineItems] = append(items, types.LineItem{SNo: next, Description: description})
	return out
}

// RemoveItem deletes the custom line item at index and renumbers the rest.
func RemoveItem(flat form.FlatRecord, index int) form.FlatRecord {
	out := flat.Clone()
	items := flat.Items(FieldLineItems)
	if index < 0 || index >= len(items) {
		out[FieldLineItems] = items
		return out
	}
	items = append(items[:index], items[index+1:]...)
	for i := range items {
		items[i].SNo = i + 1
	}
	out[FieldLineItems] = items
	return out
}

// ItemsTotal sums the values of the custom line items.
func ItemsTotal(items []types.LineItem) string {
	return FormatPositive(itemsSum(items))
}

// GrandTotal is the display total: the nine fixed rows plus the custom line
// items. It is computed at read time and never stored in the record.
func GrandTotal(flat form.FlatRecord) string {
	return FormatPositive(sum(fixedTotal(flat), itemsSum(flat.Items(FieldLineItems))))
}

func itemProduct(item types.LineItem) string {
	return FormatPositive(mul(ParseNumber(item.Qty), ParseNumber(item.Rate)))
}

func itemsSum(items []types.LineItem) *apd.Decimal {
	values := make([]*apd.Decimal, 0, len(items))
	for _, it := range items {
		values = append(values, ParseNumber(it.Value))
	}
	return sum(values...)
}
