// Package form reconciles the nested valuation record used for persistence
// with the flat key→value form the editor works on.
//
// Every function here is total: missing branches read as empty strings,
// malformed values are tolerated and unknown keys pass through.
package form

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/matthewbaird/valuation/internal/types"
)

// NestedRecord is the persisted record: groups of groups of scalar leaves,
// containers, media references and the valuationDetails line-item array.
type NestedRecord map[string]any

// FlatRecord is the in-memory form state keyed by unprefixed flat keys.
type FlatRecord map[string]any

// String returns the scalar at key, or "" when it is absent or not a scalar.
func (f FlatRecord) String(key string) string {
	return Scalar(f[key])
}

// Items returns the line items stored at key.
func (f FlatRecord) Items(key string) []types.LineItem {
	return LineItemsOf(f[key])
}

// Clone returns a deep copy of f. A nil record clones to an empty one.
func (f FlatRecord) Clone() FlatRecord {
	return FlatRecord(cloneMap(f))
}

// Clone returns a deep copy of n.
func (n NestedRecord) Clone() NestedRecord {
	return NestedRecord(cloneMap(n))
}

// Scalar renders a decoded JSON value as a leaf string. Numbers use their
// shortest decimal form, booleans "true"/"false"; nil, objects and arrays
// read as "".
func Scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return Scalar(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// LineItemsOf converts a decoded array value into line items. Elements that
// are not objects are skipped; the result is never nil.
func LineItemsOf(v any) []types.LineItem {
	switch t := v.(type) {
	case []types.LineItem:
		return cloneItems(t)
	case []any:
		out := make([]types.LineItem, 0, len(t))
		for _, el := range t {
			if m, ok := asMap(el); ok {
				out = append(out, lineItemFromMap(m))
			}
		}
		return out
	case []map[string]any:
		out := make([]types.LineItem, 0, len(t))
		for _, m := range t {
			out = append(out, lineItemFromMap(m))
		}
		return out
	default:
		return []types.LineItem{}
	}
}

// lineItemFromMap reads the known item fields as scalars and keeps every
// other field, unchanged, in Extra.
func lineItemFromMap(m map[string]any) types.LineItem {
	sno, _ := strconv.Atoi(Scalar(m["sno"]))
	item := types.LineItem{
		SNo:         sno,
		Description: Scalar(m["description"]),
		Qty:         Scalar(m["qty"]),
		Rate:        Scalar(m["rate"]),
		Value:       Scalar(m["value"]),
	}
	for k, v := range m {
		if types.IsLineItemField(k) {
			continue
		}
		if item.Extra == nil {
			item.Extra = make(map[string]any)
		}
		item.Extra[k] = cloneValue(v)
	}
	return item
}

func cloneItems(items []types.LineItem) []types.LineItem {
	out := make([]types.LineItem, len(items))
	for i, it := range items {
		if it.Extra != nil {
			it.Extra = cloneMap(it.Extra)
		}
		out[i] = it
	}
	return out
}

// numberItems fills in missing sequence positions with the item's 1-based
// index.
func numberItems(items []types.LineItem) []types.LineItem {
	for i := range items {
		if items[i].SNo <= 0 {
			items[i].SNo = i + 1
		}
	}
	return items
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case NestedRecord:
		return map[string]any(t), true
	case FlatRecord:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case NestedRecord:
		return cloneMap(t)
	case FlatRecord:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = cloneValue(el)
		}
		return out
	case []types.LineItem:
		return cloneItems(t)
	case []types.MediaRef:
		out := make([]types.MediaRef, len(t))
		copy(out, t)
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = cloneMap(el)
		}
		return out
	default:
		return v
	}
}

// lookupPath walks a dot path through nested maps.
func lookupPath(root map[string]any, segments []string) (any, bool) {
	var cur any = root
	for _, seg := range segments {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath assigns v at a dot path, creating intermediate groups. A
// non-object value sitting where a group belongs is replaced.
func setPath(root map[string]any, segments []string, v any) {
	cur := root
	for _, seg := range segments[:len(segments)-1] {
		next, ok := asMap(cur[seg])
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segments[len(segments)-1]] = v
}
