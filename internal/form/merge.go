package form

import (
	"github.com/matthewbaird/valuation/internal/catalog"
	"github.com/matthewbaird/valuation/internal/types"
)

// Merge folds incoming into current with the embedded catalog.
func Merge(current FlatRecord, incoming NestedRecord) FlatRecord {
	return Default().Merge(current, incoming)
}

// Merge reconciles a freshly loaded record into the session's flat state.
// Keys the incoming record supplies overwrite; keys it does not supply keep
// their current value. Containers merge key by key and media lists are only
// replaced by a non-empty incoming list. current is not modified.
func (m *Mapper) Merge(current FlatRecord, incoming NestedRecord) FlatRecord {
	flat, present := m.FlattenWithPresence(incoming)
	return m.merge(current, flat, present)
}

// MergeFlat is Merge for an incoming record that is already flat.
func (m *Mapper) MergeFlat(current, incoming FlatRecord) FlatRecord {
	present := make(Presence, len(incoming))
	for k := range incoming {
		present[k] = true
	}
	return m.merge(current, incoming, present)
}

func (m *Mapper) merge(current, incoming FlatRecord, present Presence) FlatRecord {
	out := current.Clone()
	for k := range present {
		v := incoming[k]
		e, known := m.cat.Lookup(k)
		switch {
		case known && e.Kind == catalog.KindContainer:
			out[k] = mergeContainer(out[k], v)
		case known && e.Kind == catalog.KindMedia:
			if isEmptyList(v) {
				if _, had := out[k]; had {
					continue
				}
			}
			out[k] = cloneValue(v)
		default:
			out[k] = cloneValue(v)
		}
	}
	return out
}

func mergeContainer(current, incoming any) map[string]any {
	out := make(map[string]any)
	if cm, ok := asMap(current); ok {
		out = cloneMap(cm)
	}
	if im, ok := asMap(incoming); ok {
		for k, v := range im {
			if nested, isMap := asMap(v); isMap {
				out[k] = mergeContainer(out[k], nested)
				continue
			}
			out[k] = cloneValue(v)
		}
	}
	return out
}

func isEmptyList(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case []map[string]any:
		return len(t) == 0
	case []types.MediaRef:
		return len(t) == 0
	default:
		return false
	}
}
