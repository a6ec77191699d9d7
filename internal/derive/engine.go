// Package derive recomputes the valuation form's derived fields after an
// edit. Rules are pure functions of the flat record; non-numeric inputs
// count as zero and derived outputs are canonical decimal strings, empty
// unless positive.
package derive

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/matthewbaird/valuation/internal/form"
)

// Field names used by the rules.
const (
	FieldTotalMarketValue = "totalMarketValueOfTheProperty"
	FieldRealizableValue  = "realizableValue"
	FieldDistressValue    = "distressValue"
	FieldTotalValue       = "valuationTotalValue"
	FieldLineItems        = "valuationDetailsArray"
)

// Pair is one fixed quantity/rate row of the valuation table.
type Pair struct {
	Qty    string
	Rate   string
	Output string
}

// Pairs are the nine fixed rows, in display order.
var Pairs = []Pair{
	{Qty: "presentValueQty", Rate: "presentValueRate", Output: "presentValue"},
	{Qty: "wardrobes", Rate: "wardrobesRate", Output: "wardrobesValue"},
	{Qty: "showcases", Rate: "showcasesRate", Output: "showcasesValue"},
	{Qty: "kitchenArrangements", Rate: "kitchenRate", Output: "kitchenValue"},
	{Qty: "superfineFinish", Rate: "finishRate", Output: "finishValue"},
	{Qty: "interiorDecorations", Rate: "decorationRate", Output: "decorationValue"},
	{Qty: "electricityDeposits", Rate: "electricityRate", Output: "electricityValue"},
	{Qty: "grillWorks", Rate: "grillRate", Output: "grillValue"},
	{Qty: "potentialValue", Rate: "potentialRate", Output: "potentialValueAmount"},
}

var (
	realizableFactor = apd.New(90, -2)
	distressFactor   = apd.New(80, -2)
)

// Rule recomputes Outputs whenever one of its Triggers changes. Formula
// returns one value per output.
type Rule struct {
	Name     string
	Triggers []string
	Outputs  []string
	Formula  func(f form.FlatRecord) []string
}

var rules = buildRules()

func buildRules() []Rule {
	rs := []Rule{{
		Name:     "market_value_split",
		Triggers: []string{FieldTotalMarketValue},
		Outputs:  []string{FieldRealizableValue, FieldDistressValue},
		Formula: func(f form.FlatRecord) []string {
			total := ParseNumber(f.String(FieldTotalMarketValue))
			return []string{
				FormatPositive(mul(total, realizableFactor)),
				FormatPositive(mul(total, distressFactor)),
			}
		},
	}}

	outputs := make([]string, 0, len(Pairs))
	for _, p := range Pairs {
		p := p
		rs = append(rs, Rule{
			Name:     "product_" + p.Output,
			Triggers: []string{p.Qty, p.Rate},
			Outputs:  []string{p.Output},
			Formula: func(f form.FlatRecord) []string {
				return []string{FormatPositive(mul(ParseNumber(f.String(p.Qty)), ParseNumber(f.String(p.Rate))))}
			},
		})
		outputs = append(outputs, p.Output)
	}

	rs = append(rs, Rule{
		Name:     "valuation_total",
		Triggers: outputs,
		Outputs:  []string{FieldTotalValue},
		Formula: func(f form.FlatRecord) []string {
			return []string{FormatPositive(fixedTotal(f))}
		},
	})
	return rs
}

// Rules returns the rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// ApplyFieldChange assigns value to trigger and recomputes every field that
// depends on it, transitively. When trigger is one key of an alias group the
// value is written to both keys. flat is not modified.
func ApplyFieldChange(flat form.FlatRecord, trigger, value string) form.FlatRecord {
	out := flat.Clone()
	out[trigger] = value
	if a, ok := form.Default().Catalog().AliasFor(trigger); ok {
		out[a.Canonical] = value
		out[a.Legacy] = value
	}

	applied := make(map[string]bool)
	queue := []string{trigger}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		for _, r := range rules {
			if applied[r.Name] || !triggers(r, key) {
				continue
			}
			applied[r.Name] = true
			apply(out, r)
			queue = append(queue, r.Outputs...)
		}
	}
	return out
}

// Recompute re-applies every rule in table order. Used after a record is
// loaded so stale persisted outputs are repaired.
func Recompute(flat form.FlatRecord) form.FlatRecord {
	out := flat.Clone()
	for _, r := range rules {
		apply(out, r)
	}
	return out
}

func apply(f form.FlatRecord, r Rule) {
	values := r.Formula(f)
	for i, k := range r.Outputs {
		f[k] = values[i]
	}
}

func triggers(r Rule, key string) bool {
	for _, t := range r.Triggers {
		if t == key {
			return true
		}
	}
	return false
}

func fixedTotal(f form.FlatRecord) *apd.Decimal {
	values := make([]*apd.Decimal, 0, len(Pairs))
	for _, p := range Pairs {
		values = append(values, ParseNumber(f.String(p.Output)))
	}
	return sum(values...)
}
