// Package seed provides demo data seeding for a fresh valuation store.
package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matthewbaird/valuation/internal/derive"
	"github.com/matthewbaird/valuation/internal/form"
	"github.com/matthewbaird/valuation/internal/logging"
	"github.com/matthewbaird/valuation/internal/store"
)

// Actor is recorded as creator of every seeded valuation.
const Actor = "system"

type demo struct {
	flat    form.FlatRecord
	status  string
	remarks string
}

var demos = []demo{
	{
		flat: form.FlatRecord{
			"referenceNumber":               "DEMO-001",
			"bankName":                      "State Bank",
			"applicant":                     "R. Kumar",
			"totalMarketValueOfTheProperty": "4500000",
			"wardrobes":                     "3",
			"wardrobesRate":                 "12500",
			"grillWorks":                    "40",
			"grillRate":                     "850",
		},
		status: store.StatusDraft,
	},
	{
		flat: form.FlatRecord{
			"referenceNumber":               "DEMO-002",
			"bankName":                      "Canara Bank",
			"applicant":                     "S. Iyer",
			"totalMarketValueOfTheProperty": "7800000",
			"showcases":                     "2",
			"showcasesRate":                 "18000",
		},
		status: store.StatusSubmitted,
	},
	{
		flat: form.FlatRecord{
			"referenceNumber":               "DEMO-003",
			"bankName":                      "Indian Bank",
			"applicant":                     "M. Rao",
			"totalMarketValueOfTheProperty": "2600000",
		},
		status:  store.StatusApproved,
		remarks: "Verified against site visit.",
	},
}

// Valuations creates a small set of demo valuations covering each workflow
// status. If the store already holds seeded valuations it skips seeding and
// returns 0.
func Valuations(ctx context.Context, s store.Store, log *zap.Logger) (int, error) {
	log = logging.OrNop(log)

	_, count, err := s.List(ctx, store.Filter{CreatedBy: Actor, Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("checking valuations: %w", err)
	}
	if count > 0 {
		log.Info("valuations already seeded, skipping", zap.Int("count", count))
		return 0, nil
	}

	mapper := form.Default()
	for i, d := range demos {
		record := mapper.Nest(derive.Recompute(d.flat.Clone()))
		v, err := s.Create(ctx, record, Actor)
		if err != nil {
			return i, fmt.Errorf("creating %s: %w", d.flat.String("referenceNumber"), err)
		}
		if err := advance(ctx, s, v.ID, d); err != nil {
			return i + 1, fmt.Errorf("advancing %s: %w", v.ReferenceNumber, err)
		}
	}
	log.Info("seeded demo valuations", zap.Int("count", len(demos)))
	return len(demos), nil
}

// advance walks a new draft through the workflow up to d.status.
func advance(ctx context.Context, s store.Store, id string, d demo) error {
	var steps []string
	switch d.status {
	case store.StatusSubmitted:
		steps = []string{store.StatusSubmitted}
	case store.StatusApproved, store.StatusRejected:
		steps = []string{store.StatusSubmitted, d.status}
	}
	for _, target := range steps {
		remarks := ""
		if target != store.StatusSubmitted {
			remarks = d.remarks
		}
		if _, err := s.Transition(ctx, id, target, Actor, remarks); err != nil {
			return err
		}
	}
	return nil
}
