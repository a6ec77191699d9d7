// Package event defines the valuation workflow events and records them in
// the activity trail.
package event

import (
	"context"
	"fmt"

	"github.com/matthewbaird/valuation/internal/activity"
	"github.com/matthewbaird/valuation/internal/types"
)

// Recorder writes domain events to the activity trail.
type Recorder interface {
	Record(ctx context.Context, evt DomainEvent) error
}

// Publisher sends domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// ActivityRecorder indexes each event under its valuation and under the
// acting user, so the trail can be read per valuation or per user. Events
// reach the Publisher only once they are in the trail.
type ActivityRecorder struct {
	store activity.Store
	bus   Publisher
}

// NewActivityRecorder returns a recorder writing to store.
func NewActivityRecorder(store activity.Store) *ActivityRecorder {
	return &ActivityRecorder{store: store}
}

// SetPublisher attaches an event bus.
func (r *ActivityRecorder) SetPublisher(p Publisher) {
	r.bus = p
}

// Record writes evt to the trail and then publishes it.
func (r *ActivityRecorder) Record(ctx context.Context, evt DomainEvent) error {
	var entries []types.ActivityEntry
	for _, ref := range evt.AffectedEntities {
		// Anonymous actors and unsaved valuations have nothing to index.
		if ref.EntityID != "" {
			entries = append(entries, entryFor(evt, ref))
		}
	}
	if len(entries) > 0 {
		if err := r.store.WriteEntries(ctx, entries); err != nil {
			return fmt.Errorf("recording %s: %w", evt.EventType, err)
		}
	}
	if r.bus != nil {
		r.bus.Publish(ctx, evt)
	}
	return nil
}

func entryFor(evt DomainEvent, ref types.SourceRef) types.ActivityEntry {
	return types.ActivityEntry{
		EventID:           evt.ID,
		EventType:         evt.EventType,
		OccurredAt:        evt.OccurredAt,
		IndexedEntityType: ref.EntityType,
		IndexedEntityID:   ref.EntityID,
		EntityRole:        ref.Role,
		Actor:             evt.Actor,
		SourceRefs:        evt.AffectedEntities,
		Summary:           evt.Summary,
		Category:          evt.Category,
		Weight:            evt.Weight,
		Payload:           evt.Payload,
	}
}
