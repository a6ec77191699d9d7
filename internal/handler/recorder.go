package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/matthewbaird/valuation/internal/event"
)

// defaultRecorder is the package-level event recorder.
// Set during server startup via SetRecorder.
var defaultRecorder event.Recorder

// SetRecorder sets the package-level event recorder.
// Call this during server startup before handling requests.
func SetRecorder(r event.Recorder) {
	defaultRecorder = r
}

// recordEvent records a domain event if a recorder is configured.
// Errors are logged but do not fail the request.
func recordEvent(ctx context.Context, evt event.DomainEvent) {
	if defaultRecorder == nil {
		return
	}
	if err := defaultRecorder.Record(ctx, evt); err != nil {
		logger.Warn("event recording failed",
			zap.String("event_type", evt.EventType),
			zap.String("event_id", evt.ID),
			zap.Error(err))
	}
}
