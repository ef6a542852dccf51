package eventbus

import (
	"context"
	"log/slog"

	"github.com/emiliopalmerini/salespulse/internal/event"
)

// LogConsumer logs every domain event at debug level.
type LogConsumer struct {
	logger *slog.Logger
}

func NewLogConsumer(logger *slog.Logger) *LogConsumer {
	return &LogConsumer{logger: orDefault(logger)}
}

func (c *LogConsumer) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	entities := make([]string, len(evt.AffectedEntities))
	for i, ref := range evt.AffectedEntities {
		entities[i] = ref.EntityType + ":" + ref.EntityID
	}
	c.logger.DebugContext(ctx, "event",
		slog.String("event_type", evt.EventType),
		slog.String("agency_id", evt.AgencyID),
		slog.String("summary", evt.Summary),
		slog.Any("entities", entities),
	)
	return nil
}
