package events

import (
	"context"
	"log"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

// LogPublisher writes events to the process log. It is used when no webhook
// is configured.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.logger.Printf("event publish topic=%s event_id=%s type=%s tenant=%s aggregate=%s/%s version=%d actor=%s",
		topic, event.EventID, event.EventType, event.TenantID, event.AggregateType, event.AggregateID, event.AggregateVersion, event.Actor)
	return nil
}
