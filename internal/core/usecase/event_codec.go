package usecase

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Upcaster rewrites an event payload from one schema version to the next.
type Upcaster interface {
	FromVersion() int
	ToVersion() int
	Upcast(payload json.RawMessage) (json.RawMessage, error)
}

// EventCodec decodes stored outbox payloads into envelopes at the current
// schema version. Envelopes of types this service does not emit are
// rejected so they end up dead-lettered instead of published.
type EventCodec struct {
	upcasters map[int]Upcaster
}

func NewEventCodec(upcasters ...Upcaster) *EventCodec {
	m := make(map[int]Upcaster, len(upcasters))
	for _, up := range upcasters {
		m[up.FromVersion()] = up
	}
	return &EventCodec{upcasters: m}
}

func (c *EventCodec) Decode(raw json.RawMessage) (domain.EventEnvelope, error) {
	var envelope domain.EventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.EventEnvelope{}, fmt.Errorf("decode payload: %w", err)
	}
	return c.Normalize(envelope)
}

func (c *EventCodec) Normalize(envelope domain.EventEnvelope) (domain.EventEnvelope, error) {
	v := envelope.SchemaVersion
	if v > domain.CurrentEventSchemaVersion {
		return domain.EventEnvelope{}, fmt.Errorf("unsupported event schema version %d", v)
	}
	payload := envelope.Payload
	for v < domain.CurrentEventSchemaVersion {
		up, ok := c.upcasters[v]
		if !ok {
			return domain.EventEnvelope{}, fmt.Errorf("missing upcaster from version %d", v)
		}
		next, err := up.Upcast(payload)
		if err != nil {
			return domain.EventEnvelope{}, fmt.Errorf("upcast %d->%d: %w", up.FromVersion(), up.ToVersion(), err)
		}
		payload = next
		v = up.ToVersion()
	}
	if !domain.KnownEventType(envelope.EventType) {
		return domain.EventEnvelope{}, fmt.Errorf("%w %q", ErrUnknownEventType, envelope.EventType)
	}

	envelope.SchemaVersion = v
	envelope.Payload = payload
	return envelope, nil
}

// SchemaChange decodes the payload of a schema.upserted or schema.deleted
// envelope.
func SchemaChange(envelope domain.EventEnvelope) (domain.SchemaChange, error) {
	var change domain.SchemaChange
	if envelope.EventType != domain.EventSchemaUpserted && envelope.EventType != domain.EventSchemaDeleted {
		return change, fmt.Errorf("%w: %q is not a schema event", ErrUnknownEventType, envelope.EventType)
	}
	if err := json.Unmarshal(envelope.Payload, &change); err != nil {
		return change, fmt.Errorf("decode schema change: %w", err)
	}
	return change, nil
}

// DocumentRejection decodes the payload of a document.rejected envelope.
func DocumentRejection(envelope domain.EventEnvelope) (domain.DocumentRejection, error) {
	var rejection domain.DocumentRejection
	if envelope.EventType != domain.EventDocumentRejected {
		return rejection, fmt.Errorf("%w: %q is not a rejection", ErrUnknownEventType, envelope.EventType)
	}
	if err := json.Unmarshal(envelope.Payload, &rejection); err != nil {
		return rejection, fmt.Errorf("decode document rejection: %w", err)
	}
	return rejection, nil
}
