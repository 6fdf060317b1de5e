package domain

import (
	"encoding/json"
	"time"
)

const CurrentEventSchemaVersion = 1

const (
	EventSchemaUpserted   = "schema.upserted"
	EventSchemaDeleted    = "schema.deleted"
	EventDocumentRejected = "document.rejected"
)

// KnownEventType reports whether t is an event type this service emits.
func KnownEventType(t string) bool {
	switch t {
	case EventSchemaUpserted, EventSchemaDeleted, EventDocumentRejected:
		return true
	}
	return false
}

// SchemaChange is the payload of schema.upserted and schema.deleted. Schema
// is empty for deletions.
type SchemaChange struct {
	Collection string          `json:"collection"`
	Version    int64           `json:"version"`
	Schema     json.RawMessage `json:"schema,omitempty"`
}

// DocumentRejection is the payload of document.rejected.
type DocumentRejection struct {
	ReportID      string      `json:"report_id"`
	Collection    string      `json:"collection"`
	SchemaVersion int64       `json:"schema_version"`
	DocumentHash  string      `json:"document_hash"`
	Violations    []Violation `json:"violations"`
}

const (
	OutboxPending    = "pending"
	OutboxDispatched = "dispatched"
	OutboxDead       = "dead"
)

// MutationMetadata describes who changed something and on whose behalf.
type MutationMetadata struct {
	Actor         string
	Source        string
	RequestID     string
	CorrelationID string
	OccurredAt    time.Time
}

func (m MutationMetadata) Normalize() MutationMetadata {
	if m.Actor == "" {
		m.Actor = "api"
	}
	if m.Source == "" {
		m.Source = "api"
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now().UTC()
	}
	return m
}

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	SchemaVersion    int             `json:"schema_version"`
	TenantID         string          `json:"tenant_id"`
	AggregateType    string          `json:"aggregate_type"`
	AggregateID      string          `json:"aggregate_id"`
	AggregateVersion int64           `json:"aggregate_version"`
	OccurredAt       time.Time       `json:"occurred_at"`
	CorrelationID    string          `json:"correlation_id"`
	Actor            string          `json:"actor"`
	Source           string          `json:"source"`
	Payload          json.RawMessage `json:"payload"`
}

// Topic is the outbox routing key for the envelope.
func (e EventEnvelope) Topic() string {
	return "events." + e.TenantID + "." + e.EventType
}

type OutboxEvent struct {
	ID            int64
	EventID       string
	TenantID      string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
