package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Violation is one failed keyword, located in the document and the schema.
type Violation struct {
	InstanceLocation string `json:"instance_location"`
	KeywordLocation  string `json:"keyword_location"`
	Message          string `json:"message"`
}

func (v Violation) String() string {
	loc := v.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + v.Message
}

// ErrSchemaViolation is returned when a document does not conform to the
// collection's JSON schema.
type ErrSchemaViolation struct {
	Violations []Violation
}

func (e *ErrSchemaViolation) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("schema validation failed: %s", strings.Join(msgs, "; "))
}

// CollectionSchema holds the JSON Schema document configured for a
// collection. Version grows by one on every upsert.
type CollectionSchema struct {
	TenantID   string
	Collection string
	Schema     json.RawMessage
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SchemaRevision is one entry of a collection's schema history.
type SchemaRevision struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	TenantID   string          `json:"tenant_id"`
	Collection string          `json:"collection"`
	Version    int64           `json:"version"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor"`
	BeforeJSON json.RawMessage `json:"before,omitempty"`
	AfterJSON  json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type HistoryFilter struct {
	TenantID   string
	Collection string
	AfterID    int64
	Limit      int
}
