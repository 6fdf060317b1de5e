package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/momentschema/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

type schemaEventModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID    string    `gorm:"column:event_id;not null"`
	TenantID   string    `gorm:"column:tenant_id;not null"`
	Collection string    `gorm:"column:collection;not null"`
	Version    int64     `gorm:"column:version;not null"`
	Action     string    `gorm:"column:action;not null"`
	Actor      string    `gorm:"column:actor;not null"`
	Source     string    `gorm:"column:source;not null"`
	RequestID  string    `gorm:"column:request_id;not null"`
	BeforeJSON *string   `gorm:"column:before_json"`
	AfterJSON  *string   `gorm:"column:after_json"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null"`
}

func (schemaEventModel) TableName() string {
	return "schema_events"
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

type SchemaHistoryRepository struct {
	db *gormsqlite.DB
}

func NewSchemaHistoryRepository(db *gormsqlite.DB) *SchemaHistoryRepository {
	return &SchemaHistoryRepository{db: db}
}

func (r *SchemaHistoryRepository) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.SchemaRevision, error) {
	var rows []schemaEventModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&schemaEventModel{}).
			Where("tenant_id = ? AND collection = ?", filter.TenantID, filter.Collection)
		if filter.AfterID > 0 {
			query = query.Where("id < ?", filter.AfterID)
		}
		return query.Order("id DESC").Limit(filter.Limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list schema history: %w", err)
	}

	result := make([]domain.SchemaRevision, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.SchemaRevision{
			ID:         row.ID,
			EventID:    row.EventID,
			TenantID:   row.TenantID,
			Collection: row.Collection,
			Version:    row.Version,
			Action:     row.Action,
			Actor:      row.Actor,
			BeforeJSON: rawOrNil(row.BeforeJSON),
			AfterJSON:  rawOrNil(row.AfterJSON),
			OccurredAt: row.OccurredAt,
		})
	}
	return result, nil
}

type OutboxRepository struct {
	db  *gormsqlite.DB
	now func() time.Time
}

func NewOutboxRepository(db *gormsqlite.DB) *OutboxRepository {
	return &OutboxRepository{db: db, now: time.Now}
}

func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []outboxEventModel
	now := r.now().UTC()
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("status = ? AND next_attempt_at <= ?", domain.OutboxPending, now).
			Order("id ASC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox: %w", err)
	}

	result := make([]domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.OutboxEvent{
			ID:            row.ID,
			EventID:       row.EventID,
			TenantID:      row.TenantID,
			Topic:         row.Topic,
			PayloadJSON:   json.RawMessage(row.PayloadJSON),
			Status:        row.Status,
			Attempts:      row.Attempts,
			NextAttemptAt: row.NextAttemptAt,
			LastError:     row.LastError,
			CreatedAt:     row.CreatedAt,
			DispatchedAt:  row.DispatchedAt,
		})
	}
	return result, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, id int64) error {
	now := r.now().UTC()
	return r.update(ctx, id, "mark outbox dispatched", map[string]any{
		"status":        domain.OutboxDispatched,
		"dispatched_at": &now,
		"last_error":    "",
	})
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error {
	parsed, err := time.Parse(time.RFC3339Nano, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("parse next attempt: %w", err)
	}
	return r.update(ctx, id, "mark outbox failed", map[string]any{
		"attempts":        attempts,
		"next_attempt_at": parsed.UTC(),
		"last_error":      errMsg,
	})
}

func (r *OutboxRepository) MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error {
	return r.update(ctx, id, "mark outbox dead", map[string]any{
		"status":     domain.OutboxDead,
		"attempts":   attempts,
		"last_error": errMsg,
	})
}

func (r *OutboxRepository) update(ctx context.Context, id int64, op string, fields map[string]any) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&outboxEventModel{}).Where("id = ?", id).Updates(fields).Error
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func newEnvelope(eventType, tenantID, aggregateType, aggregateID string, version int64, meta domain.MutationMetadata, payload any) domain.EventEnvelope {
	return domain.EventEnvelope{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		SchemaVersion:    domain.CurrentEventSchemaVersion,
		TenantID:         tenantID,
		AggregateType:    aggregateType,
		AggregateID:      aggregateID,
		AggregateVersion: version,
		OccurredAt:       meta.OccurredAt.UTC(),
		CorrelationID:    meta.CorrelationID,
		Actor:            meta.Actor,
		Source:           meta.Source,
		Payload:          mustJSON(payload),
	}
}

// enqueueOutbox stores envelope for later delivery. It must run inside the
// transaction that made the change the event describes.
func enqueueOutbox(tx *gorm.DB, envelope domain.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		TenantID:      envelope.TenantID,
		Topic:         envelope.Topic(),
		PayloadJSON:   string(payload),
		Status:        domain.OutboxPending,
		NextAttemptAt: envelope.OccurredAt,
		CreatedAt:     envelope.OccurredAt,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func rawOrNil(s *string) json.RawMessage {
	if s == nil || *s == "" {
		return nil
	}
	return json.RawMessage(*s)
}
