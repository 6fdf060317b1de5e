package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/momentschema/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

type collectionSchemaModel struct {
	TenantID   string    `gorm:"column:tenant_id;primaryKey"`
	Collection string    `gorm:"column:collection;primaryKey"`
	SchemaJSON string    `gorm:"column:schema_json;not null"`
	Version    int64     `gorm:"column:version;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (collectionSchemaModel) TableName() string {
	return "collection_schemas"
}

const schemaAggregate = "collection_schema"

type SchemaRepository struct {
	db *gormsqlite.DB
}

func NewSchemaRepository(db *gormsqlite.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

// Upsert stores the schema under the next version and records the change in
// the history and the outbox.
func (r *SchemaRepository) Upsert(ctx context.Context, schema domain.CollectionSchema, meta domain.MutationMetadata) (domain.CollectionSchema, error) {
	meta = meta.Normalize()
	now := meta.OccurredAt.UTC()

	var out domain.CollectionSchema
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		before, err := findSchema(tx.DB, schema.TenantID, schema.Collection)
		if err != nil {
			return err
		}

		model := collectionSchemaModel{
			TenantID:   schema.TenantID,
			Collection: schema.Collection,
			SchemaJSON: string(schema.Schema),
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if before != nil {
			model.Version = before.Version + 1
			model.CreatedAt = before.CreatedAt
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "collection"}},
			DoUpdates: clause.AssignmentColumns([]string{"schema_json", "version", "updated_at"}),
		}).Create(&model).Error
		if err != nil {
			return fmt.Errorf("upsert schema: %w", err)
		}

		var beforeJSON *string
		if before != nil {
			beforeJSON = &before.SchemaJSON
		}
		envelope := newEnvelope(domain.EventSchemaUpserted, schema.TenantID, schemaAggregate, schema.Collection, model.Version, meta, domain.SchemaChange{
			Collection: schema.Collection,
			Version:    model.Version,
			Schema:     json.RawMessage(model.SchemaJSON),
		})
		if err := recordSchemaEvent(tx.DB, envelope, meta, beforeJSON, &model.SchemaJSON); err != nil {
			return err
		}

		out = toSchemaDomain(model)
		return nil
	})
	if err != nil {
		return domain.CollectionSchema{}, err
	}
	return out, nil
}

func (r *SchemaRepository) Get(ctx context.Context, tenantID, collection string) (domain.CollectionSchema, error) {
	var model *collectionSchemaModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		var err error
		model, err = findSchema(tx.DB, tenantID, collection)
		return err
	})
	if err != nil {
		return domain.CollectionSchema{}, err
	}
	if model == nil {
		return domain.CollectionSchema{}, domain.ErrNotFound
	}
	return toSchemaDomain(*model), nil
}

func (r *SchemaRepository) Delete(ctx context.Context, tenantID, collection string, meta domain.MutationMetadata) (bool, error) {
	meta = meta.Normalize()
	deleted := false
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		before, err := findSchema(tx.DB, tenantID, collection)
		if err != nil || before == nil {
			return err
		}
		res := tx.Where("tenant_id = ? AND collection = ?", tenantID, collection).Delete(&collectionSchemaModel{})
		if res.Error != nil {
			return fmt.Errorf("delete schema: %w", res.Error)
		}
		deleted = res.RowsAffected > 0

		envelope := newEnvelope(domain.EventSchemaDeleted, tenantID, schemaAggregate, collection, before.Version, meta, domain.SchemaChange{
			Collection: collection,
			Version:    before.Version,
		})
		return recordSchemaEvent(tx.DB, envelope, meta, &before.SchemaJSON, nil)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func findSchema(tx *gorm.DB, tenantID, collection string) (*collectionSchemaModel, error) {
	var model collectionSchemaModel
	err := tx.Where("tenant_id = ? AND collection = ?", tenantID, collection).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	return &model, nil
}

func recordSchemaEvent(tx *gorm.DB, envelope domain.EventEnvelope, meta domain.MutationMetadata, before, after *string) error {
	event := schemaEventModel{
		EventID:    envelope.EventID,
		TenantID:   envelope.TenantID,
		Collection: envelope.AggregateID,
		Version:    envelope.AggregateVersion,
		Action:     envelope.EventType,
		Actor:      meta.Actor,
		Source:     meta.Source,
		RequestID:  meta.RequestID,
		BeforeJSON: before,
		AfterJSON:  after,
		OccurredAt: envelope.OccurredAt,
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("insert schema event: %w", err)
	}
	return enqueueOutbox(tx, envelope)
}

func toSchemaDomain(model collectionSchemaModel) domain.CollectionSchema {
	return domain.CollectionSchema{
		TenantID:   model.TenantID,
		Collection: model.Collection,
		Schema:     json.RawMessage(model.SchemaJSON),
		Version:    model.Version,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}
