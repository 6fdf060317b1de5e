package ports

import (
	"context"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

// CollectionSchemaRepository stores schemas. Upsert and Delete record a
// history entry and an outbox event in the same transaction.
type CollectionSchemaRepository interface {
	Upsert(ctx context.Context, schema domain.CollectionSchema, meta domain.MutationMetadata) (domain.CollectionSchema, error)
	Get(ctx context.Context, tenantID, collection string) (domain.CollectionSchema, error)
	Delete(ctx context.Context, tenantID, collection string, meta domain.MutationMetadata) (bool, error)
}

type SchemaHistoryRepository interface {
	List(ctx context.Context, filter domain.HistoryFilter) ([]domain.SchemaRevision, error)
}
