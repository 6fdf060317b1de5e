package ports

import (
	"context"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

// ReportRepository stores validation reports. Creating a report for an
// invalid document also enqueues a document.rejected event.
type ReportRepository interface {
	Create(ctx context.Context, report domain.ValidationReport, meta domain.MutationMetadata) (domain.ValidationReport, error)
	Get(ctx context.Context, tenantID, collection, id string) (domain.ValidationReport, error)
	List(ctx context.Context, tenantID, collection string, filter domain.ReportFilter) ([]domain.ValidationReport, error)
}
