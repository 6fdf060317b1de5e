package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
	"github.com/atvirokodosprendimai/momentschema/internal/core/ports"
)

const (
	defaultReportLimit = 50
	maxReportLimit     = 500
)

// ValidationService checks documents against collection schemas and keeps a
// report of every check.
type ValidationService struct {
	schemas *SchemaService
	reports ports.ReportRepository
	now     func() time.Time
}

type ValidationOption func(*ValidationService)

func WithValidationClock(now func() time.Time) ValidationOption {
	return func(s *ValidationService) {
		s.now = now
	}
}

func NewValidationService(schemas *SchemaService, reports ports.ReportRepository, opts ...ValidationOption) *ValidationService {
	s := &ValidationService{schemas: schemas, reports: reports, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks data against the collection schema and stores a report.
// The returned error is *domain.ErrSchemaViolation when the document was
// rejected; the report is returned either way once it was stored.
func (s *ValidationService) Validate(ctx context.Context, tenantID, collection string, data json.RawMessage, meta domain.MutationMetadata) (domain.ValidationReport, error) {
	if err := validateScope(tenantID, collection); err != nil {
		return domain.ValidationReport{}, err
	}
	if !json.Valid(data) {
		return domain.ValidationReport{}, domain.ErrInvalidDocument
	}

	sch, version, err := s.schemas.Compiled(ctx, tenantID, collection)
	if err != nil {
		return domain.ValidationReport{}, err
	}

	checkErr := ValidateDocument(sch, data)
	var violation *domain.ErrSchemaViolation
	if checkErr != nil && !errors.As(checkErr, &violation) {
		return domain.ValidationReport{}, checkErr
	}

	meta = meta.Normalize()
	report := domain.ValidationReport{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Collection:    collection,
		SchemaVersion: version,
		DocumentHash:  documentHash(data),
		Valid:         violation == nil,
		Actor:         meta.Actor,
		CreatedAt:     s.now().UTC(),
	}
	if violation != nil {
		report.Violations = violation.Violations
	}

	saved, err := s.reports.Create(ctx, report, meta)
	if err != nil {
		return domain.ValidationReport{}, fmt.Errorf("store report: %w", err)
	}
	if violation != nil {
		return saved, violation
	}
	return saved, nil
}

func (s *ValidationService) Report(ctx context.Context, tenantID, collection, id string) (domain.ValidationReport, error) {
	if err := validateScope(tenantID, collection); err != nil {
		return domain.ValidationReport{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.ValidationReport{}, domain.ErrNotFound
	}
	return s.reports.Get(ctx, tenantID, collection, id)
}

func (s *ValidationService) Reports(ctx context.Context, tenantID, collection string, filter domain.ReportFilter) ([]domain.ValidationReport, error) {
	if err := validateScope(tenantID, collection); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit == 0 {
		filter.Limit = defaultReportLimit
	}
	if filter.Limit > maxReportLimit {
		filter.Limit = maxReportLimit
	}
	return s.reports.List(ctx, tenantID, collection, filter)
}

func documentHash(data json.RawMessage) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}
