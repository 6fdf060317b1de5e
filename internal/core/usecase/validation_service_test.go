package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

type stubReportRepo struct {
	created []domain.ValidationReport
	filters []domain.ReportFilter
	err     error
}

func (r *stubReportRepo) Create(_ context.Context, report domain.ValidationReport, _ domain.MutationMetadata) (domain.ValidationReport, error) {
	if r.err != nil {
		return domain.ValidationReport{}, r.err
	}
	report.Seq = int64(len(r.created) + 1)
	r.created = append(r.created, report)
	return report, nil
}

func (r *stubReportRepo) Get(_ context.Context, tenantID, collection, id string) (domain.ValidationReport, error) {
	for _, rep := range r.created {
		if rep.TenantID == tenantID && rep.Collection == collection && rep.ID == id {
			return rep, nil
		}
	}
	return domain.ValidationReport{}, domain.ErrNotFound
}

func (r *stubReportRepo) List(_ context.Context, _, _ string, filter domain.ReportFilter) ([]domain.ValidationReport, error) {
	r.filters = append(r.filters, filter)
	return r.created, nil
}

func newValidationFixture(t *testing.T) (*ValidationService, *stubReportRepo) {
	t.Helper()
	schemas := NewSchemaService(newStubSchemaRepo(), testLibrary())
	if _, err := schemas.Upsert(context.Background(), "tenant-a", "bookings", json.RawMessage(bookingSchema), domain.MutationMetadata{}); err != nil {
		t.Fatalf("upsert schema: %v", err)
	}
	reports := &stubReportRepo{}
	fixed := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	return NewValidationService(schemas, reports, WithValidationClock(func() time.Time { return fixed })), reports
}

func TestValidationServiceAcceptsValidDocument(t *testing.T) {
	svc, reports := newValidationFixture(t)
	doc := json.RawMessage(`{"from":"2024-03-01","to":"2024-03-05"}`)

	report, err := svc.Validate(context.Background(), "tenant-a", "bookings", doc, domain.MutationMetadata{Actor: "bob"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.Valid || report.ID == "" || report.SchemaVersion != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Actor != "bob" || report.DocumentHash != documentHash(doc) {
		t.Fatalf("unexpected report metadata: %+v", report)
	}
	if len(reports.created) != 1 {
		t.Fatalf("expected one stored report, got %d", len(reports.created))
	}
}

func TestValidationServiceRejectsAndStoresReport(t *testing.T) {
	svc, reports := newValidationFixture(t)

	report, err := svc.Validate(context.Background(), "tenant-a", "bookings", json.RawMessage(`{"from":"2024-03-05","to":"March 1"}`), domain.MutationMetadata{})
	var violation *domain.ErrSchemaViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
	if report.Valid || len(report.Violations) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Violations[0].Message != `should be a valid date with format ["YYYY-MM-DD"]` {
		t.Fatalf("unexpected message: %s", report.Violations[0].Message)
	}
	if len(reports.created) != 1 || reports.created[0].Valid {
		t.Fatalf("rejected report not stored: %+v", reports.created)
	}
}

func TestValidationServiceMissingSchema(t *testing.T) {
	svc, reports := newValidationFixture(t)
	_, err := svc.Validate(context.Background(), "tenant-a", "invoices", json.RawMessage(`{}`), domain.MutationMetadata{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(reports.created) != 0 {
		t.Fatal("no report expected without a schema")
	}
}

func TestValidationServiceRejectsMalformedDocument(t *testing.T) {
	svc, _ := newValidationFixture(t)
	_, err := svc.Validate(context.Background(), "tenant-a", "bookings", json.RawMessage(`{"from":`), domain.MutationMetadata{})
	if !errors.Is(err, domain.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestValidationServiceReportStoreFailure(t *testing.T) {
	svc, reports := newValidationFixture(t)
	reports.err = errors.New("disk full")
	_, err := svc.Validate(context.Background(), "tenant-a", "bookings", json.RawMessage(`{"from":"2024-03-01","to":"2024-03-05"}`), domain.MutationMetadata{})
	if err == nil || errors.As(err, new(*domain.ErrSchemaViolation)) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestValidationServiceReportsClampsLimit(t *testing.T) {
	svc, reports := newValidationFixture(t)
	ctx := context.Background()

	if _, err := svc.Reports(ctx, "tenant-a", "bookings", domain.ReportFilter{}); err != nil {
		t.Fatalf("reports: %v", err)
	}
	if _, err := svc.Reports(ctx, "tenant-a", "bookings", domain.ReportFilter{Limit: 10000}); err != nil {
		t.Fatalf("reports: %v", err)
	}
	if reports.filters[0].Limit != defaultReportLimit || reports.filters[1].Limit != maxReportLimit {
		t.Fatalf("unexpected limits: %+v", reports.filters)
	}
	if _, err := svc.Reports(ctx, "tenant-a", "bookings", domain.ReportFilter{AfterSeq: -1}); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestValidationServiceReportLookup(t *testing.T) {
	svc, _ := newValidationFixture(t)
	ctx := context.Background()
	report, err := svc.Validate(ctx, "tenant-a", "bookings", json.RawMessage(`{"from":"2024-03-01","to":"2024-03-05"}`), domain.MutationMetadata{})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	got, err := svc.Report(ctx, "tenant-a", "bookings", report.ID)
	if err != nil || got.ID != report.ID {
		t.Fatalf("report lookup: %+v %v", got, err)
	}
	if _, err := svc.Report(ctx, "tenant-a", "bookings", "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}
}
