package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
	"github.com/atvirokodosprendimai/momentschema/internal/moment"
)

// stubSchemaRepo is an in-memory CollectionSchemaRepository for tests.
type stubSchemaRepo struct {
	schemas map[string]domain.CollectionSchema
	gets    int
	metas   []domain.MutationMetadata
}

func newStubSchemaRepo() *stubSchemaRepo {
	return &stubSchemaRepo{schemas: make(map[string]domain.CollectionSchema)}
}

func (r *stubSchemaRepo) Upsert(_ context.Context, schema domain.CollectionSchema, meta domain.MutationMetadata) (domain.CollectionSchema, error) {
	key := schema.TenantID + "/" + schema.Collection
	schema.Version = r.schemas[key].Version + 1
	r.schemas[key] = schema
	r.metas = append(r.metas, meta)
	return schema, nil
}

func (r *stubSchemaRepo) Get(_ context.Context, tenantID, collection string) (domain.CollectionSchema, error) {
	r.gets++
	s, ok := r.schemas[tenantID+"/"+collection]
	if !ok {
		return domain.CollectionSchema{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *stubSchemaRepo) Delete(_ context.Context, tenantID, collection string, meta domain.MutationMetadata) (bool, error) {
	key := tenantID + "/" + collection
	_, ok := r.schemas[key]
	if !ok {
		return false, nil
	}
	delete(r.schemas, key)
	r.metas = append(r.metas, meta)
	return true, nil
}

func testLibrary() *moment.Library {
	return moment.NewLibrary(
		moment.WithLocation(time.UTC),
		moment.WithClock(func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }),
	)
}

const bookingSchema = `{
	"type": "object",
	"required": ["from", "to"],
	"properties": {
		"from": {"type": "string", "moment": {"format": ["YYYY-MM-DD"]}},
		"to": {
			"type": "string",
			"moment": {
				"format": ["YYYY-MM-DD"],
				"validate": {"test": "isAfter", "value": {"$data": "1/from"}}
			}
		}
	}
}`

func TestSchemaServiceUpsertAndGet(t *testing.T) {
	repo := newStubSchemaRepo()
	svc := NewSchemaService(repo, testLibrary())

	cs, err := svc.Upsert(context.Background(), "tenant-a", "bookings", json.RawMessage(bookingSchema), domain.MutationMetadata{Actor: "alice"})
	if err != nil {
		t.Fatalf("upsert schema: %v", err)
	}
	if cs.Collection != "bookings" || cs.Version != 1 {
		t.Fatalf("unexpected schema: %+v", cs)
	}
	if repo.metas[0].Actor != "alice" {
		t.Fatalf("metadata not passed to repository: %+v", repo.metas[0])
	}

	got, err := svc.Get(context.Background(), "tenant-a", "bookings")
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if string(got.Schema) != bookingSchema {
		t.Fatalf("unexpected schema: %s", got.Schema)
	}
}

func TestSchemaServiceUpsertRejectsInvalidJSON(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo(), testLibrary())
	_, err := svc.Upsert(context.Background(), "tenant-a", "bookings", json.RawMessage(`not json`), domain.MutationMetadata{})
	if !errors.Is(err, domain.ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestSchemaServiceUpsertRejectsInvalidSchemaDocument(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo(), testLibrary())
	_, err := svc.Upsert(context.Background(), "tenant-a", "bookings", json.RawMessage(`{"type":123}`), domain.MutationMetadata{})
	if !errors.Is(err, domain.ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestSchemaServiceUpsertRejectsBadMomentRule(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo(), testLibrary())
	schema := `{"properties": {"at": {"moment": {"validate": {"test": "isWeekend", "value": {"now": true}}}}}}`
	_, err := svc.Upsert(context.Background(), "tenant-a", "bookings", json.RawMessage(schema), domain.MutationMetadata{})
	if !errors.Is(err, domain.ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
	if !errors.Is(err, moment.ErrUnknownTest) {
		t.Fatalf("expected the moment error to be kept, got %v", err)
	}
}

func TestSchemaServiceRejectsBadNames(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo(), testLibrary())
	if _, err := svc.Get(context.Background(), "", "bookings"); !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "tenant-a", "a/b"); !errors.Is(err, domain.ErrInvalidCollection) {
		t.Fatalf("expected ErrInvalidCollection, got %v", err)
	}
}

func TestSchemaServiceGetMissingReturnsNotFound(t *testing.T) {
	svc := NewSchemaService(newStubSchemaRepo(), testLibrary())
	_, err := svc.Get(context.Background(), "tenant-a", "bookings")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSchemaServiceDeleteDropsCompiledSchema(t *testing.T) {
	repo := newStubSchemaRepo()
	svc := NewSchemaService(repo, testLibrary())
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "tenant-a", "orders", json.RawMessage(`{"type":"object"}`), domain.MutationMetadata{}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, _, err := svc.Compiled(ctx, "tenant-a", "orders"); err != nil {
		t.Fatalf("compiled: %v", err)
	}
	deleted, err := svc.Delete(ctx, "tenant-a", "orders", domain.MutationMetadata{})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}
	if _, _, err := svc.Compiled(ctx, "tenant-a", "orders"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestSchemaServiceCachesCompiledSchema(t *testing.T) {
	repo := newStubSchemaRepo()
	svc := NewSchemaService(repo, testLibrary())
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "tenant-a", "bookings", json.RawMessage(bookingSchema), domain.MutationMetadata{}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, version, err := svc.Compiled(ctx, "tenant-a", "bookings"); err != nil || version != 1 {
			t.Fatalf("compiled: version=%d err=%v", version, err)
		}
	}
	if repo.gets != 1 {
		t.Fatalf("expected one repository read, got %d", repo.gets)
	}

	if _, err := svc.Upsert(ctx, "tenant-a", "bookings", json.RawMessage(`{"type":"object"}`), domain.MutationMetadata{}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if _, version, _ := svc.Compiled(ctx, "tenant-a", "bookings"); version != 2 {
		t.Fatalf("expected the new schema after upsert, got version %d", version)
	}
}

func TestValidateDocumentReportsMomentViolations(t *testing.T) {
	sch, err := CompileSchema(testLibrary(), json.RawMessage(bookingSchema))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if err := ValidateDocument(sch, json.RawMessage(`{"from":"2024-03-01","to":"2024-03-05"}`)); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}

	err = ValidateDocument(sch, json.RawMessage(`{"from":"2024-03-05","to":"2024-03-01"}`))
	var violation *domain.ErrSchemaViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
	if len(violation.Violations) != 1 {
		t.Fatalf("expected one violation, got %+v", violation.Violations)
	}
	v := violation.Violations[0]
	if v.InstanceLocation != "/to" || v.KeywordLocation != "/properties/to/moment" {
		t.Fatalf("unexpected locations: %+v", v)
	}
	want := `"isAfter" validation failed for value(s): 2024-03-01 (2024-03-05T00:00:00.000Z)`
	if v.Message != want {
		t.Fatalf("unexpected message:\n got %s\nwant %s", v.Message, want)
	}
}

func TestValidateDocumentRejectsMalformedJSON(t *testing.T) {
	sch, err := CompileSchema(testLibrary(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, doc := range []string{`{`, `{} {}`} {
		if err := ValidateDocument(sch, json.RawMessage(doc)); !errors.Is(err, domain.ErrInvalidDocument) {
			t.Errorf("%s: expected ErrInvalidDocument, got %v", doc, err)
		}
	}
}
