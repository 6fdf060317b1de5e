package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
	"github.com/atvirokodosprendimai/momentschema/internal/core/usecase"
	"github.com/atvirokodosprendimai/momentschema/internal/moment"
)

const testAPIKey = "test-api-key"

type stubAPIKeyRepo struct{}

func (s *stubAPIKeyRepo) FindByTokenHash(_ context.Context, hash string) (domain.APIKey, error) {
	if hash != usecase.HashToken(testAPIKey) {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return domain.APIKey{TokenHash: hash, TenantID: "tenant-a", Name: "test-client", Active: true, CreatedAt: time.Now().UTC()}, nil
}
func (s *stubAPIKeyRepo) Upsert(context.Context, domain.APIKey) error { return nil }

// stubSchemaRepo is an in-memory CollectionSchemaRepository that also keeps
// the revisions it would have written.
type stubSchemaRepo struct {
	schemas   map[string]domain.CollectionSchema
	revisions []domain.SchemaRevision
	metas     []domain.MutationMetadata
	getErr    error
}

func newStubSchemaRepo() *stubSchemaRepo {
	return &stubSchemaRepo{schemas: make(map[string]domain.CollectionSchema)}
}

func (r *stubSchemaRepo) Upsert(_ context.Context, schema domain.CollectionSchema, meta domain.MutationMetadata) (domain.CollectionSchema, error) {
	key := schema.TenantID + "/" + schema.Collection
	now := time.Now().UTC()
	prev, ok := r.schemas[key]
	schema.Version = prev.Version + 1
	schema.CreatedAt = now
	if ok {
		schema.CreatedAt = prev.CreatedAt
	}
	schema.UpdatedAt = now
	r.schemas[key] = schema
	r.metas = append(r.metas, meta)
	r.revisions = append(r.revisions, domain.SchemaRevision{
		ID:         int64(len(r.revisions) + 1),
		TenantID:   schema.TenantID,
		Collection: schema.Collection,
		Version:    schema.Version,
		Action:     domain.EventSchemaUpserted,
		Actor:      meta.Actor,
		AfterJSON:  schema.Schema,
		OccurredAt: now,
	})
	return schema, nil
}

func (r *stubSchemaRepo) Get(_ context.Context, tenantID, collection string) (domain.CollectionSchema, error) {
	if r.getErr != nil {
		return domain.CollectionSchema{}, r.getErr
	}
	s, ok := r.schemas[tenantID+"/"+collection]
	if !ok {
		return domain.CollectionSchema{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *stubSchemaRepo) Delete(_ context.Context, tenantID, collection string, meta domain.MutationMetadata) (bool, error) {
	key := tenantID + "/" + collection
	if _, ok := r.schemas[key]; !ok {
		return false, nil
	}
	delete(r.schemas, key)
	r.metas = append(r.metas, meta)
	return true, nil
}

func (r *stubSchemaRepo) List(_ context.Context, filter domain.HistoryFilter) ([]domain.SchemaRevision, error) {
	var out []domain.SchemaRevision
	for i := len(r.revisions) - 1; i >= 0; i-- {
		rev := r.revisions[i]
		if rev.TenantID != filter.TenantID || rev.Collection != filter.Collection {
			continue
		}
		if filter.AfterID > 0 && rev.ID >= filter.AfterID {
			continue
		}
		out = append(out, rev)
		if len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

type stubReportRepo struct {
	reports []domain.ValidationReport
	filters []domain.ReportFilter
}

func (r *stubReportRepo) Create(_ context.Context, report domain.ValidationReport, _ domain.MutationMetadata) (domain.ValidationReport, error) {
	report.Seq = int64(len(r.reports) + 1)
	r.reports = append(r.reports, report)
	return report, nil
}

func (r *stubReportRepo) Get(_ context.Context, tenantID, collection, id string) (domain.ValidationReport, error) {
	for _, rep := range r.reports {
		if rep.TenantID == tenantID && rep.Collection == collection && rep.ID == id {
			return rep, nil
		}
	}
	return domain.ValidationReport{}, domain.ErrNotFound
}

func (r *stubReportRepo) List(_ context.Context, tenantID, collection string, filter domain.ReportFilter) ([]domain.ValidationReport, error) {
	r.filters = append(r.filters, filter)
	var out []domain.ValidationReport
	for i := len(r.reports) - 1; i >= 0; i-- {
		rep := r.reports[i]
		if rep.TenantID != tenantID || rep.Collection != collection {
			continue
		}
		if filter.Valid != nil && rep.Valid != *filter.Valid {
			continue
		}
		out = append(out, rep)
	}
	return out, nil
}

type fixture struct {
	router  http.Handler
	schemas *stubSchemaRepo
	reports *stubReportRepo
}

func newFixture() fixture {
	schemaRepo := newStubSchemaRepo()
	reportRepo := &stubReportRepo{}
	lib := moment.NewLibrary(
		moment.WithLocation(time.UTC),
		moment.WithClock(func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }),
	)
	schemaSvc := usecase.NewSchemaService(schemaRepo, lib)
	h := NewHandler(
		schemaSvc,
		usecase.NewValidationService(schemaSvc, reportRepo),
		usecase.NewHistoryService(schemaRepo),
		usecase.NewAuthService(&stubAPIKeyRepo{}),
	)
	return fixture{router: h.Router(), schemas: schemaRepo, reports: reportRepo}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	withAuth(req)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func withAuth(req *http.Request) { req.Header.Set("X-API-Key", testAPIKey) }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestProtectedRouteWithoutAuth(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/v1/collections/bookings/schema", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectedRouteWithWrongKey(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/v1/collections/bookings/schema", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBearerTokenAccepted(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/v1/moment/catalog", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCatalogListsTestsAndManipulations(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/v1/moment/catalog", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Tests         []string `json:"tests"`
		Manipulations []string `json:"manipulations"`
		Timezone      string   `json:"timezone"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Timezone != "UTC" {
		t.Fatalf("unexpected timezone: %s", payload.Timezone)
	}
	if !contains(payload.Tests, "isAfter") || !contains(payload.Manipulations, "startOf") {
		t.Fatalf("catalog incomplete: %+v", payload)
	}
}

func TestPutSchemaRejectsTrailingJSON(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPut, "/v1/collections/bookings/schema", `{"type":"object"} {}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReportsBadQueryReturnsBadRequest(t *testing.T) {
	f := newFixture()
	for _, path := range []string{
		"/v1/collections/bookings/reports?limit=bad",
		"/v1/collections/bookings/reports?after=x",
		"/v1/collections/bookings/reports?valid=maybe",
		"/v1/collections/bookings/reports?after=-4",
		"/v1/collections/bookings/schema/history?after=-1",
	} {
		if rec := f.do(t, http.MethodGet, path, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestInvalidCollectionNameReturnsBadRequest(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/v1/collections/bad%20name/schema", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRepositoryFailureReturns500(t *testing.T) {
	f := newFixture()
	f.schemas.getErr = errors.New("disk gone")
	rec := f.do(t, http.MethodGet, "/v1/collections/bookings/schema", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk gone") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestWriteJSONEncodeErrorHandled(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"bad": func() {}})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal server error") {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestHandleDomainErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrInvalidTenant, http.StatusBadRequest},
		{domain.ErrInvalidCollection, http.StatusBadRequest},
		{domain.ErrInvalidFilter, http.StatusBadRequest},
		{domain.ErrInvalidDocument, http.StatusBadRequest},
		{domain.ErrInvalidSchema, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleDomainError(rec, tc.err)
		if rec.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
		if decodeBody(t, rec)["error"] == "" {
			t.Errorf("%v: expected error message", tc.err)
		}
	}
}

func TestHealthAndOpenAPIAreOpen(t *testing.T) {
	f := newFixture()
	for _, path := range []string{"/healthz", "/openapi.json"} {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
