package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
	"github.com/atvirokodosprendimai/momentschema/internal/core/usecase"
	"github.com/atvirokodosprendimai/momentschema/internal/moment"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	tenantIDCtxKey  ctxKey = "tenant_id"
	apiActorCtxKey  ctxKey = "api_actor"
	maxJSONBodySize        = 1 << 20
)

type Handler struct {
	schemas     *usecase.SchemaService
	validations *usecase.ValidationService
	history     *usecase.HistoryService
	authService *usecase.AuthService
}

func NewHandler(schemas *usecase.SchemaService, validations *usecase.ValidationService, history *usecase.HistoryService, authService *usecase.AuthService) *Handler {
	return &Handler{schemas: schemas, validations: validations, history: history, authService: authService}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Get("/v1/moment/catalog", h.catalog)

		pr.Route("/v1/collections/{collection}", func(cr chi.Router) {
			cr.Put("/schema", h.putSchema)
			cr.Get("/schema", h.getSchema)
			cr.Delete("/schema", h.deleteSchema)
			cr.Get("/schema/history", h.schemaHistory)
			cr.Post("/validate", h.validate)
			cr.Get("/reports", h.listReports)
			cr.Get("/reports/{id}", h.getReport)
		})
	})

	return r
}

type schemaResponse struct {
	Collection string          `json:"collection"`
	Version    int64           `json:"version"`
	Schema     json.RawMessage `json:"schema"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type revisionResponse struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	Version    int64           `json:"version"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt string          `json:"occurred_at"`
}

type reportResponse struct {
	Seq           int64              `json:"seq"`
	ID            string             `json:"id"`
	Collection    string             `json:"collection"`
	SchemaVersion int64              `json:"schema_version"`
	DocumentHash  string             `json:"document_hash"`
	Valid         bool               `json:"valid"`
	Violations    []domain.Violation `json:"violations"`
	Actor         string             `json:"actor"`
	CreatedAt     string             `json:"created_at"`
}

func (h *Handler) putSchema(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	cs, err := h.schemas.Upsert(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "collection"), body, mutationMetadata(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSchemaResponse(cs))
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	cs, err := h.schemas.Get(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "collection"))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSchemaResponse(cs))
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.schemas.Delete(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "collection"), mutationMetadata(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) schemaHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntParam(w, r, "limit", "limit must be integer")
	if !ok {
		return
	}
	after, ok := parseIntParam(w, r, "after", "after must be integer")
	if !ok {
		return
	}

	revs, err := h.history.List(r.Context(), domain.HistoryFilter{
		TenantID:   tenantIDFromContext(r.Context()),
		Collection: chi.URLParam(r, "collection"),
		AfterID:    int64(after),
		Limit:      limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]revisionResponse, 0, len(revs))
	for _, rev := range revs {
		result = append(result, revisionResponse{
			ID:         rev.ID,
			EventID:    rev.EventID,
			Version:    rev.Version,
			Action:     rev.Action,
			Actor:      rev.Actor,
			Before:     rev.BeforeJSON,
			After:      rev.AfterJSON,
			OccurredAt: rev.OccurredAt.UTC().Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	report, err := h.validations.Validate(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "collection"), body, mutationMetadata(r))
	var violation *domain.ErrSchemaViolation
	if errors.As(err, &violation) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"valid":     false,
			"report_id": report.ID,
			"error":     "schema validation failed",
			"errors":    violation.Violations,
		})
		return
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "report_id": report.ID})
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntParam(w, r, "limit", "limit must be integer")
	if !ok {
		return
	}
	after, ok := parseIntParam(w, r, "after", "after must be integer")
	if !ok {
		return
	}
	filter := domain.ReportFilter{AfterSeq: int64(after), Limit: limit}
	if raw := r.URL.Query().Get("valid"); raw != "" {
		valid, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "valid must be boolean")
			return
		}
		filter.Valid = &valid
	}

	reports, err := h.validations.Reports(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "collection"), filter)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]reportResponse, 0, len(reports))
	for _, rep := range reports {
		result = append(result, toReportResponse(rep))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.validations.Report(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(report))
}

func (h *Handler) catalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":       moment.CatalogVersion,
		"tests":         moment.Comparisons(),
		"manipulations": moment.Manipulations(),
		"timezone":      h.schemas.Library().Location().String(),
	})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), tenantIDCtxKey, apiKey.TenantID)
		ctx = context.WithValue(ctx, apiActorCtxKey, apiKey.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func toSchemaResponse(cs domain.CollectionSchema) schemaResponse {
	return schemaResponse{
		Collection: cs.Collection,
		Version:    cs.Version,
		Schema:     cs.Schema,
		CreatedAt:  cs.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:  cs.UpdatedAt.UTC().Format(timeFormat),
	}
}

func toReportResponse(rep domain.ValidationReport) reportResponse {
	violations := rep.Violations
	if violations == nil {
		violations = []domain.Violation{}
	}
	return reportResponse{
		Seq:           rep.Seq,
		ID:            rep.ID,
		Collection:    rep.Collection,
		SchemaVersion: rep.SchemaVersion,
		DocumentHash:  rep.DocumentHash,
		Valid:         rep.Valid,
		Violations:    violations,
		Actor:         rep.Actor,
		CreatedAt:     rep.CreatedAt.UTC().Format(timeFormat),
	}
}

// readJSONBody reads one JSON value from the request body.
func readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	var body json.RawMessage
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	return body, true
}

func parseIntParam(w http.ResponseWriter, r *http.Request, name, message string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, message)
		return 0, false
	}
	return parsed, true
}

func mutationMetadata(r *http.Request) domain.MutationMetadata {
	return domain.MutationMetadata{
		Actor:         actorFromContext(r.Context()),
		Source:        "http",
		RequestID:     middleware.GetReqID(r.Context()),
		CorrelationID: strings.TrimSpace(r.Header.Get("X-Correlation-Id")),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("encode json response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSchema):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json schema", "detail": err.Error()})
	case errors.Is(err, domain.ErrInvalidTenant),
		errors.Is(err, domain.ErrInvalidCollection),
		errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		log.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func tenantIDFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantIDCtxKey).(string)
	return tenant
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(apiActorCtxKey).(string)
	if actor == "" {
		return "api"
	}
	return actor
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "momentschema",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/moment/catalog": map[string]any{
				"get": map[string]any{"summary": "List moment tests and manipulations"},
			},
			"/v1/collections/{collection}/schema": map[string]any{
				"put":    map[string]any{"summary": "Create or replace the collection schema"},
				"get":    map[string]any{"summary": "Get the collection schema"},
				"delete": map[string]any{"summary": "Delete the collection schema"},
			},
			"/v1/collections/{collection}/schema/history": map[string]any{
				"get": map[string]any{"summary": "List schema revisions"},
			},
			"/v1/collections/{collection}/validate": map[string]any{
				"post": map[string]any{"summary": "Validate a document against the collection schema"},
			},
			"/v1/collections/{collection}/reports": map[string]any{
				"get": map[string]any{"summary": "List validation reports"},
			},
			"/v1/collections/{collection}/reports/{id}": map[string]any{
				"get": map[string]any{"summary": "Get a validation report"},
			},
		},
	}
}
