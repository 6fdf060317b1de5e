package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
	"github.com/atvirokodosprendimai/momentschema/internal/core/ports"
	"github.com/atvirokodosprendimai/momentschema/internal/moment"
)

// SchemaService manages per-collection JSON schemas. Every schema is compiled
// with the moment keyword enabled.
type SchemaService struct {
	repo  ports.CollectionSchemaRepository
	lib   *moment.Library
	cache sync.Map // key: "tenantID/collection" → compiledSchema
}

type compiledSchema struct {
	schema  *santhosh.Schema
	version int64
}

func NewSchemaService(repo ports.CollectionSchemaRepository, lib *moment.Library) *SchemaService {
	if lib == nil {
		lib = moment.NewLibrary()
	}
	return &SchemaService{repo: repo, lib: lib}
}

func (s *SchemaService) Library() *moment.Library {
	return s.lib
}

func (s *SchemaService) Upsert(ctx context.Context, tenantID, collection string, schemaJSON json.RawMessage, meta domain.MutationMetadata) (domain.CollectionSchema, error) {
	if err := validateScope(tenantID, collection); err != nil {
		return domain.CollectionSchema{}, err
	}
	if !json.Valid(schemaJSON) {
		return domain.CollectionSchema{}, fmt.Errorf("%w: schema must be valid json", domain.ErrInvalidSchema)
	}
	if _, err := CompileSchema(s.lib, schemaJSON); err != nil {
		return domain.CollectionSchema{}, fmt.Errorf("%w: %w", domain.ErrInvalidSchema, err)
	}
	s.cache.Delete(cacheKey(tenantID, collection))
	return s.repo.Upsert(ctx, domain.CollectionSchema{
		TenantID:   tenantID,
		Collection: collection,
		Schema:     schemaJSON,
	}, meta)
}

func (s *SchemaService) Get(ctx context.Context, tenantID, collection string) (domain.CollectionSchema, error) {
	if err := validateScope(tenantID, collection); err != nil {
		return domain.CollectionSchema{}, err
	}
	return s.repo.Get(ctx, tenantID, collection)
}

func (s *SchemaService) Delete(ctx context.Context, tenantID, collection string, meta domain.MutationMetadata) (bool, error) {
	if err := validateScope(tenantID, collection); err != nil {
		return false, err
	}
	s.cache.Delete(cacheKey(tenantID, collection))
	return s.repo.Delete(ctx, tenantID, collection, meta)
}

// Compiled returns the compiled schema of a collection and its version.
// It returns domain.ErrNotFound when no schema is configured.
func (s *SchemaService) Compiled(ctx context.Context, tenantID, collection string) (*santhosh.Schema, int64, error) {
	key := cacheKey(tenantID, collection)
	if cached, ok := s.cache.Load(key); ok {
		c := cached.(compiledSchema)
		return c.schema, c.version, nil
	}

	cs, err := s.repo.Get(ctx, tenantID, collection)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("load schema: %w", err)
	}

	compiled, err := CompileSchema(s.lib, cs.Schema)
	if err != nil {
		return nil, 0, fmt.Errorf("compile schema: %w", err)
	}
	s.cache.Store(key, compiledSchema{schema: compiled, version: cs.Version})
	return compiled, cs.Version, nil
}

// CompileSchema builds a *santhosh.Schema from raw JSON with the moment
// keyword registered against lib.
func CompileSchema(lib *moment.Library, schemaJSON json.RawMessage) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if _, err := moment.Register(compiler, lib); err != nil {
		return nil, err
	}
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

// ValidateDocument checks data against a compiled schema. It returns
// *domain.ErrSchemaViolation when the document does not conform.
func ValidateDocument(sch *santhosh.Schema, data json.RawMessage) error {
	v, err := decodeDocument(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrSchemaViolation{Violations: collectViolations(ve)}
		}
		return &domain.ErrSchemaViolation{Violations: []domain.Violation{{Message: err.Error()}}}
	}
	return nil
}

func decodeDocument(r io.Reader) (any, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", domain.ErrInvalidDocument)
	}
	return v, nil
}

// collectViolations keeps the leaves of the error tree. Parents only say
// which subschema their causes came from.
func collectViolations(ve *santhosh.ValidationError) []domain.Violation {
	if len(ve.Causes) == 0 {
		return []domain.Violation{{
			InstanceLocation: ve.InstanceLocation,
			KeywordLocation:  ve.KeywordLocation,
			Message:          ve.Message,
		}}
	}
	var out []domain.Violation
	for _, cause := range ve.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

func validateScope(tenantID, collection string) error {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return err
	}
	return domain.ValidateCollection(collection)
}

func cacheKey(tenantID, collection string) string {
	return tenantID + "/" + collection
}
