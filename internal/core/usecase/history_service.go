package usecase

import (
	"context"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
	"github.com/atvirokodosprendimai/momentschema/internal/core/ports"
)

// HistoryService lists the revisions of a collection's schema, newest first.
type HistoryService struct {
	repo ports.SchemaHistoryRepository
}

func NewHistoryService(repo ports.SchemaHistoryRepository) *HistoryService {
	return &HistoryService{repo: repo}
}

func (s *HistoryService) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.SchemaRevision, error) {
	if err := validateScope(filter.TenantID, filter.Collection); err != nil {
		return nil, err
	}
	if filter.AfterID < 0 {
		return nil, domain.ErrInvalidFilter
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, filter)
}
