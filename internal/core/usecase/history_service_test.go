package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

type stubHistoryRepo struct {
	filters []domain.HistoryFilter
}

func (r *stubHistoryRepo) List(_ context.Context, filter domain.HistoryFilter) ([]domain.SchemaRevision, error) {
	r.filters = append(r.filters, filter)
	return []domain.SchemaRevision{{ID: 1, Collection: filter.Collection, Version: 1, Action: domain.EventSchemaUpserted}}, nil
}

func TestHistoryServiceList(t *testing.T) {
	repo := &stubHistoryRepo{}
	svc := NewHistoryService(repo)

	revs, err := svc.List(context.Background(), domain.HistoryFilter{TenantID: "tenant-a", Collection: "bookings", Limit: 5000})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(revs) != 1 || revs[0].Collection != "bookings" {
		t.Fatalf("unexpected revisions: %+v", revs)
	}
	if repo.filters[0].Limit != 1000 {
		t.Fatalf("expected limit clamped to 1000, got %d", repo.filters[0].Limit)
	}
}

func TestHistoryServiceRejectsBadFilter(t *testing.T) {
	svc := NewHistoryService(&stubHistoryRepo{})
	if _, err := svc.List(context.Background(), domain.HistoryFilter{TenantID: "tenant-a", Collection: "bookings", AfterID: -1}); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if _, err := svc.List(context.Background(), domain.HistoryFilter{Collection: "bookings"}); !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
}
