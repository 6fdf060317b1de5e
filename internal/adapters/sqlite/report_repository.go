package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/momentschema/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

type reportModel struct {
	Seq            int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	ReportID       string    `gorm:"column:report_id;not null"`
	TenantID       string    `gorm:"column:tenant_id;not null"`
	Collection     string    `gorm:"column:collection;not null"`
	SchemaVersion  int64     `gorm:"column:schema_version;not null"`
	DocumentHash   string    `gorm:"column:document_hash;not null"`
	Valid          bool      `gorm:"column:valid;not null"`
	ViolationsJSON string    `gorm:"column:violations_json;not null"`
	Actor          string    `gorm:"column:actor;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (reportModel) TableName() string {
	return "validation_reports"
}

const reportAggregate = "validation_report"

type ReportRepository struct {
	db *gormsqlite.DB
}

func NewReportRepository(db *gormsqlite.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create stores the report. A rejected document also produces a
// document.rejected outbox event in the same transaction.
func (r *ReportRepository) Create(ctx context.Context, report domain.ValidationReport, meta domain.MutationMetadata) (domain.ValidationReport, error) {
	meta = meta.Normalize()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = meta.OccurredAt
	}
	model := reportModel{
		ReportID:       report.ID,
		TenantID:       report.TenantID,
		Collection:     report.Collection,
		SchemaVersion:  report.SchemaVersion,
		DocumentHash:   report.DocumentHash,
		Valid:          report.Valid,
		ViolationsJSON: string(domain.MarshalViolations(report.Violations)),
		Actor:          report.Actor,
		CreatedAt:      report.CreatedAt.UTC(),
	}

	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		if report.Valid {
			return nil
		}
		envelope := newEnvelope(domain.EventDocumentRejected, report.TenantID, reportAggregate, report.ID, report.SchemaVersion, meta, domain.DocumentRejection{
			ReportID:      report.ID,
			Collection:    report.Collection,
			SchemaVersion: report.SchemaVersion,
			DocumentHash:  report.DocumentHash,
			Violations:    report.Violations,
		})
		return enqueueOutbox(tx.DB, envelope)
	})
	if err != nil {
		return domain.ValidationReport{}, err
	}
	return toReportDomain(model)
}

func (r *ReportRepository) Get(ctx context.Context, tenantID, collection, id string) (domain.ValidationReport, error) {
	var model reportModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND collection = ? AND report_id = ?", tenantID, collection, id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ValidationReport{}, domain.ErrNotFound
		}
		return domain.ValidationReport{}, fmt.Errorf("get report: %w", err)
	}
	return toReportDomain(model)
}

func (r *ReportRepository) List(ctx context.Context, tenantID, collection string, filter domain.ReportFilter) ([]domain.ValidationReport, error) {
	var rows []reportModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&reportModel{}).Where("tenant_id = ? AND collection = ?", tenantID, collection)
		if filter.AfterSeq > 0 {
			query = query.Where("seq < ?", filter.AfterSeq)
		}
		if filter.Valid != nil {
			query = query.Where("valid = ?", *filter.Valid)
		}
		return query.Order("seq DESC").Limit(filter.Limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	result := make([]domain.ValidationReport, 0, len(rows))
	for _, row := range rows {
		rep, err := toReportDomain(row)
		if err != nil {
			return nil, err
		}
		result = append(result, rep)
	}
	return result, nil
}

func toReportDomain(model reportModel) (domain.ValidationReport, error) {
	var violations []domain.Violation
	if err := json.Unmarshal([]byte(model.ViolationsJSON), &violations); err != nil {
		return domain.ValidationReport{}, fmt.Errorf("decode report %s violations: %w", model.ReportID, err)
	}
	return domain.ValidationReport{
		Seq:           model.Seq,
		ID:            model.ReportID,
		TenantID:      model.TenantID,
		Collection:    model.Collection,
		SchemaVersion: model.SchemaVersion,
		DocumentHash:  model.DocumentHash,
		Valid:         model.Valid,
		Violations:    violations,
		Actor:         model.Actor,
		CreatedAt:     model.CreatedAt,
	}, nil
}
