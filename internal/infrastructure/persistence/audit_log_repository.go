package persistence

import (
	"context"

	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormAuditLogRepository implements billing.AuditLogRepository using GORM
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository creates a new GormAuditLogRepository
func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// Record appends an audit entry
func (r *GormAuditLogRepository) Record(ctx context.Context, entry *billing.AuditEntry) error {
	model := models.AuditLogModelFromDomain(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindAll finds audit entries with filtering, newest first
func (r *GormAuditLogRepository) FindAll(ctx context.Context, filter billing.AuditFilter) ([]billing.AuditEntry, error) {
	var auditModels []models.AuditLogModel
	query := r.db.WithContext(ctx).Model(&models.AuditLogModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, AuditSortFields, "occurred_at")
	orderDir := "DESC"
	if filter.OrderDir != "" {
		orderDir = ValidateSortOrder(filter.OrderDir)
	}

	if err := query.Order(orderBy + " " + orderDir).Find(&auditModels).Error; err != nil {
		return nil, err
	}
	entries := make([]billing.AuditEntry, len(auditModels))
	for i, model := range auditModels {
		entries[i] = *model.ToDomain()
	}
	return entries, nil
}

// Count counts audit entries matching the filter
func (r *GormAuditLogRepository) Count(ctx context.Context, filter billing.AuditFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.AuditLogModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormAuditLogRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.AuditFilter) *gorm.DB {
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.FromDate != nil {
		query = query.Where("occurred_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("occurred_at <= ?", *filter.ToDate)
	}

	return query
}
