package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCreditRepository implements billing.CreditRepository using GORM
type GormCreditRepository struct {
	db *gorm.DB
}

// NewGormCreditRepository creates a new GormCreditRepository
func NewGormCreditRepository(db *gorm.DB) *GormCreditRepository {
	return &GormCreditRepository{db: db}
}

// FindByID finds a credit by its ID
func (r *GormCreditRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Credit, error) {
	var model models.CreditModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByClient finds a client's active credits, oldest first
func (r *GormCreditRepository) FindActiveByClient(ctx context.Context, clientID uuid.UUID) ([]billing.Credit, error) {
	return r.findActiveByClient(ctx, r.db, clientID)
}

// FindActiveByClientForUpdate finds a client's active credits with row locks
func (r *GormCreditRepository) FindActiveByClientForUpdate(ctx context.Context, clientID uuid.UUID) ([]billing.Credit, error) {
	locked := r.db.Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findActiveByClient(ctx, locked, clientID)
}

func (r *GormCreditRepository) findActiveByClient(ctx context.Context, db *gorm.DB, clientID uuid.UUID) ([]billing.Credit, error) {
	var creditModels []models.CreditModel
	if err := db.WithContext(ctx).
		Where("client_id = ? AND status = ?", clientID, billing.CreditStatusActive).
		Order("created_at ASC").
		Find(&creditModels).Error; err != nil {
		return nil, err
	}
	credits := make([]billing.Credit, len(creditModels))
	for i, model := range creditModels {
		credits[i] = *model.ToDomain()
	}
	return credits, nil
}

// FindAll finds credits with filtering
func (r *GormCreditRepository) FindAll(ctx context.Context, filter billing.CreditFilter) ([]billing.Credit, error) {
	var creditModels []models.CreditModel
	query := r.db.WithContext(ctx).Model(&models.CreditModel{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&creditModels).Error; err != nil {
		return nil, err
	}
	credits := make([]billing.Credit, len(creditModels))
	for i, model := range creditModels {
		credits[i] = *model.ToDomain()
	}
	return credits, nil
}

// FindExpiryCandidates finds active credits whose expiry has passed
func (r *GormCreditRepository) FindExpiryCandidates(ctx context.Context, asOf time.Time) ([]billing.Credit, error) {
	var creditModels []models.CreditModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			billing.CreditStatusActive, asOf).
		Order("expires_at ASC").
		Find(&creditModels).Error; err != nil {
		return nil, err
	}
	credits := make([]billing.Credit, len(creditModels))
	for i, model := range creditModels {
		credits[i] = *model.ToDomain()
	}
	return credits, nil
}

// Save creates or updates a credit
func (r *GormCreditRepository) Save(ctx context.Context, credit *billing.Credit) error {
	model := models.CreditModelFromDomain(credit)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking
func (r *GormCreditRepository) SaveWithLock(ctx context.Context, credit *billing.Credit) error {
	model := models.CreditModelFromDomain(credit)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", credit.ID, credit.Version-1).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

// SumRemainingByClient calculates the total consumable credit for a client
func (r *GormCreditRepository) SumRemainingByClient(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.CreditModel{}).
		Select("COALESCE(SUM(remaining_amount), 0) as total").
		Where("client_id = ? AND status = ?", clientID, billing.CreditStatusActive).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// applyFilter applies filter options to the query
func (r *GormCreditRepository) applyFilter(query *gorm.DB, filter billing.CreditFilter) *gorm.DB {
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SourcePaymentID != nil {
		query = query.Where("source_payment_id = ?", *filter.SourcePaymentID)
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, CreditSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}
