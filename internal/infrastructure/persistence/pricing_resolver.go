package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormPricingResolver resolves service prices from the service_prices table.
// Prices are versioned by effective date; the resolver picks the latest
// price in effect on the service date, preferring the client's contract
// price over the standard price list.
type GormPricingResolver struct {
	db *gorm.DB
}

// NewGormPricingResolver creates a new GormPricingResolver
func NewGormPricingResolver(db *gorm.DB) *GormPricingResolver {
	return &GormPricingResolver{db: db}
}

// ResolveUnitPrice returns the unit price for a service code as of the
// given service date
func (r *GormPricingResolver) ResolveUnitPrice(ctx context.Context, clientID uuid.UUID, serviceCode string, serviceDate time.Time) (decimal.Decimal, error) {
	query := r.db.WithContext(ctx).
		Where("service_code = ? AND effective_from <= ?", serviceCode, serviceDate)
	if clientID == uuid.Nil {
		query = query.Where("client_id IS NULL")
	} else {
		// Contract rows sort before standard rows, so the client's
		// negotiated price wins when both are in effect
		query = query.
			Where("client_id = ? OR client_id IS NULL", clientID).
			Order("(client_id IS NULL) ASC")
	}

	var model models.ServicePriceModel
	if err := query.Order("effective_from DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, shared.ErrNotFound
		}
		return decimal.Zero, err
	}
	return model.UnitPrice, nil
}
