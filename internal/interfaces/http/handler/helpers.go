package handler

import (
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

func toDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func toDecimalPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}

// toSharedFilter converts list query parameters into a repository filter,
// applying the pagination defaults.
func toSharedFilter(req dto.ListRequest) shared.Filter {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}
	return shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Search:   req.Search,
	}
}
