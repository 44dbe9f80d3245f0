package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LineItem represents a single billable service line on an invoice.
// Quantity and UnitPrice must be non-negative; DiscountRate and TaxRate
// are fractional rates in [0,1].
type LineItem struct {
	ID           uuid.UUID       `json:"id"`
	InvoiceID    uuid.UUID       `json:"invoice_id"`
	ServiceCode  string          `json:"service_code"` // CPT-equivalent service code
	Description  string          `json:"description"`
	ServiceDate  time.Time       `json:"service_date"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
}

// NewLineItem creates a line item after validating its inputs
func NewLineItem(serviceCode string, quantity, unitPrice, discountRate, taxRate decimal.Decimal) (*LineItem, error) {
	item := &LineItem{
		ID:           uuid.New(),
		ServiceCode:  serviceCode,
		Quantity:     quantity,
		UnitPrice:    unitPrice,
		DiscountRate: discountRate,
		TaxRate:      taxRate,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks the line item inputs against the allowed ranges
func (li *LineItem) Validate() error {
	if li.Quantity.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Quantity cannot be negative")
	}
	if li.UnitPrice.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Unit price cannot be negative")
	}
	if li.DiscountRate.IsNegative() || li.DiscountRate.GreaterThan(decimal.NewFromInt(1)) {
		return shared.NewDomainError("INVALID_INPUT", "Discount rate must be between 0 and 1")
	}
	if li.TaxRate.IsNegative() || li.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return shared.NewDomainError("INVALID_INPUT", "Tax rate must be between 0 and 1")
	}
	return nil
}

// LineItemResult holds the derived monetary values of a single line item.
// All amounts are rounded to 2 decimal places.
type LineItemResult struct {
	LineItemID     uuid.UUID       `json:"line_item_id"`
	LineTotal      decimal.Decimal `json:"line_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

// InvoiceTotals holds the aggregated monetary values of an invoice
type InvoiceTotals struct {
	Subtotal      decimal.Decimal  `json:"subtotal"`
	TotalDiscount decimal.Decimal  `json:"total_discount"`
	TotalTax      decimal.Decimal  `json:"total_tax"`
	Total         decimal.Decimal  `json:"total"`
	Items         []LineItemResult `json:"items"`
}

const moneyScale = int32(2)

// CalculateLineItem computes the derived amounts of a line item.
//
// Each monetary subtotal is rounded to 2 decimals after its own arithmetic
// step - lineTotal, discountAmount, taxAmount and finalAmount are computed
// and rounded independently. This ordering is a deliberate policy; changing
// it would change committed invoice totals.
func CalculateLineItem(item *LineItem) (*LineItemResult, error) {
	if item == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Line item cannot be nil")
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	lineTotal := item.Quantity.Mul(item.UnitPrice).Round(moneyScale)
	discountAmount := lineTotal.Mul(item.DiscountRate).Round(moneyScale)
	taxAmount := lineTotal.Sub(discountAmount).Mul(item.TaxRate).Round(moneyScale)
	finalAmount := lineTotal.Sub(discountAmount).Add(taxAmount).Round(moneyScale)

	return &LineItemResult{
		LineItemID:     item.ID,
		LineTotal:      lineTotal,
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		FinalAmount:    finalAmount,
	}, nil
}

// CalculateInvoiceTotal aggregates the already-rounded per-item values and
// rounds the sums again. An empty item list yields all-zero totals, not an
// error - a finalized invoice with no billable services is a valid edge case.
func CalculateInvoiceTotal(items []LineItem) (*InvoiceTotals, error) {
	totals := &InvoiceTotals{
		Subtotal:      decimal.Zero,
		TotalDiscount: decimal.Zero,
		TotalTax:      decimal.Zero,
		Total:         decimal.Zero,
		Items:         make([]LineItemResult, 0, len(items)),
	}

	for i := range items {
		result, err := CalculateLineItem(&items[i])
		if err != nil {
			return nil, err
		}
		totals.Items = append(totals.Items, *result)
		totals.Subtotal = totals.Subtotal.Add(result.LineTotal)
		totals.TotalDiscount = totals.TotalDiscount.Add(result.DiscountAmount)
		totals.TotalTax = totals.TotalTax.Add(result.TaxAmount)
		totals.Total = totals.Total.Add(result.FinalAmount)
	}

	totals.Subtotal = totals.Subtotal.Round(moneyScale)
	totals.TotalDiscount = totals.TotalDiscount.Round(moneyScale)
	totals.TotalTax = totals.TotalTax.Round(moneyScale)
	totals.Total = totals.Total.Round(moneyScale)

	return totals, nil
}
