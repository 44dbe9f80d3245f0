package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AllocationService is a domain service that coordinates the distribution of
// a payment across a client's open invoices using allocation strategies.
// It ensures that:
// 1. Payments are in the ALLOCATING stage before allocation
// 2. Allocations never exceed an invoice's outstanding balance
// 3. Both payment and invoice states are updated consistently
//
// Strategy selection is injectable so callers can configure the default
// policy or override it per request.
type AllocationService struct {
	strategyFactory     *AllocationStrategyFactory
	defaultStrategyType AllocationStrategyType
	strategyOverride    StrategyOverrideFunc
}

// StrategyOverrideFunc can override the strategy type based on context.
// This allows per-client or per-request policy selection.
type StrategyOverrideFunc func(ctx context.Context, clientID uuid.UUID) AllocationStrategyType

// AllocationServiceOption is a functional option for configuring AllocationService
type AllocationServiceOption func(*AllocationService)

// WithDefaultStrategy sets the default allocation strategy type
func WithDefaultStrategy(strategyType AllocationStrategyType) AllocationServiceOption {
	return func(s *AllocationService) {
		if strategyType.IsValid() {
			s.defaultStrategyType = strategyType
		}
	}
}

// WithStrategyOverride sets a function that can override strategy selection based on context
func WithStrategyOverride(fn StrategyOverrideFunc) AllocationServiceOption {
	return func(s *AllocationService) {
		s.strategyOverride = fn
	}
}

// NewAllocationService creates a new allocation service with optional configuration
func NewAllocationService(opts ...AllocationServiceOption) *AllocationService {
	s := &AllocationService{
		strategyFactory:     NewAllocationStrategyFactory(),
		defaultStrategyType: AllocationStrategyTypeFIFO, // Default to FIFO
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetDefaultStrategy returns the default strategy type
func (s *AllocationService) GetDefaultStrategy() AllocationStrategyType {
	return s.defaultStrategyType
}

// GetEffectiveStrategy returns the effective strategy type for a given context and client
func (s *AllocationService) GetEffectiveStrategy(ctx context.Context, clientID uuid.UUID) AllocationStrategyType {
	if s.strategyOverride != nil {
		override := s.strategyOverride(ctx, clientID)
		if override.IsValid() {
			return override
		}
	}
	return s.defaultStrategyType
}

// AllocatePaymentRequest represents a request to allocate a payment across invoices
type AllocatePaymentRequest struct {
	Payment      *Payment
	Invoices     []Invoice
	StrategyType AllocationStrategyType
}

// AllocatePaymentResult represents the result of allocating a payment
type AllocatePaymentResult struct {
	Payment         *Payment            // Updated payment with new allocations
	UpdatedInvoices []Invoice           // Invoices that received money
	Allocations     []PaymentAllocation // Allocations that were recorded
	TotalAllocated  decimal.Decimal     // Total amount allocated
	Surplus         decimal.Decimal     // Amount left over (credit candidate)
	FullyAllocated  bool                // True if all payment amount was allocated
}

// AllocatePayment distributes the payment's unallocated amount across the
// client's open invoices using the requested strategy, mutating both the
// payment and the matched invoices.
func (s *AllocationService) AllocatePayment(
	ctx context.Context,
	req AllocatePaymentRequest,
) (*AllocatePaymentResult, error) {
	if req.Payment == nil {
		return nil, shared.NewDomainError("INVALID_PAYMENT", "Payment cannot be nil")
	}
	if req.Payment.Status != PaymentStatusAllocating {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot allocate payment in %s status, must be ALLOCATING", req.Payment.Status))
	}
	if req.Payment.UnallocatedAmount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("NO_UNALLOCATED", "Payment has no unallocated amount")
	}

	if !req.StrategyType.IsValid() {
		return nil, shared.NewDomainError("INVALID_STRATEGY", "Invalid allocation strategy type")
	}

	strat, err := s.strategyFactory.GetStrategy(req.StrategyType)
	if err != nil {
		return nil, err
	}

	targets, invoiceMap := s.eligibleTargets(req.Payment.ClientID, req.Invoices)
	if len(targets) == 0 {
		return &AllocatePaymentResult{
			Payment:         req.Payment,
			UpdatedInvoices: []Invoice{},
			Allocations:     []PaymentAllocation{},
			TotalAllocated:  decimal.Zero,
			Surplus:         req.Payment.UnallocatedAmount(),
			FullyAllocated:  false,
		}, nil
	}

	plan, err := strat.Allocate(valueobject.NewMoneyUSD(req.Payment.UnallocatedAmount()), targets)
	if err != nil {
		return nil, err
	}

	updatedInvoices := make([]Invoice, 0, len(plan.Entries))
	allocations := make([]PaymentAllocation, 0, len(plan.Entries))

	for _, entry := range plan.Entries {
		if entry.Amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		invoice, exists := invoiceMap[entry.InvoiceID]
		if !exists {
			continue
		}

		allocAmount := valueobject.NewMoneyUSD(entry.Amount)

		allocation, err := req.Payment.Allocate(invoice.ID, invoice.InvoiceNumber, allocAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate to invoice %s: %w", invoice.InvoiceNumber, err)
		}
		allocations = append(allocations, *allocation)

		if err := invoice.ApplyPayment(allocAmount, req.Payment.ID); err != nil {
			return nil, fmt.Errorf("failed to apply payment to invoice %s: %w", invoice.InvoiceNumber, err)
		}
		updatedInvoices = append(updatedInvoices, *invoice)
	}

	return &AllocatePaymentResult{
		Payment:         req.Payment,
		UpdatedInvoices: updatedInvoices,
		Allocations:     allocations,
		TotalAllocated:  plan.TotalAllocated,
		Surplus:         plan.RemainingAmount,
		FullyAllocated:  plan.FullyAllocated,
	}, nil
}

// PreviewAllocation calculates what allocations would be made without
// mutating the payment or the invoices. Useful for showing the operator
// the outcome before they confirm.
func (s *AllocationService) PreviewAllocation(
	ctx context.Context,
	clientID uuid.UUID,
	amount valueobject.Money,
	invoices []Invoice,
	strategyType AllocationStrategyType,
) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Preview amount must be positive")
	}

	strat, err := s.strategyFactory.GetStrategy(strategyType)
	if err != nil {
		return nil, err
	}

	targets, _ := s.eligibleTargets(clientID, invoices)
	if len(targets) == 0 {
		return emptyPlan(amount.Amount()), nil
	}

	return strat.Allocate(amount, targets)
}

// eligibleTargets filters invoices down to the client's payable ones and
// builds the strategy targets plus a lookup map for applying results.
func (s *AllocationService) eligibleTargets(clientID uuid.UUID, invoices []Invoice) ([]AllocationTarget, map[uuid.UUID]*Invoice) {
	targets := make([]AllocationTarget, 0, len(invoices))
	invoiceMap := make(map[uuid.UUID]*Invoice, len(invoices))

	for i := range invoices {
		inv := &invoices[i]
		if inv.ClientID != clientID {
			continue
		}
		if !inv.Status.CanApplyPayment() {
			continue
		}
		if inv.BalanceDue().LessThanOrEqual(decimal.Zero) {
			continue
		}
		targets = append(targets, AllocationTarget{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			BalanceDue:    inv.BalanceDue(),
			CreatedAt:     inv.CreatedAt,
		})
		invoiceMap[inv.ID] = inv
	}

	return targets, invoiceMap
}
