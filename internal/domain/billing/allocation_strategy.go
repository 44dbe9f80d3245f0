package billing

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/domain/shared/strategy"
	"github.com/labbill/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AllocationStrategyType defines the type of allocation strategy
type AllocationStrategyType string

const (
	AllocationStrategyTypeFIFO         AllocationStrategyType = "FIFO"         // Oldest invoice first by creation date
	AllocationStrategyTypeLIFO         AllocationStrategyType = "LIFO"         // Newest invoice first by creation date
	AllocationStrategyTypeProportional AllocationStrategyType = "PROPORTIONAL" // Split by balance share
)

// IsValid checks if the strategy type is valid
func (t AllocationStrategyType) IsValid() bool {
	switch t {
	case AllocationStrategyTypeFIFO, AllocationStrategyTypeLIFO, AllocationStrategyTypeProportional:
		return true
	}
	return false
}

// String returns the string representation
func (t AllocationStrategyType) String() string {
	return string(t)
}

// AllAllocationStrategyTypes returns all valid allocation strategy types
func AllAllocationStrategyTypes() []AllocationStrategyType {
	return []AllocationStrategyType{
		AllocationStrategyTypeFIFO,
		AllocationStrategyTypeLIFO,
		AllocationStrategyTypeProportional,
	}
}

// AllocationTarget represents an open invoice considered for allocation
type AllocationTarget struct {
	InvoiceID     uuid.UUID       // ID of the invoice
	InvoiceNumber string          // Number for display purposes
	BalanceDue    decimal.Decimal // Remaining amount due
	CreatedAt     time.Time       // Creation date, used for FIFO/LIFO ordering
}

// AllocationEntry represents the result of a single allocation
type AllocationEntry struct {
	InvoiceID     uuid.UUID       // ID of the invoice
	InvoiceNumber string          // Number of the invoice
	Amount        decimal.Decimal // Amount to allocate
}

// AllocationPlan represents the complete result of an allocation strategy
type AllocationPlan struct {
	Entries               []AllocationEntry // List of allocations to make
	TotalAllocated        decimal.Decimal   // Total amount allocated
	RemainingAmount       decimal.Decimal   // Amount left unallocated (credit candidate)
	FullyAllocated        bool              // True if all payment amount was allocated
	InvoicesFullyPaid     []uuid.UUID       // Invoices that will be fully paid
	InvoicesPartiallyPaid []uuid.UUID       // Invoices that will be partially paid
}

// AllocationStrategy is the interface for payment allocation strategies
type AllocationStrategy interface {
	strategy.Strategy
	// StrategyType returns the allocation strategy type
	StrategyType() AllocationStrategyType
	// Allocate calculates how to distribute the given amount across targets.
	// The returned plan always satisfies TotalAllocated <= amount.
	Allocate(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error)
}

// openTargets filters out targets with no outstanding balance.
// Zero-balance invoices never participate in allocation.
func openTargets(targets []AllocationTarget) []AllocationTarget {
	open := make([]AllocationTarget, 0, len(targets))
	for _, t := range targets {
		if t.BalanceDue.GreaterThan(decimal.Zero) {
			open = append(open, t)
		}
	}
	return open
}

// emptyPlan returns a plan with nothing allocated and the full amount remaining
func emptyPlan(amount decimal.Decimal) *AllocationPlan {
	return &AllocationPlan{
		Entries:               make([]AllocationEntry, 0),
		TotalAllocated:        decimal.Zero,
		RemainingAmount:       amount,
		FullyAllocated:        false,
		InvoicesFullyPaid:     make([]uuid.UUID, 0),
		InvoicesPartiallyPaid: make([]uuid.UUID, 0),
	}
}

// consumeInOrder walks the sorted targets consuming the amount against each
// balance until exhausted. Shared by FIFO and LIFO.
func consumeInOrder(amount decimal.Decimal, sorted []AllocationTarget) *AllocationPlan {
	plan := emptyPlan(amount)
	remaining := amount

	for _, target := range sorted {
		if remaining.IsZero() {
			break
		}

		allocAmount := decimal.Min(remaining, target.BalanceDue)

		plan.Entries = append(plan.Entries, AllocationEntry{
			InvoiceID:     target.InvoiceID,
			InvoiceNumber: target.InvoiceNumber,
			Amount:        allocAmount,
		})

		plan.TotalAllocated = plan.TotalAllocated.Add(allocAmount)
		remaining = remaining.Sub(allocAmount)

		if allocAmount.GreaterThanOrEqual(target.BalanceDue) {
			plan.InvoicesFullyPaid = append(plan.InvoicesFullyPaid, target.InvoiceID)
		} else {
			plan.InvoicesPartiallyPaid = append(plan.InvoicesPartiallyPaid, target.InvoiceID)
		}
	}

	plan.RemainingAmount = remaining
	plan.FullyAllocated = remaining.IsZero()
	return plan
}

// FIFOAllocationStrategy allocates to the oldest open invoices first
type FIFOAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewFIFOAllocationStrategy creates a new FIFO allocation strategy
func NewFIFOAllocationStrategy() *FIFOAllocationStrategy {
	return &FIFOAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"fifo_allocation",
			strategy.StrategyTypeAllocation,
			"FIFO allocation strategy - consumes payment against oldest invoices first by creation date",
		),
	}
}

// StrategyType returns the allocation strategy type
func (s *FIFOAllocationStrategy) StrategyType() AllocationStrategyType {
	return AllocationStrategyTypeFIFO
}

// Allocate allocates the amount to targets in creation-date ascending order
func (s *FIFOAllocationStrategy) Allocate(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}

	open := openTargets(targets)
	if len(open) == 0 {
		return emptyPlan(amount.Amount()), nil
	}

	sort.SliceStable(open, func(i, j int) bool {
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})

	return consumeInOrder(amount.Amount(), open), nil
}

// LIFOAllocationStrategy allocates to the newest open invoices first
type LIFOAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewLIFOAllocationStrategy creates a new LIFO allocation strategy
func NewLIFOAllocationStrategy() *LIFOAllocationStrategy {
	return &LIFOAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"lifo_allocation",
			strategy.StrategyTypeAllocation,
			"LIFO allocation strategy - consumes payment against newest invoices first by creation date",
		),
	}
}

// StrategyType returns the allocation strategy type
func (s *LIFOAllocationStrategy) StrategyType() AllocationStrategyType {
	return AllocationStrategyTypeLIFO
}

// Allocate allocates the amount to targets in creation-date descending order
func (s *LIFOAllocationStrategy) Allocate(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}

	open := openTargets(targets)
	if len(open) == 0 {
		return emptyPlan(amount.Amount()), nil
	}

	sort.SliceStable(open, func(i, j int) bool {
		return open[i].CreatedAt.After(open[j].CreatedAt)
	})

	return consumeInOrder(amount.Amount(), open), nil
}

// ProportionalAllocationStrategy splits the payment across open invoices
// in proportion to their balances
type ProportionalAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewProportionalAllocationStrategy creates a new proportional allocation strategy
func NewProportionalAllocationStrategy() *ProportionalAllocationStrategy {
	return &ProportionalAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"proportional_allocation",
			strategy.StrategyTypeAllocation,
			"Proportional allocation strategy - splits payment by balance share with remainder reconciliation",
		),
	}
}

// StrategyType returns the allocation strategy type
func (s *ProportionalAllocationStrategy) StrategyType() AllocationStrategyType {
	return AllocationStrategyTypeProportional
}

// Allocate splits the amount by balance share. Per-invoice shares are
// rounded to cents; the rounding remainder is assigned to the invoice with
// the largest balance so the entries sum exactly to the allocated total.
func (s *ProportionalAllocationStrategy) Allocate(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}

	open := openTargets(targets)
	if len(open) == 0 {
		return emptyPlan(amount.Amount()), nil
	}

	totalBalance := decimal.Zero
	for _, t := range open {
		totalBalance = totalBalance.Add(t.BalanceDue)
	}

	// When the payment covers everything, each invoice gets exactly its
	// balance and the surplus is surfaced for credit creation.
	if amount.Amount().GreaterThanOrEqual(totalBalance) {
		plan := emptyPlan(amount.Amount())
		for _, t := range open {
			plan.Entries = append(plan.Entries, AllocationEntry{
				InvoiceID:     t.InvoiceID,
				InvoiceNumber: t.InvoiceNumber,
				Amount:        t.BalanceDue,
			})
			plan.TotalAllocated = plan.TotalAllocated.Add(t.BalanceDue)
			plan.InvoicesFullyPaid = append(plan.InvoicesFullyPaid, t.InvoiceID)
		}
		plan.RemainingAmount = amount.Amount().Sub(plan.TotalAllocated)
		plan.FullyAllocated = plan.RemainingAmount.IsZero()
		return plan, nil
	}

	plan := emptyPlan(amount.Amount())
	largestIdx := 0
	allocated := decimal.Zero

	for i, t := range open {
		share := amount.Amount().Mul(t.BalanceDue).Div(totalBalance).Round(moneyScale)
		// Never allocate past an invoice's own balance; rounding up could
		// otherwise overshoot by a cent.
		share = decimal.Min(share, t.BalanceDue)

		plan.Entries = append(plan.Entries, AllocationEntry{
			InvoiceID:     t.InvoiceID,
			InvoiceNumber: t.InvoiceNumber,
			Amount:        share,
		})
		allocated = allocated.Add(share)

		if t.BalanceDue.GreaterThan(open[largestIdx].BalanceDue) {
			largestIdx = i
		}
	}

	// Reconcile the rounding drift on the invoice with the largest balance
	// so the entries sum exactly to the payment amount.
	drift := amount.Amount().Sub(allocated)
	if !drift.IsZero() {
		adjusted := plan.Entries[largestIdx].Amount.Add(drift)
		if adjusted.IsNegative() {
			adjusted = decimal.Zero
		}
		if adjusted.GreaterThan(open[largestIdx].BalanceDue) {
			adjusted = open[largestIdx].BalanceDue
		}
		allocated = allocated.Sub(plan.Entries[largestIdx].Amount).Add(adjusted)
		plan.Entries[largestIdx].Amount = adjusted
	}

	for i, entry := range plan.Entries {
		if entry.Amount.GreaterThanOrEqual(open[i].BalanceDue) {
			plan.InvoicesFullyPaid = append(plan.InvoicesFullyPaid, entry.InvoiceID)
		} else {
			plan.InvoicesPartiallyPaid = append(plan.InvoicesPartiallyPaid, entry.InvoiceID)
		}
	}

	plan.TotalAllocated = allocated
	plan.RemainingAmount = amount.Amount().Sub(allocated)
	plan.FullyAllocated = plan.RemainingAmount.IsZero()

	return plan, nil
}

// AllocationStrategyFactory creates allocation strategies
type AllocationStrategyFactory struct{}

// NewAllocationStrategyFactory creates a new factory
func NewAllocationStrategyFactory() *AllocationStrategyFactory {
	return &AllocationStrategyFactory{}
}

// GetStrategy returns a strategy by type
func (f *AllocationStrategyFactory) GetStrategy(strategyType AllocationStrategyType) (AllocationStrategy, error) {
	switch strategyType {
	case AllocationStrategyTypeFIFO:
		return NewFIFOAllocationStrategy(), nil
	case AllocationStrategyTypeLIFO:
		return NewLIFOAllocationStrategy(), nil
	case AllocationStrategyTypeProportional:
		return NewProportionalAllocationStrategy(), nil
	default:
		return nil, shared.NewDomainError("INVALID_STRATEGY", "Unknown allocation strategy type")
	}
}
