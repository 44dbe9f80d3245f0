package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PaymentMethod represents the method of payment
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"          // Cash payment
	PaymentMethodCheck        PaymentMethod = "CHECK"         // Check/Cheque
	PaymentMethodCard         PaymentMethod = "CARD"          // Credit/debit card
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER" // ACH / wire
	PaymentMethodInsurance    PaymentMethod = "INSURANCE"     // Insurance payer remittance
	PaymentMethodCredit       PaymentMethod = "CREDIT"        // Applied from client credit balance
	PaymentMethodOther        PaymentMethod = "OTHER"         // Other methods
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheck, PaymentMethodCard,
		PaymentMethodBankTransfer, PaymentMethodInsurance, PaymentMethodCredit, PaymentMethodOther:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// PaymentStatus represents the lifecycle of a payment-processing attempt.
// Every attempt walks pending -> locking -> allocating -> persisting ->
// committed, or drops to rolled_back at whichever stage failed.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusLocking    PaymentStatus = "LOCKING"
	PaymentStatusAllocating PaymentStatus = "ALLOCATING"
	PaymentStatusPersisting PaymentStatus = "PERSISTING"
	PaymentStatusCommitted  PaymentStatus = "COMMITTED"
	PaymentStatusRolledBack PaymentStatus = "ROLLED_BACK"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusLocking, PaymentStatusAllocating,
		PaymentStatusPersisting, PaymentStatusCommitted, PaymentStatusRolledBack:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the attempt has finished
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCommitted || s == PaymentStatusRolledBack
}

// next defines the only legal forward transition for each non-terminal state
var nextPaymentStatus = map[PaymentStatus]PaymentStatus{
	PaymentStatusPending:    PaymentStatusLocking,
	PaymentStatusLocking:    PaymentStatusAllocating,
	PaymentStatusAllocating: PaymentStatusPersisting,
	PaymentStatusPersisting: PaymentStatusCommitted,
}

// PaymentAllocation represents the portion of a payment assigned to a
// specific invoice. For a given payment the allocated amounts never sum
// to more than the payment amount.
type PaymentAllocation struct {
	ID            uuid.UUID       `json:"id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"` // Denormalized for display
	Amount        decimal.Decimal `json:"amount"`
	AllocatedAt   time.Time       `json:"allocated_at"`
}

// NewPaymentAllocation creates a new payment allocation
func NewPaymentAllocation(paymentID, invoiceID uuid.UUID, invoiceNumber string, amount valueobject.Money) *PaymentAllocation {
	return &PaymentAllocation{
		ID:            uuid.New(),
		PaymentID:     paymentID,
		InvoiceID:     invoiceID,
		InvoiceNumber: invoiceNumber,
		Amount:        amount.Amount(),
		AllocatedAt:   time.Now(),
	}
}

// GetAmountMoney returns the amount as Money value object
func (a *PaymentAllocation) GetAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(a.Amount)
}

// Payment represents a payment aggregate root. It records a single funds
// receipt from a client and owns the allocations made from it.
type Payment struct {
	shared.BaseAggregateRoot
	ClientID        uuid.UUID           `json:"client_id"`
	Amount          decimal.Decimal     `json:"amount"`
	Method          PaymentMethod       `json:"method"`
	Reference       string              `json:"reference"` // External reference (check #, remittance id)
	IdempotencyKey  string              `json:"idempotency_key"`
	Status          PaymentStatus       `json:"status"`
	Allocations     []PaymentAllocation `json:"allocations"`
	AllocatedAmount decimal.Decimal     `json:"allocated_amount"`
	CreditedAmount  decimal.Decimal     `json:"credited_amount"` // Surplus converted to client credit
	ReceivedAt      time.Time           `json:"received_at"`
	CommittedAt     *time.Time          `json:"committed_at"`
	FailureReason   string              `json:"failure_reason"`
}

// ComputeIdempotencyKey derives the deterministic idempotency key for a
// payment attempt. Invoice IDs are sorted before hashing so the same
// logical payment always yields the same key regardless of input order.
func ComputeIdempotencyKey(invoiceIDs []uuid.UUID, amount decimal.Decimal, method PaymentMethod, reference string) string {
	ids := make([]string, len(invoiceIDs))
	for i, id := range invoiceIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)

	payload := fmt.Sprintf("%s|%s|%s|%s", strings.Join(ids, ","), amount.StringFixed(2), method, reference)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// NewPayment creates a new pending payment
func NewPayment(clientID uuid.UUID, amount valueobject.Money, method PaymentMethod, reference string, invoiceIDs []uuid.UUID) (*Payment, error) {
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_METHOD", "Payment method is not valid")
	}

	p := &Payment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ClientID:          clientID,
		Amount:            amount.Amount(),
		Method:            method,
		Reference:         reference,
		IdempotencyKey:    ComputeIdempotencyKey(invoiceIDs, amount.Amount(), method, reference),
		Status:            PaymentStatusPending,
		Allocations:       make([]PaymentAllocation, 0),
		AllocatedAmount:   decimal.Zero,
		CreditedAmount:    decimal.Zero,
		ReceivedAt:        time.Now(),
	}

	p.AddDomainEvent(NewPaymentReceivedEvent(p))

	return p, nil
}

// Advance moves the attempt to the next processing stage
func (p *Payment) Advance() error {
	next, ok := nextPaymentStatus[p.Status]
	if !ok {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Payment in %s status cannot advance", p.Status))
	}
	p.Status = next
	p.UpdatedAt = time.Now()
	return nil
}

// Allocate records an allocation of part of this payment to an invoice
func (p *Payment) Allocate(invoiceID uuid.UUID, invoiceNumber string, amount valueobject.Money) (*PaymentAllocation, error) {
	if p.Status.IsTerminal() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot allocate payment in %s status", p.Status))
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}
	if p.AllocatedAmount.Add(amount.Amount()).GreaterThan(p.Amount) {
		return nil, shared.NewDomainError("EXCEEDS_PAYMENT", fmt.Sprintf("Allocating %s would exceed payment amount %s",
			amount.Amount().StringFixed(2), p.Amount.StringFixed(2)))
	}

	alloc := NewPaymentAllocation(p.ID, invoiceID, invoiceNumber, amount)
	p.Allocations = append(p.Allocations, *alloc)
	p.AllocatedAmount = p.AllocatedAmount.Add(amount.Amount())
	p.UpdatedAt = time.Now()

	return alloc, nil
}

// UnallocatedAmount returns what remains of the payment after allocations
func (p *Payment) UnallocatedAmount() decimal.Decimal {
	return p.Amount.Sub(p.AllocatedAmount)
}

// RecordCredit marks the unallocated surplus as converted to client credit
func (p *Payment) RecordCredit(amount valueobject.Money, creditID uuid.UUID) error {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Credit amount must be positive")
	}
	if p.CreditedAmount.Add(amount.Amount()).GreaterThan(p.UnallocatedAmount()) {
		return shared.NewDomainError("EXCEEDS_PAYMENT", "Credit amount exceeds unallocated remainder")
	}

	p.CreditedAmount = p.CreditedAmount.Add(amount.Amount())
	p.UpdatedAt = time.Now()
	p.AddDomainEvent(NewOverpaymentCreditedEvent(p, creditID, amount))

	return nil
}

// Commit marks the attempt as successfully committed
func (p *Payment) Commit() error {
	if p.Status != PaymentStatusPersisting {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot commit payment in %s status", p.Status))
	}
	now := time.Now()
	p.Status = PaymentStatusCommitted
	p.CommittedAt = &now
	p.UpdatedAt = now
	p.IncrementVersion()

	p.AddDomainEvent(NewPaymentCommittedEvent(p))

	return nil
}

// RollBack marks the attempt as rolled back with the failure reason.
// Allocations recorded in memory are discarded; nothing was persisted.
func (p *Payment) RollBack(reason string) {
	p.Status = PaymentStatusRolledBack
	p.FailureReason = reason
	p.Allocations = p.Allocations[:0]
	p.AllocatedAmount = decimal.Zero
	p.CreditedAmount = decimal.Zero
	p.UpdatedAt = time.Now()
}

// GetAmountMoney returns the payment amount as Money
func (p *Payment) GetAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(p.Amount)
}
