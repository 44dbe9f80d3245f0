package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"     // Editable, totals not yet committed
	InvoiceStatusSent      InvoiceStatus = "SENT"      // Finalized and issued, no payments yet
	InvoiceStatusPartial   InvoiceStatus = "PARTIAL"   // Partially paid, 0 < balance < total
	InvoiceStatusPaid      InvoiceStatus = "PAID"      // Fully paid, balance = 0
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"   // Past due date with balance outstanding
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED" // Cancelled before any payment
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartial,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice is in a terminal state
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// CanApplyPayment returns true if payments can be applied in this status
func (s InvoiceStatus) CanApplyPayment() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusPartial || s == InvoiceStatusOverdue
}

// CanEdit returns true if line items may still be modified
func (s InvoiceStatus) CanEdit() bool {
	return s == InvoiceStatusDraft
}

// Invoice represents an invoice aggregate root. It owns its line items;
// totals are committed at finalization and may only change through draft
// edits. BalanceDue is always derived from Total and PaidAmount, never
// stored independently.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	ClientName    string          `json:"client_name"`
	LineItems     []LineItem      `json:"line_items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        InvoiceStatus   `json:"status"`
	DueDate       *time.Time      `json:"due_date"`
	IssuedAt      *time.Time      `json:"issued_at"`
	PaidAt        *time.Time      `json:"paid_at"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
	CancelReason  string          `json:"cancel_reason"`
}

// NewInvoice creates a new draft invoice for a client
func NewInvoice(clientID uuid.UUID, clientName string, dueDate *time.Time) (*Invoice, error) {
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if clientName == "" {
		return nil, shared.NewDomainError("INVALID_CLIENT_NAME", "Client name cannot be empty")
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ClientID:          clientID,
		ClientName:        clientName,
		LineItems:         make([]LineItem, 0),
		Subtotal:          decimal.Zero,
		TotalDiscount:     decimal.Zero,
		TotalTax:          decimal.Zero,
		Total:             decimal.Zero,
		PaidAmount:        decimal.Zero,
		Status:            InvoiceStatusDraft,
		DueDate:           dueDate,
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

// BalanceDue returns the outstanding balance, derived from Total and
// PaidAmount so the two can never drift apart.
func (inv *Invoice) BalanceDue() decimal.Decimal {
	return inv.Total.Sub(inv.PaidAmount)
}

// GetBalanceDueMoney returns the outstanding balance as Money
func (inv *Invoice) GetBalanceDueMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.BalanceDue())
}

// AddLineItem appends a line item and recomputes totals.
// Only allowed while the invoice is a draft.
func (inv *Invoice) AddLineItem(item LineItem) error {
	if !inv.Status.CanEdit() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify line items of invoice in %s status", inv.Status))
	}
	if err := item.Validate(); err != nil {
		return err
	}
	item.InvoiceID = inv.ID
	inv.LineItems = append(inv.LineItems, item)
	return inv.recalculate()
}

// RemoveLineItem removes a line item by ID and recomputes totals.
// Only allowed while the invoice is a draft.
func (inv *Invoice) RemoveLineItem(itemID uuid.UUID) error {
	if !inv.Status.CanEdit() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify line items of invoice in %s status", inv.Status))
	}
	for i := range inv.LineItems {
		if inv.LineItems[i].ID == itemID {
			inv.LineItems = append(inv.LineItems[:i], inv.LineItems[i+1:]...)
			return inv.recalculate()
		}
	}
	return shared.NewDomainError("NOT_FOUND", "Line item not found on invoice")
}

// recalculate recomputes the committed totals from the line items
func (inv *Invoice) recalculate() error {
	totals, err := CalculateInvoiceTotal(inv.LineItems)
	if err != nil {
		return err
	}
	inv.Subtotal = totals.Subtotal
	inv.TotalDiscount = totals.TotalDiscount
	inv.TotalTax = totals.TotalTax
	inv.Total = totals.Total
	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()
	return nil
}

// Finalize transitions the invoice from draft to sent, assigning its
// invoice number and freezing the totals.
func (inv *Invoice) Finalize(invoiceNumber string) error {
	if inv.Status != InvoiceStatusDraft {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot finalize invoice in %s status", inv.Status))
	}
	if invoiceNumber == "" {
		return shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if err := inv.recalculate(); err != nil {
		return err
	}

	now := time.Now()
	inv.InvoiceNumber = invoiceNumber
	inv.Status = InvoiceStatusSent
	inv.IssuedAt = &now
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceFinalizedEvent(inv))

	return nil
}

// ApplyPayment records a payment against the invoice and moves the status
// to PARTIAL or PAID. The amount may never exceed the outstanding balance;
// overpayment handling is the transaction manager's job, not the invoice's.
func (inv *Invoice) ApplyPayment(amount valueobject.Money, paymentID uuid.UUID) error {
	if !inv.Status.CanApplyPayment() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot apply payment to invoice in %s status", inv.Status))
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if amount.Amount().GreaterThan(inv.BalanceDue()) {
		return shared.NewDomainError("EXCEEDS_BALANCE", fmt.Sprintf("Payment amount %s exceeds balance due %s",
			amount.Amount().StringFixed(2), inv.BalanceDue().StringFixed(2)))
	}
	if paymentID == uuid.Nil {
		return shared.NewDomainError("INVALID_PAYMENT", "Payment ID cannot be empty")
	}

	inv.PaidAmount = inv.PaidAmount.Add(amount.Amount())

	if inv.BalanceDue().IsZero() {
		now := time.Now()
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &now
		inv.AddDomainEvent(NewInvoicePaidEvent(inv, paymentID))
	} else {
		inv.Status = InvoiceStatusPartial
		inv.AddDomainEvent(NewInvoicePartiallyPaidEvent(inv, paymentID, amount))
	}

	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()

	return nil
}

// MarkOverdue flags an unpaid invoice past its due date
func (inv *Invoice) MarkOverdue(now time.Time) error {
	if inv.Status != InvoiceStatusSent && inv.Status != InvoiceStatusPartial {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark invoice in %s status overdue", inv.Status))
	}
	if inv.DueDate == nil || !now.After(*inv.DueDate) {
		return shared.NewDomainError("NOT_DUE", "Invoice is not past its due date")
	}

	inv.Status = InvoiceStatusOverdue
	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceOverdueEvent(inv))

	return nil
}

// Cancel cancels the invoice (only if no payments have been applied)
func (inv *Invoice) Cancel(reason string) error {
	if inv.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel invoice in %s status", inv.Status))
	}
	if inv.PaidAmount.GreaterThan(decimal.Zero) {
		return shared.NewDomainError("HAS_PAYMENTS", "Cannot cancel invoice with existing payments")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Cancel reason is required")
	}

	now := time.Now()
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = reason
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceCancelledEvent(inv))

	return nil
}

// IsOverdue returns true if the invoice is past its due date and unpaid
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.Status.IsTerminal() || inv.DueDate == nil {
		return false
	}
	return now.After(*inv.DueDate)
}

// GetTotalMoney returns the total as Money
func (inv *Invoice) GetTotalMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.Total)
}

// GetPaidAmountMoney returns the paid amount as Money
func (inv *Invoice) GetPaidAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.PaidAmount)
}
