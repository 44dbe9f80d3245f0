package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InvoiceCreatedEvent is raised when a new invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID  uuid.UUID       `json:"invoice_id"`
	ClientID   uuid.UUID       `json:"client_id"`
	ClientName string          `json:"client_name"`
	Total      decimal.Decimal `json:"total"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string {
	return "InvoiceCreated"
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCreated", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		ClientID:        inv.ClientID,
		ClientName:      inv.ClientName,
		Total:           inv.Total,
		DueDate:         inv.DueDate,
	}
}

// InvoiceFinalizedEvent is raised when a draft invoice is finalized and issued
type InvoiceFinalizedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	Total         decimal.Decimal `json:"total"`
	IssuedAt      time.Time       `json:"issued_at"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
}

// EventType returns the event type name
func (e *InvoiceFinalizedEvent) EventType() string {
	return "InvoiceFinalized"
}

// NewInvoiceFinalizedEvent creates a new InvoiceFinalizedEvent
func NewInvoiceFinalizedEvent(inv *Invoice) *InvoiceFinalizedEvent {
	issuedAt := time.Now()
	if inv.IssuedAt != nil {
		issuedAt = *inv.IssuedAt
	}
	return &InvoiceFinalizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceFinalized", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		Total:           inv.Total,
		IssuedAt:        issuedAt,
		DueDate:         inv.DueDate,
	}
}

// InvoicePaidEvent is raised when an invoice is fully paid
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaidAt        time.Time       `json:"paid_at"`
}

// EventType returns the event type name
func (e *InvoicePaidEvent) EventType() string {
	return "InvoicePaid"
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice, paymentID uuid.UUID) *InvoicePaidEvent {
	paidAt := time.Now()
	if inv.PaidAt != nil {
		paidAt = *inv.PaidAt
	}
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaid", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		PaymentID:       paymentID,
		Total:           inv.Total,
		PaidAmount:      inv.PaidAmount,
		PaidAt:          paidAt,
	}
}

// InvoicePartiallyPaidEvent is raised when a partial payment is applied
type InvoicePartiallyPaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
}

// EventType returns the event type name
func (e *InvoicePartiallyPaidEvent) EventType() string {
	return "InvoicePartiallyPaid"
}

// NewInvoicePartiallyPaidEvent creates a new InvoicePartiallyPaidEvent
func NewInvoicePartiallyPaidEvent(inv *Invoice, paymentID uuid.UUID, amount valueobject.Money) *InvoicePartiallyPaidEvent {
	return &InvoicePartiallyPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePartiallyPaid", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		PaymentID:       paymentID,
		PaymentAmount:   amount.Amount(),
		Total:           inv.Total,
		PaidAmount:      inv.PaidAmount,
		BalanceDue:      inv.BalanceDue(),
	}
}

// InvoiceOverdueEvent is raised when an invoice passes its due date unpaid
type InvoiceOverdueEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
}

// EventType returns the event type name
func (e *InvoiceOverdueEvent) EventType() string {
	return "InvoiceOverdue"
}

// NewInvoiceOverdueEvent creates a new InvoiceOverdueEvent
func NewInvoiceOverdueEvent(inv *Invoice) *InvoiceOverdueEvent {
	return &InvoiceOverdueEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceOverdue", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		BalanceDue:      inv.BalanceDue(),
		DueDate:         inv.DueDate,
	}
}

// InvoiceCancelledEvent is raised when an invoice is cancelled
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	Total         decimal.Decimal `json:"total"`
	CancelReason  string          `json:"cancel_reason"`
	CancelledAt   time.Time       `json:"cancelled_at"`
}

// EventType returns the event type name
func (e *InvoiceCancelledEvent) EventType() string {
	return "InvoiceCancelled"
}

// NewInvoiceCancelledEvent creates a new InvoiceCancelledEvent
func NewInvoiceCancelledEvent(inv *Invoice) *InvoiceCancelledEvent {
	cancelledAt := time.Now()
	if inv.CancelledAt != nil {
		cancelledAt = *inv.CancelledAt
	}
	return &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCancelled", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		Total:           inv.Total,
		CancelReason:    inv.CancelReason,
		CancelledAt:     cancelledAt,
	}
}

// PaymentReceivedEvent is raised when a payment attempt is recorded
type PaymentReceivedEvent struct {
	shared.BaseDomainEvent
	PaymentID  uuid.UUID       `json:"payment_id"`
	ClientID   uuid.UUID       `json:"client_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	Reference  string          `json:"reference"`
	ReceivedAt time.Time       `json:"received_at"`
}

// EventType returns the event type name
func (e *PaymentReceivedEvent) EventType() string {
	return "PaymentReceived"
}

// NewPaymentReceivedEvent creates a new PaymentReceivedEvent
func NewPaymentReceivedEvent(p *Payment) *PaymentReceivedEvent {
	return &PaymentReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentReceived", "Payment", p.ID),
		PaymentID:       p.ID,
		ClientID:        p.ClientID,
		Amount:          p.Amount,
		Method:          p.Method,
		Reference:       p.Reference,
		ReceivedAt:      p.ReceivedAt,
	}
}

// PaymentCommittedEvent is raised when a payment attempt commits successfully
type PaymentCommittedEvent struct {
	shared.BaseDomainEvent
	PaymentID       uuid.UUID       `json:"payment_id"`
	ClientID        uuid.UUID       `json:"client_id"`
	Amount          decimal.Decimal `json:"amount"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	CreditedAmount  decimal.Decimal `json:"credited_amount"`
	AllocationCount int             `json:"allocation_count"`
	CommittedAt     time.Time       `json:"committed_at"`
}

// EventType returns the event type name
func (e *PaymentCommittedEvent) EventType() string {
	return "PaymentCommitted"
}

// NewPaymentCommittedEvent creates a new PaymentCommittedEvent
func NewPaymentCommittedEvent(p *Payment) *PaymentCommittedEvent {
	committedAt := time.Now()
	if p.CommittedAt != nil {
		committedAt = *p.CommittedAt
	}
	return &PaymentCommittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentCommitted", "Payment", p.ID),
		PaymentID:       p.ID,
		ClientID:        p.ClientID,
		Amount:          p.Amount,
		AllocatedAmount: p.AllocatedAmount,
		CreditedAmount:  p.CreditedAmount,
		AllocationCount: len(p.Allocations),
		CommittedAt:     committedAt,
	}
}

// OverpaymentCreditedEvent is raised when the surplus of a payment is
// converted into a client credit
type OverpaymentCreditedEvent struct {
	shared.BaseDomainEvent
	PaymentID    uuid.UUID       `json:"payment_id"`
	ClientID     uuid.UUID       `json:"client_id"`
	CreditID     uuid.UUID       `json:"credit_id"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
}

// EventType returns the event type name
func (e *OverpaymentCreditedEvent) EventType() string {
	return "OverpaymentCredited"
}

// NewOverpaymentCreditedEvent creates a new OverpaymentCreditedEvent
func NewOverpaymentCreditedEvent(p *Payment, creditID uuid.UUID, amount valueobject.Money) *OverpaymentCreditedEvent {
	return &OverpaymentCreditedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("OverpaymentCredited", "Payment", p.ID),
		PaymentID:       p.ID,
		ClientID:        p.ClientID,
		CreditID:        creditID,
		CreditAmount:    amount.Amount(),
	}
}

// CreditCreatedEvent is raised when a client credit is created
type CreditCreatedEvent struct {
	shared.BaseDomainEvent
	CreditID        uuid.UUID       `json:"credit_id"`
	ClientID        uuid.UUID       `json:"client_id"`
	SourcePaymentID uuid.UUID       `json:"source_payment_id"`
	Amount          decimal.Decimal `json:"amount"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
}

// EventType returns the event type name
func (e *CreditCreatedEvent) EventType() string {
	return "CreditCreated"
}

// NewCreditCreatedEvent creates a new CreditCreatedEvent
func NewCreditCreatedEvent(c *Credit) *CreditCreatedEvent {
	return &CreditCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CreditCreated", "Credit", c.ID),
		CreditID:        c.ID,
		ClientID:        c.ClientID,
		SourcePaymentID: c.SourcePaymentID,
		Amount:          c.Amount,
		ExpiresAt:       c.ExpiresAt,
	}
}

// CreditConsumedEvent is raised when a credit is drawn down
type CreditConsumedEvent struct {
	shared.BaseDomainEvent
	CreditID        uuid.UUID       `json:"credit_id"`
	ClientID        uuid.UUID       `json:"client_id"`
	ConsumedAmount  decimal.Decimal `json:"consumed_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	FullyConsumed   bool            `json:"fully_consumed"`
}

// EventType returns the event type name
func (e *CreditConsumedEvent) EventType() string {
	return "CreditConsumed"
}

// NewCreditConsumedEvent creates a new CreditConsumedEvent
func NewCreditConsumedEvent(c *Credit, consumed valueobject.Money) *CreditConsumedEvent {
	return &CreditConsumedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CreditConsumed", "Credit", c.ID),
		CreditID:        c.ID,
		ClientID:        c.ClientID,
		ConsumedAmount:  consumed.Amount(),
		RemainingAmount: c.RemainingAmount,
		FullyConsumed:   c.Status == CreditStatusUsed,
	}
}
