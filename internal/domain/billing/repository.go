package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	ClientID  *uuid.UUID       // Filter by client
	Status    *InvoiceStatus   // Filter by status
	FromDate  *time.Time       // Filter by creation date range start
	ToDate    *time.Time       // Filter by creation date range end
	DueFrom   *time.Time       // Filter by due date range start
	DueTo     *time.Time       // Filter by due date range end
	Overdue   *bool            // Filter only overdue invoices
	MinAmount *decimal.Decimal // Filter by minimum balance due
	MaxAmount *decimal.Decimal // Filter by maximum balance due
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDForUpdate finds an invoice by ID acquiring a row lock.
	// Must be called inside a transaction.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDsForUpdate finds multiple invoices acquiring row locks in a
	// deterministic order. Must be called inside a transaction.
	FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]Invoice, error)

	// FindByInvoiceNumber finds an invoice by its number
	FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)

	// FindAll finds invoices with filtering
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// FindByClient finds invoices for a client
	FindByClient(ctx context.Context, clientID uuid.UUID, filter InvoiceFilter) ([]Invoice, error)

	// FindOpenByClient finds payable (SENT, PARTIAL, OVERDUE) invoices for a
	// client with an outstanding balance
	FindOpenByClient(ctx context.Context, clientID uuid.UUID) ([]Invoice, error)

	// FindOverdueCandidates finds SENT and PARTIAL invoices whose due date
	// has passed as of the given time
	FindOverdueCandidates(ctx context.Context, asOf time.Time) ([]Invoice, error)

	// Save creates or updates an invoice
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, invoice *Invoice) error

	// Delete soft deletes an invoice
	Delete(ctx context.Context, id uuid.UUID) error

	// Count counts invoices matching the filter
	Count(ctx context.Context, filter InvoiceFilter) (int64, error)

	// SumBalanceByClient calculates the total outstanding balance for a client
	SumBalanceByClient(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error)

	// ExistsByInvoiceNumber checks if an invoice number is already taken
	ExistsByInvoiceNumber(ctx context.Context, invoiceNumber string) (bool, error)

	// NextInvoiceSequence atomically reserves the next invoice number
	// sequence value
	NextInvoiceSequence(ctx context.Context) (int64, error)
}

// PaymentFilter defines filtering options for payment queries
type PaymentFilter struct {
	shared.Filter
	ClientID  *uuid.UUID     // Filter by client
	Status    *PaymentStatus // Filter by status
	Method    *PaymentMethod // Filter by method
	FromDate  *time.Time     // Filter by received date range start
	ToDate    *time.Time     // Filter by received date range end
	Reference *string        // Filter by external reference
}

// PaymentRepository defines the interface for payment persistence
type PaymentRepository interface {
	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByIdempotencyKey finds a payment by its idempotency key.
	// Returns shared.ErrNotFound when no payment carries the key.
	FindByIdempotencyKey(ctx context.Context, key string) (*Payment, error)

	// FindAll finds payments with filtering
	FindAll(ctx context.Context, filter PaymentFilter) ([]Payment, error)

	// FindByClient finds payments for a client
	FindByClient(ctx context.Context, clientID uuid.UUID, filter PaymentFilter) ([]Payment, error)

	// FindByInvoice finds payments that allocated to a given invoice
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)

	// Save creates or updates a payment together with its allocations
	Save(ctx context.Context, payment *Payment) error

	// Count counts payments matching the filter
	Count(ctx context.Context, filter PaymentFilter) (int64, error)
}

// CreditFilter defines filtering options for credit queries
type CreditFilter struct {
	shared.Filter
	ClientID        *uuid.UUID    // Filter by client
	Status          *CreditStatus // Filter by status
	SourcePaymentID *uuid.UUID    // Filter by originating payment
}

// CreditRepository defines the interface for client credit persistence
type CreditRepository interface {
	// FindByID finds a credit by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Credit, error)

	// FindActiveByClient finds a client's active credits ordered oldest
	// first, so consumption drains the earliest credit before later ones
	FindActiveByClient(ctx context.Context, clientID uuid.UUID) ([]Credit, error)

	// FindActiveByClientForUpdate is FindActiveByClient with row locks.
	// Must be called inside a transaction.
	FindActiveByClientForUpdate(ctx context.Context, clientID uuid.UUID) ([]Credit, error)

	// FindAll finds credits with filtering
	FindAll(ctx context.Context, filter CreditFilter) ([]Credit, error)

	// FindExpiryCandidates finds active credits whose expiry has passed
	FindExpiryCandidates(ctx context.Context, asOf time.Time) ([]Credit, error)

	// Save creates or updates a credit
	Save(ctx context.Context, credit *Credit) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, credit *Credit) error

	// SumRemainingByClient calculates the total consumable credit for a client
	SumRemainingByClient(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error)
}

// AuditEntry records a billing operation for later inspection. Audit
// writes are best-effort and never fail the underlying operation.
type AuditEntry struct {
	ID         uuid.UUID              `json:"id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	ClientID   *uuid.UUID             `json:"client_id,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// AuditFilter defines filtering options for audit queries
type AuditFilter struct {
	shared.Filter
	Action     *string    // Filter by action name
	EntityType *string    // Filter by entity type
	EntityID   *uuid.UUID // Filter by entity
	ClientID   *uuid.UUID // Filter by client
	FromDate   *time.Time // Filter by occurrence range start
	ToDate     *time.Time // Filter by occurrence range end
}

// AuditLogRepository defines the interface for audit trail persistence
type AuditLogRepository interface {
	// Record appends an audit entry
	Record(ctx context.Context, entry *AuditEntry) error

	// FindAll finds audit entries with filtering, newest first
	FindAll(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)

	// Count counts audit entries matching the filter
	Count(ctx context.Context, filter AuditFilter) (int64, error)
}

// PricingResolver resolves the unit price for a service code when a line
// item is submitted without an explicit price.
type PricingResolver interface {
	// ResolveUnitPrice returns the unit price for a service code as of the
	// given service date. A client with contract pricing gets its negotiated
	// rate; uuid.Nil or a client without one falls back to the standard
	// price list. Returns shared.ErrNotFound for unknown codes.
	ResolveUnitPrice(ctx context.Context, clientID uuid.UUID, serviceCode string, serviceDate time.Time) (decimal.Decimal, error)
}
