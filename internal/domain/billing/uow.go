package billing

import "context"

// Repositories bundles the billing repositories bound to one transaction
type Repositories struct {
	Invoices InvoiceRepository
	Payments PaymentRepository
	Credits  CreditRepository
	Audit    AuditLogRepository
}

// UnitOfWork executes a function inside a single database transaction.
// Every repository handed to fn operates on that transaction; if fn
// returns an error the whole transaction rolls back.
type UnitOfWork interface {
	// Execute runs fn in a read-committed transaction
	Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error

	// ExecuteSerializable runs fn at serializable isolation. Payment
	// processing uses this level so concurrent attempts against the same
	// invoices cannot interleave.
	ExecuteSerializable(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
