package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InvoiceService handles invoice lifecycle: draft creation, line item
// edits, finalization with number assignment, benefit previews, the
// overdue sweep and cancellation.
type InvoiceService struct {
	uow            billing.UnitOfWork
	pricing        billing.PricingResolver
	numberPrefix   string
	numberWidth    int
	defaultDueDays int
	logger         *zap.Logger
}

// InvoiceServiceOption is a functional option for configuring InvoiceService
type InvoiceServiceOption func(*InvoiceService)

// WithInvoiceNumbering overrides the invoice number prefix and width
func WithInvoiceNumbering(prefix string, width int) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.numberPrefix = prefix
		s.numberWidth = width
	}
}

// WithDefaultDueDays sets the due period applied when a request has no due date
func WithDefaultDueDays(days int) InvoiceServiceOption {
	return func(s *InvoiceService) {
		if days > 0 {
			s.defaultDueDays = days
		}
	}
}

// WithPricingResolver sets the fallback source for unit prices on line
// items that arrive without one
func WithPricingResolver(resolver billing.PricingResolver) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.pricing = resolver
	}
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(uow billing.UnitOfWork, logger *zap.Logger, opts ...InvoiceServiceOption) *InvoiceService {
	s := &InvoiceService{
		uow:            uow,
		numberPrefix:   billing.DefaultInvoiceNumberPrefix,
		numberWidth:    billing.DefaultInvoiceNumberWidth,
		defaultDueDays: 30,
		logger:         logger.Named("invoice_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LineItemRequest describes one billable service line on an incoming invoice
type LineItemRequest struct {
	ServiceCode  string           `json:"service_code" binding:"required"`
	Description  string           `json:"description"`
	ServiceDate  time.Time        `json:"service_date"`
	Quantity     decimal.Decimal  `json:"quantity" binding:"required"`
	UnitPrice    *decimal.Decimal `json:"unit_price"` // nil means resolve from the price list
	DiscountRate decimal.Decimal  `json:"discount_rate"`
	TaxRate      decimal.Decimal  `json:"tax_rate"`
}

// CreateInvoiceRequest represents a request to create a draft invoice
type CreateInvoiceRequest struct {
	ClientID   uuid.UUID         `json:"client_id" binding:"required"`
	ClientName string            `json:"client_name" binding:"required"`
	DueDate    *time.Time        `json:"due_date"`
	LineItems  []LineItemRequest `json:"line_items"`
}

// CreateInvoice creates a draft invoice with its initial line items.
// Line items without a unit price are priced through the resolver.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*billing.Invoice, error) {
	dueDate := req.DueDate
	if dueDate == nil {
		d := time.Now().AddDate(0, 0, s.defaultDueDays)
		dueDate = &d
	}

	invoice, err := billing.NewInvoice(req.ClientID, req.ClientName, dueDate)
	if err != nil {
		return nil, err
	}

	for _, lr := range req.LineItems {
		item, err := s.buildLineItem(ctx, req.ClientID, lr)
		if err != nil {
			return nil, err
		}
		if err := invoice.AddLineItem(*item); err != nil {
			return nil, err
		}
	}

	err = s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		return repos.Invoices.Save(ctx, invoice)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist invoice: %w", err)
	}

	s.logger.Info("draft invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("client_id", invoice.ClientID.String()),
		zap.String("total", invoice.Total.StringFixed(2)),
		zap.Int("line_items", len(invoice.LineItems)))

	return invoice, nil
}

// buildLineItem turns a request line into a validated domain line item,
// resolving the unit price for the client when the caller did not supply one
func (s *InvoiceService) buildLineItem(ctx context.Context, clientID uuid.UUID, lr LineItemRequest) (*billing.LineItem, error) {
	unitPrice := decimal.Zero
	if lr.UnitPrice != nil {
		unitPrice = *lr.UnitPrice
	} else {
		if s.pricing == nil {
			return nil, shared.NewDomainError("NO_PRICE",
				fmt.Sprintf("No unit price given for service %s and no price list is configured", lr.ServiceCode))
		}
		resolved, err := s.pricing.ResolveUnitPrice(ctx, clientID, lr.ServiceCode, lr.ServiceDate)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve price for service %s: %w", lr.ServiceCode, err)
		}
		unitPrice = resolved
	}

	item, err := billing.NewLineItem(lr.ServiceCode, lr.Quantity, unitPrice, lr.DiscountRate, lr.TaxRate)
	if err != nil {
		return nil, err
	}
	item.Description = lr.Description
	item.ServiceDate = lr.ServiceDate
	return item, nil
}

// AddLineItem appends a line item to a draft invoice
func (s *InvoiceService) AddLineItem(ctx context.Context, invoiceID uuid.UUID, lr LineItemRequest) (*billing.Invoice, error) {
	var invoice *billing.Invoice
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		invoice, err = repos.Invoices.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		item, err := s.buildLineItem(ctx, invoice.ClientID, lr)
		if err != nil {
			return err
		}
		if err := invoice.AddLineItem(*item); err != nil {
			return err
		}
		return repos.Invoices.Save(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// RemoveLineItem removes a line item from a draft invoice
func (s *InvoiceService) RemoveLineItem(ctx context.Context, invoiceID, itemID uuid.UUID) (*billing.Invoice, error) {
	var invoice *billing.Invoice
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		invoice, err = repos.Invoices.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := invoice.RemoveLineItem(itemID); err != nil {
			return err
		}
		return repos.Invoices.Save(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// FinalizeInvoice assigns the next invoice number and transitions the
// draft to SENT. Number assignment and the status change share one
// transaction so a crash cannot burn a number without issuing it.
func (s *InvoiceService) FinalizeInvoice(ctx context.Context, invoiceID uuid.UUID) (*billing.Invoice, error) {
	var invoice *billing.Invoice
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		invoice, err = repos.Invoices.FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}

		seq, err := repos.Invoices.NextInvoiceSequence(ctx)
		if err != nil {
			return fmt.Errorf("failed to reserve invoice number: %w", err)
		}
		number := billing.FormatInvoiceNumber(seq, s.numberPrefix, s.numberWidth)

		if err := invoice.Finalize(number); err != nil {
			return err
		}
		return repos.Invoices.SaveWithLock(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice finalized",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("total", invoice.Total.StringFixed(2)))

	return invoice, nil
}

// CancelInvoice cancels an invoice that has received no payments
func (s *InvoiceService) CancelInvoice(ctx context.Context, invoiceID uuid.UUID, reason string) (*billing.Invoice, error) {
	var invoice *billing.Invoice
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		invoice, err = repos.Invoices.FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := invoice.Cancel(reason); err != nil {
			return err
		}
		return repos.Invoices.SaveWithLock(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice cancelled",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("reason", reason))

	return invoice, nil
}

// CalculateBenefits previews what insurance would cover on the invoice's
// current balance without touching any state
func (s *InvoiceService) CalculateBenefits(ctx context.Context, invoiceID uuid.UUID, primary, secondary *billing.InsuranceAdjustment) (*billing.BenefitsResult, error) {
	var result *billing.BenefitsResult
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		invoice, err := repos.Invoices.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		result, err = billing.CoordinateBenefits(invoice.BalanceDue(), primary, secondary)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CalculateTotals prices and values a set of line items without creating
// an invoice. Line items without a unit price go through the resolver;
// pass uuid.Nil as the client to quote from the standard price list.
func (s *InvoiceService) CalculateTotals(ctx context.Context, clientID uuid.UUID, items []LineItemRequest) (*billing.InvoiceTotals, error) {
	lineItems := make([]billing.LineItem, 0, len(items))
	for _, lr := range items {
		item, err := s.buildLineItem(ctx, clientID, lr)
		if err != nil {
			return nil, err
		}
		lineItems = append(lineItems, *item)
	}
	return billing.CalculateInvoiceTotal(lineItems)
}

// CoordinateBenefits runs the insurance pipeline against a raw charge total
func (s *InvoiceService) CoordinateBenefits(total decimal.Decimal, primary, secondary *billing.InsuranceAdjustment) (*billing.BenefitsResult, error) {
	return billing.CoordinateBenefits(total, primary, secondary)
}

// MarkOverdueInvoices sweeps invoices past their due date into OVERDUE.
// Returns how many invoices were flagged.
func (s *InvoiceService) MarkOverdueInvoices(ctx context.Context, now time.Time) (int, error) {
	marked := 0
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		candidates, err := repos.Invoices.FindOverdueCandidates(ctx, now)
		if err != nil {
			return err
		}
		for i := range candidates {
			if err := candidates[i].MarkOverdue(now); err != nil {
				// A concurrent payment may have settled the invoice between
				// the scan and this check; skip it.
				s.logger.Debug("skipping overdue candidate",
					zap.String("invoice_id", candidates[i].ID.String()),
					zap.Error(err))
				continue
			}
			if err := repos.Invoices.Save(ctx, &candidates[i]); err != nil {
				return fmt.Errorf("failed to persist overdue invoice %s: %w", candidates[i].InvoiceNumber, err)
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		s.logger.Info("invoices marked overdue", zap.Int("count", marked))
	}
	return marked, nil
}

// GetInvoice fetches an invoice by ID
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var invoice *billing.Invoice
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		invoice, err = repos.Invoices.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// ListInvoices lists invoices matching the filter
func (s *InvoiceService) ListInvoices(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int64, error) {
	var invoices []billing.Invoice
	var total int64
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		invoices, err = repos.Invoices.FindAll(ctx, filter)
		if err != nil {
			return err
		}
		total, err = repos.Invoices.Count(ctx, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// GetClientBalance returns the client's total outstanding balance across
// open invoices
func (s *InvoiceService) GetClientBalance(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		balance, err = repos.Invoices.SumBalanceByClient(ctx, clientID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}
