package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RetryConfig bounds the retry loop around transient lock conflicts.
// Only errors shared.IsRetryable accepts are retried; business failures
// such as DUPLICATE_PAYMENT are terminal on the first occurrence.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the default retry bounds for payment processing
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
	}
}

// PaymentService orchestrates payment processing: idempotency, locking,
// allocation, overpayment-to-credit conversion and audit, all inside a
// single serializable transaction per attempt.
type PaymentService struct {
	uow              billing.UnitOfWork
	allocationSvc    *billing.AllocationService
	idempotencyStore shared.IdempotencyStore
	idempotencyCfg   shared.IdempotencyConfig
	retryCfg         RetryConfig
	creditTTL        time.Duration // zero means credits never expire
	logger           *zap.Logger
}

// PaymentServiceOption is a functional option for configuring PaymentService
type PaymentServiceOption func(*PaymentService)

// WithRetryConfig overrides the retry bounds
func WithRetryConfig(cfg RetryConfig) PaymentServiceOption {
	return func(s *PaymentService) {
		if cfg.MaxAttempts > 0 {
			s.retryCfg = cfg
		}
	}
}

// WithIdempotencyStore enables the fast-path duplicate filter
func WithIdempotencyStore(store shared.IdempotencyStore, cfg shared.IdempotencyConfig) PaymentServiceOption {
	return func(s *PaymentService) {
		s.idempotencyStore = store
		s.idempotencyCfg = cfg
	}
}

// WithCreditTTL sets how long overpayment credits stay consumable
func WithCreditTTL(ttl time.Duration) PaymentServiceOption {
	return func(s *PaymentService) {
		s.creditTTL = ttl
	}
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	uow billing.UnitOfWork,
	allocationSvc *billing.AllocationService,
	logger *zap.Logger,
	opts ...PaymentServiceOption,
) *PaymentService {
	s := &PaymentService{
		uow:            uow,
		allocationSvc:  allocationSvc,
		idempotencyCfg: shared.DefaultIdempotencyConfig(),
		retryCfg:       DefaultRetryConfig(),
		logger:         logger.Named("payment_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessPaymentRequest represents a request to apply a payment
type ProcessPaymentRequest struct {
	ClientID   uuid.UUID
	InvoiceIDs []uuid.UUID
	Amount     decimal.Decimal
	Method     billing.PaymentMethod
	Reference  string
	Strategy   billing.AllocationStrategyType // empty means the service default
	// Primary and Secondary, when set, reduce each invoice's allocatable
	// balance to the post-coverage patient responsibility before the
	// allocation strategy runs.
	Primary   *billing.InsuranceAdjustment
	Secondary *billing.InsuranceAdjustment
	// AllowOverpayment permits paying against invoices whose balances are
	// already zero; the whole amount then becomes client credit. Without
	// it such a payment fails with INVOICE_ALREADY_PAID. Surplus beyond
	// open balances always converts to credit either way.
	AllowOverpayment bool
	ActorID          *uuid.UUID
}

// ProcessPaymentResult represents the outcome of a committed payment
type ProcessPaymentResult struct {
	PaymentID       uuid.UUID                   `json:"payment_id"`
	IdempotencyKey  string                      `json:"idempotency_key"`
	Allocations     []billing.PaymentAllocation `json:"allocations"`
	TotalAllocated  decimal.Decimal             `json:"total_allocated"`
	CreditID        *uuid.UUID                  `json:"credit_id,omitempty"`
	CreditedAmount  decimal.Decimal             `json:"credited_amount"`
	UpdatedInvoices []billing.Invoice           `json:"updated_invoices"`
}

// ProcessPayment applies a payment to the client's target invoices.
//
// Pipeline per attempt, all inside one serializable transaction:
// duplicate check on the idempotency key, row locks on every target
// invoice, balance revalidation under the locks, optional insurance
// coordination, strategy allocation, persistence, overpayment-to-credit,
// audit record, commit. Transient lock conflicts are retried with bounded
// exponential backoff; everything else fails the payment outright.
func (s *PaymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*ProcessPaymentResult, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	key := billing.ComputeIdempotencyKey(req.InvoiceIDs, req.Amount, req.Method, req.Reference)
	log := s.logger.With(
		zap.String("client_id", req.ClientID.String()),
		zap.String("idempotency_key", key),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("method", req.Method.String()),
	)

	// Fast-path duplicate filter. Authoritative dedupe still happens under
	// the transaction; this only spares the database a doomed attempt.
	if s.idempotencyStore != nil && s.idempotencyCfg.Enabled {
		seen, err := s.idempotencyStore.IsProcessed(ctx, key)
		if err != nil {
			log.Warn("idempotency store unavailable, falling through to database check", zap.Error(err))
		} else if seen {
			log.Info("duplicate payment rejected by idempotency store")
			return nil, shared.ErrDuplicatePayment
		}
	}

	var result *ProcessPaymentResult
	var err error
	for attempt := 1; ; attempt++ {
		result, err = s.processAttempt(ctx, req, key, log)
		if err == nil || !shared.IsRetryable(err) || attempt >= s.retryCfg.MaxAttempts {
			break
		}

		delay := s.backoff(attempt)
		log.Warn("transient conflict, retrying payment",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	if s.idempotencyStore != nil && s.idempotencyCfg.Enabled {
		if _, markErr := s.idempotencyStore.MarkProcessed(ctx, key, s.idempotencyCfg.TTL); markErr != nil {
			log.Warn("failed to mark idempotency key", zap.Error(markErr))
		}
	}

	log.Info("payment committed",
		zap.String("payment_id", result.PaymentID.String()),
		zap.String("total_allocated", result.TotalAllocated.StringFixed(2)),
		zap.String("credited", result.CreditedAmount.StringFixed(2)))

	return result, nil
}

// processAttempt runs one full transactional attempt of the pipeline
func (s *PaymentService) processAttempt(ctx context.Context, req ProcessPaymentRequest, key string, log *zap.Logger) (*ProcessPaymentResult, error) {
	payment, err := billing.NewPayment(req.ClientID, valueobject.NewMoneyUSD(req.Amount), req.Method, req.Reference, req.InvoiceIDs)
	if err != nil {
		return nil, err
	}

	var result *ProcessPaymentResult

	txErr := s.uow.ExecuteSerializable(ctx, func(ctx context.Context, repos billing.Repositories) error {
		// Authoritative duplicate check. The unique index on the key backs
		// this up even if two attempts race past the lookup.
		if existing, err := repos.Payments.FindByIdempotencyKey(ctx, key); err == nil && existing != nil {
			return shared.ErrDuplicatePayment
		} else if err != nil && !isNotFound(err) {
			return fmt.Errorf("idempotency lookup failed: %w", err)
		}

		if err := payment.Advance(); err != nil { // pending -> locking
			return err
		}

		invoices, err := repos.Invoices.FindByIDsForUpdate(ctx, req.InvoiceIDs)
		if err != nil {
			return fmt.Errorf("failed to lock invoices: %w", err)
		}
		if len(invoices) != len(req.InvoiceIDs) {
			return shared.NewDomainError("NOT_FOUND", "One or more target invoices do not exist")
		}
		for i := range invoices {
			if invoices[i].ClientID != req.ClientID {
				return shared.NewDomainError("INVALID_INPUT", "Invoice does not belong to the paying client")
			}
		}

		// Revalidate under the locks: a concurrent payment may have drained
		// the balances after the caller composed this request.
		totalBalance := decimal.Zero
		for i := range invoices {
			if invoices[i].Status.CanApplyPayment() {
				totalBalance = totalBalance.Add(invoices[i].BalanceDue())
			}
		}
		if totalBalance.IsZero() && !req.AllowOverpayment {
			return shared.ErrInvoiceAlreadyPaid
		}

		if err := payment.Advance(); err != nil { // locking -> allocating
			return err
		}

		targets := invoices
		if req.Primary != nil || req.Secondary != nil {
			targets, err = s.applyCoverage(invoices, req.Primary, req.Secondary)
			if err != nil {
				return err
			}
		}

		strategyType := req.Strategy
		if strategyType == "" {
			strategyType = s.allocationSvc.GetEffectiveStrategy(ctx, req.ClientID)
		}

		allocResult, err := s.allocationSvc.AllocatePayment(ctx, billing.AllocatePaymentRequest{
			Payment:      payment,
			Invoices:     targets,
			StrategyType: strategyType,
		})
		if err != nil {
			return err
		}

		// Coverage-reduced targets carry the adjusted balances; the real
		// invoices must receive the payment so persisted state is updated.
		updated, err := s.applyAllocations(invoices, payment, allocResult.Allocations, req.Primary != nil || req.Secondary != nil)
		if err != nil {
			return err
		}

		if err := payment.Advance(); err != nil { // allocating -> persisting
			return err
		}

		for i := range updated {
			if err := repos.Invoices.SaveWithLock(ctx, &updated[i]); err != nil {
				return fmt.Errorf("failed to persist invoice %s: %w", updated[i].InvoiceNumber, err)
			}
		}

		// Whatever the strategy could not place on an invoice comes back to
		// the client as credit, never silently absorbed.
		var creditID *uuid.UUID
		surplus := payment.UnallocatedAmount()
		if surplus.GreaterThan(decimal.Zero) {
			credit, err := s.createCredit(payment, surplus)
			if err != nil {
				return err
			}
			if err := repos.Credits.Save(ctx, credit); err != nil {
				return fmt.Errorf("failed to persist credit: %w", err)
			}
			creditID = &credit.ID
		}

		if err := payment.Commit(); err != nil {
			return err
		}
		if err := repos.Payments.Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to persist payment: %w", err)
		}

		// Audit is best-effort inside the transaction: a failed write is
		// logged, not fatal.
		s.recordAudit(ctx, repos.Audit, payment, updated, creditID, req.ActorID, log)

		result = &ProcessPaymentResult{
			PaymentID:       payment.ID,
			IdempotencyKey:  key,
			Allocations:     payment.Allocations,
			TotalAllocated:  payment.AllocatedAmount,
			CreditID:        creditID,
			CreditedAmount:  payment.CreditedAmount,
			UpdatedInvoices: updated,
		}
		return nil
	})

	if txErr != nil {
		payment.RollBack(txErr.Error())
		return nil, txErr
	}
	return result, nil
}

// applyCoverage replaces each invoice's allocatable balance with the
// post-coverage patient responsibility. The pipeline is explicit:
// balanceDue -> primary -> secondary(remaining) -> allocation input.
func (s *PaymentService) applyCoverage(invoices []billing.Invoice, primary, secondary *billing.InsuranceAdjustment) ([]billing.Invoice, error) {
	adjusted := make([]billing.Invoice, len(invoices))
	copy(adjusted, invoices)

	for i := range adjusted {
		benefits, err := billing.CoordinateBenefits(adjusted[i].BalanceDue(), primary, secondary)
		if err != nil {
			return nil, err
		}
		// Shrink the apparent balance by pretending the covered portion is
		// already paid. The copy never reaches persistence.
		adjusted[i].PaidAmount = adjusted[i].PaidAmount.Add(benefits.TotalCovered)
	}
	return adjusted, nil
}

// applyAllocations replays the computed allocations onto the locked
// invoice rows. Without insurance coverage the allocation service already
// mutated them and this is a no-op passthrough.
func (s *PaymentService) applyAllocations(invoices []billing.Invoice, payment *billing.Payment, allocations []billing.PaymentAllocation, coverageApplied bool) ([]billing.Invoice, error) {
	if !coverageApplied {
		byID := make(map[uuid.UUID]bool, len(allocations))
		for _, a := range allocations {
			byID[a.InvoiceID] = true
		}
		updated := make([]billing.Invoice, 0, len(allocations))
		for i := range invoices {
			if byID[invoices[i].ID] {
				updated = append(updated, invoices[i])
			}
		}
		return updated, nil
	}

	byID := make(map[uuid.UUID]*billing.Invoice, len(invoices))
	for i := range invoices {
		byID[invoices[i].ID] = &invoices[i]
	}

	updated := make([]billing.Invoice, 0, len(allocations))
	for _, alloc := range allocations {
		inv, ok := byID[alloc.InvoiceID]
		if !ok {
			continue
		}
		if err := inv.ApplyPayment(valueobject.NewMoneyUSD(alloc.Amount), payment.ID); err != nil {
			return nil, fmt.Errorf("failed to apply payment to invoice %s: %w", inv.InvoiceNumber, err)
		}
		updated = append(updated, *inv)
	}
	return updated, nil
}

// createCredit converts the payment surplus into a client credit
func (s *PaymentService) createCredit(payment *billing.Payment, surplus decimal.Decimal) (*billing.Credit, error) {
	var expiresAt *time.Time
	if s.creditTTL > 0 {
		t := time.Now().Add(s.creditTTL)
		expiresAt = &t
	}
	credit, err := billing.NewCredit(payment.ClientID, payment.ID, valueobject.NewMoneyUSD(surplus), expiresAt)
	if err != nil {
		return nil, err
	}
	if err := payment.RecordCredit(valueobject.NewMoneyUSD(surplus), credit.ID); err != nil {
		return nil, err
	}
	return credit, nil
}

// recordAudit writes the audit entry for a committed payment
func (s *PaymentService) recordAudit(ctx context.Context, audit billing.AuditLogRepository, payment *billing.Payment, invoices []billing.Invoice, creditID *uuid.UUID, actorID *uuid.UUID, log *zap.Logger) {
	if audit == nil {
		return
	}

	invoiceStates := make([]map[string]interface{}, 0, len(invoices))
	for i := range invoices {
		invoiceStates = append(invoiceStates, map[string]interface{}{
			"invoice_id":     invoices[i].ID.String(),
			"invoice_number": invoices[i].InvoiceNumber,
			"paid_amount":    invoices[i].PaidAmount.StringFixed(2),
			"balance_due":    invoices[i].BalanceDue().StringFixed(2),
			"status":         invoices[i].Status.String(),
		})
	}

	detail := map[string]interface{}{
		"amount":          payment.Amount.StringFixed(2),
		"method":          payment.Method.String(),
		"reference":       payment.Reference,
		"allocated":       payment.AllocatedAmount.StringFixed(2),
		"credited":        payment.CreditedAmount.StringFixed(2),
		"idempotency_key": payment.IdempotencyKey,
		"invoices":        invoiceStates,
	}
	if creditID != nil {
		detail["credit_id"] = creditID.String()
	}
	if actorID != nil {
		detail["actor_id"] = actorID.String()
	}

	entry := &billing.AuditEntry{
		ID:         uuid.New(),
		Action:     "payment.processed",
		EntityType: "Payment",
		EntityID:   payment.ID,
		ClientID:   &payment.ClientID,
		Detail:     detail,
		OccurredAt: time.Now(),
	}
	if err := audit.Record(ctx, entry); err != nil {
		log.Warn("audit record failed", zap.Error(err))
	}
}

// ApplyCreditsToInvoice consumes the client's active credits oldest-first
// against the invoice balance, inside one serializable transaction so the
// same credit can never be spent twice under concurrency.
func (s *PaymentService) ApplyCreditsToInvoice(ctx context.Context, clientID, invoiceID uuid.UUID) (*ProcessPaymentResult, error) {
	if clientID == uuid.Nil || invoiceID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Client ID and invoice ID are required")
	}

	log := s.logger.With(
		zap.String("client_id", clientID.String()),
		zap.String("invoice_id", invoiceID.String()))

	var result *ProcessPaymentResult

	err := s.uow.ExecuteSerializable(ctx, func(ctx context.Context, repos billing.Repositories) error {
		invoice, err := repos.Invoices.FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.ClientID != clientID {
			return shared.NewDomainError("INVALID_INPUT", "Invoice does not belong to the client")
		}
		if invoice.BalanceDue().LessThanOrEqual(decimal.Zero) {
			return shared.ErrInvoiceAlreadyPaid
		}

		credits, err := repos.Credits.FindActiveByClientForUpdate(ctx, clientID)
		if err != nil {
			return fmt.Errorf("failed to lock credits: %w", err)
		}
		if len(credits) == 0 {
			return shared.NewDomainError("NO_CREDIT", "Client has no active credits")
		}

		available := decimal.Zero
		for i := range credits {
			available = available.Add(credits[i].RemainingAmount)
		}
		toApply := decimal.Min(available, invoice.BalanceDue())
		if toApply.LessThanOrEqual(decimal.Zero) {
			return shared.NewDomainError("NO_CREDIT", "Client has no consumable credit balance")
		}

		// Each draw gets a fresh reference so two legitimate applications
		// against the same invoice never collide on the idempotency index.
		payment, err := billing.NewPayment(clientID, valueobject.NewMoneyUSD(toApply),
			billing.PaymentMethodCredit, fmt.Sprintf("credit-draw:%s:%s", invoiceID, uuid.New()), []uuid.UUID{invoiceID})
		if err != nil {
			return err
		}
		if err := payment.Advance(); err != nil { // pending -> locking
			return err
		}
		if err := payment.Advance(); err != nil { // locking -> allocating
			return err
		}

		// Drain credits oldest-first until the invoice balance is covered
		remaining := toApply
		for i := range credits {
			if remaining.IsZero() {
				break
			}
			consumed, err := credits[i].Consume(valueobject.NewMoneyUSD(remaining))
			if err != nil {
				return err
			}
			remaining = remaining.Sub(consumed.Amount())
			if err := repos.Credits.SaveWithLock(ctx, &credits[i]); err != nil {
				return fmt.Errorf("failed to persist credit: %w", err)
			}
		}

		if _, err := payment.Allocate(invoice.ID, invoice.InvoiceNumber, valueobject.NewMoneyUSD(toApply)); err != nil {
			return err
		}
		if err := invoice.ApplyPayment(valueobject.NewMoneyUSD(toApply), payment.ID); err != nil {
			return err
		}
		if err := payment.Advance(); err != nil { // allocating -> persisting
			return err
		}

		if err := repos.Invoices.SaveWithLock(ctx, invoice); err != nil {
			return fmt.Errorf("failed to persist invoice: %w", err)
		}
		if err := payment.Commit(); err != nil {
			return err
		}
		if err := repos.Payments.Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to persist payment: %w", err)
		}

		s.recordAudit(ctx, repos.Audit, payment, []billing.Invoice{*invoice}, nil, nil, log)

		result = &ProcessPaymentResult{
			PaymentID:       payment.ID,
			IdempotencyKey:  payment.IdempotencyKey,
			Allocations:     payment.Allocations,
			TotalAllocated:  payment.AllocatedAmount,
			CreditedAmount:  decimal.Zero,
			UpdatedInvoices: []billing.Invoice{*invoice},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("credits applied to invoice",
		zap.String("payment_id", result.PaymentID.String()),
		zap.String("applied", result.TotalAllocated.StringFixed(2)))

	return result, nil
}

// RefundPaymentRequest represents a request to refund part of a
// committed payment
type RefundPaymentRequest struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	ActorID   *uuid.UUID      `json:"actor_id"`
}

// RefundResult holds the outcome of a refund
type RefundResult struct {
	Payment *billing.Payment `json:"payment"`
	Credit  *billing.Credit  `json:"credit"`
}

// RefundPayment reverses part of a committed payment by issuing a
// compensating credit linked to the source payment. Allocations are never
// deleted; the sum of credits issued against a payment, overpayment surplus
// included, can never exceed the payment amount.
func (s *PaymentService) RefundPayment(ctx context.Context, req RefundPaymentRequest) (*RefundResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Refund amount must be positive")
	}
	if req.Reason == "" {
		return nil, shared.NewDomainError("INVALID_REASON", "A reason is required to refund a payment")
	}

	log := s.logger.With(zap.String("payment_id", req.PaymentID.String()))

	var result *RefundResult

	err := s.uow.ExecuteSerializable(ctx, func(ctx context.Context, repos billing.Repositories) error {
		payment, err := repos.Payments.FindByID(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status != billing.PaymentStatusCommitted {
			return shared.NewDomainError("INVALID_STATE",
				fmt.Sprintf("Cannot refund payment in %s status", payment.Status))
		}

		issued, err := repos.Credits.FindAll(ctx, billing.CreditFilter{SourcePaymentID: &payment.ID})
		if err != nil {
			return fmt.Errorf("failed to load credits for payment: %w", err)
		}
		alreadyCredited := decimal.Zero
		for i := range issued {
			alreadyCredited = alreadyCredited.Add(issued[i].Amount)
		}
		if alreadyCredited.Add(req.Amount).GreaterThan(payment.Amount) {
			return shared.NewDomainError("EXCEEDS_PAYMENT",
				fmt.Sprintf("Refunding %s would exceed payment amount %s (already credited %s)",
					req.Amount.StringFixed(2), payment.Amount.StringFixed(2), alreadyCredited.StringFixed(2)))
		}

		credit, err := billing.NewCredit(payment.ClientID, payment.ID, valueobject.NewMoneyUSD(req.Amount), nil)
		if err != nil {
			return err
		}
		if err := repos.Credits.Save(ctx, credit); err != nil {
			return fmt.Errorf("failed to persist refund credit: %w", err)
		}

		if repos.Audit != nil {
			detail := map[string]interface{}{
				"amount":    req.Amount.StringFixed(2),
				"reason":    req.Reason,
				"credit_id": credit.ID.String(),
			}
			if req.ActorID != nil {
				detail["actor_id"] = req.ActorID.String()
			}
			entry := &billing.AuditEntry{
				ID:         uuid.New(),
				Action:     "payment.refunded",
				EntityType: "Payment",
				EntityID:   payment.ID,
				ClientID:   &payment.ClientID,
				Detail:     detail,
				OccurredAt: time.Now(),
			}
			if err := repos.Audit.Record(ctx, entry); err != nil {
				log.Warn("audit record failed", zap.Error(err))
			}
		}

		result = &RefundResult{Payment: payment, Credit: credit}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("payment refunded",
		zap.String("credit_id", result.Credit.ID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("reason", req.Reason))

	return result, nil
}

// PreviewAllocation shows how a hypothetical payment would be distributed
// across the client's open invoices, without locking or mutating anything.
func (s *PaymentService) PreviewAllocation(ctx context.Context, clientID uuid.UUID, amount decimal.Decimal, strategyType billing.AllocationStrategyType) (*billing.AllocationPlan, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Preview amount must be positive")
	}
	if strategyType == "" {
		strategyType = s.allocationSvc.GetEffectiveStrategy(ctx, clientID)
	}

	var plan *billing.AllocationPlan
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		invoices, err := repos.Invoices.FindOpenByClient(ctx, clientID)
		if err != nil {
			return err
		}
		plan, err = s.allocationSvc.PreviewAllocation(ctx, clientID, valueobject.NewMoneyUSD(amount), invoices, strategyType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// GetPayment fetches a payment with its allocations
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	var payment *billing.Payment
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		payment, err = repos.Payments.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ListPayments lists payments matching the filter
func (s *PaymentService) ListPayments(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, int64, error) {
	var payments []billing.Payment
	var total int64
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		payments, err = repos.Payments.FindAll(ctx, filter)
		if err != nil {
			return err
		}
		total, err = repos.Payments.Count(ctx, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// validateRequest checks the request before any transaction is opened
func (s *PaymentService) validateRequest(req *ProcessPaymentRequest) error {
	if req.ClientID == uuid.Nil {
		return shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if len(req.InvoiceIDs) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "At least one target invoice is required")
	}
	seen := make(map[uuid.UUID]bool, len(req.InvoiceIDs))
	for _, id := range req.InvoiceIDs {
		if id == uuid.Nil {
			return shared.NewDomainError("INVALID_INPUT", "Invoice ID cannot be empty")
		}
		if seen[id] {
			return shared.NewDomainError("INVALID_INPUT", "Duplicate invoice ID in request")
		}
		seen[id] = true
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !req.Method.IsValid() {
		return shared.NewDomainError("INVALID_PAYMENT_METHOD", "Payment method is not valid")
	}
	if req.Strategy != "" && !req.Strategy.IsValid() {
		return shared.NewDomainError("INVALID_STRATEGY", "Invalid allocation strategy type")
	}
	return nil
}

// backoff computes the bounded exponential delay for the given attempt
func (s *PaymentService) backoff(attempt int) time.Duration {
	delay := s.retryCfg.BaseDelay << (attempt - 1)
	if delay > s.retryCfg.MaxDelay {
		delay = s.retryCfg.MaxDelay
	}
	return delay
}

// isNotFound reports whether err is the domain not-found error
func isNotFound(err error) bool {
	de, ok := err.(*shared.DomainError)
	return ok && de.Code == shared.ErrNotFound.Code
}
