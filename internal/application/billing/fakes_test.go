package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// fakeStore is a shared in-memory backing store for the fake repositories.
// Find methods return copies so a failed pipeline attempt cannot leak
// partial mutations into "persisted" state, mirroring a real database.
type fakeStore struct {
	mu         sync.Mutex
	invoices   map[uuid.UUID]billing.Invoice
	payments   map[uuid.UUID]billing.Payment
	credits    map[uuid.UUID]billing.Credit
	audit      []billing.AuditEntry
	invoiceSeq int64

	// failCreditSave, when set, makes credit saves fail so tests can force
	// a transaction to abort after earlier writes succeeded
	failCreditSave error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		invoices: make(map[uuid.UUID]billing.Invoice),
		payments: make(map[uuid.UUID]billing.Payment),
		credits:  make(map[uuid.UUID]billing.Credit),
	}
}

func (s *fakeStore) putInvoice(inv *billing.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.ID] = *inv
}

func (s *fakeStore) putCredit(c *billing.Credit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits[c.ID] = *c
}

type fakeInvoiceRepo struct{ store *fakeStore }

func (r *fakeInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	inv, ok := r.store.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &inv, nil
}

func (r *fakeInvoiceRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeInvoiceRepo) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]billing.Invoice, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]billing.Invoice, 0, len(ids))
	for _, id := range ids {
		if inv, ok := r.store.invoices[id]; ok {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) FindByInvoiceNumber(ctx context.Context, number string) (*billing.Invoice, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, inv := range r.store.invoices {
		if inv.InvoiceNumber == number {
			v := inv
			return &v, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeInvoiceRepo) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]billing.Invoice, 0, len(r.store.invoices))
	for _, inv := range r.store.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeInvoiceRepo) FindByClient(ctx context.Context, clientID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	all, _ := r.FindAll(ctx, filter)
	out := make([]billing.Invoice, 0)
	for _, inv := range all {
		if inv.ClientID == clientID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) FindOpenByClient(ctx context.Context, clientID uuid.UUID) ([]billing.Invoice, error) {
	all, _ := r.FindAll(ctx, billing.InvoiceFilter{})
	out := make([]billing.Invoice, 0)
	for _, inv := range all {
		if inv.ClientID == clientID && inv.Status.CanApplyPayment() && inv.BalanceDue().GreaterThan(decimal.Zero) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) FindOverdueCandidates(ctx context.Context, asOf time.Time) ([]billing.Invoice, error) {
	all, _ := r.FindAll(ctx, billing.InvoiceFilter{})
	out := make([]billing.Invoice, 0)
	for _, inv := range all {
		if (inv.Status == billing.InvoiceStatusSent || inv.Status == billing.InvoiceStatusPartial) &&
			inv.DueDate != nil && asOf.After(*inv.DueDate) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) Save(ctx context.Context, invoice *billing.Invoice) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.invoices[invoice.ID] = *invoice
	return nil
}

func (r *fakeInvoiceRepo) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	return r.Save(ctx, invoice)
}

func (r *fakeInvoiceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.invoices, id)
	return nil
}

func (r *fakeInvoiceRepo) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	all, _ := r.FindAll(ctx, filter)
	return int64(len(all)), nil
}

func (r *fakeInvoiceRepo) SumBalanceByClient(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	open, _ := r.FindOpenByClient(ctx, clientID)
	sum := decimal.Zero
	for _, inv := range open {
		sum = sum.Add(inv.BalanceDue())
	}
	return sum, nil
}

func (r *fakeInvoiceRepo) ExistsByInvoiceNumber(ctx context.Context, number string) (bool, error) {
	_, err := r.FindByInvoiceNumber(ctx, number)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *fakeInvoiceRepo) NextInvoiceSequence(ctx context.Context) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.invoiceSeq++
	return r.store.invoiceSeq, nil
}

type fakePaymentRepo struct{ store *fakeStore }

func (r *fakePaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r *fakePaymentRepo) FindByIdempotencyKey(ctx context.Context, key string) (*billing.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.payments {
		if p.IdempotencyKey == key {
			v := p
			return &v, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakePaymentRepo) FindAll(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]billing.Payment, 0, len(r.store.payments))
	for _, p := range r.store.payments {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakePaymentRepo) FindByClient(ctx context.Context, clientID uuid.UUID, filter billing.PaymentFilter) ([]billing.Payment, error) {
	all, _ := r.FindAll(ctx, filter)
	out := make([]billing.Payment, 0)
	for _, p := range all {
		if p.ClientID == clientID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Payment, error) {
	all, _ := r.FindAll(ctx, billing.PaymentFilter{})
	out := make([]billing.Payment, 0)
	for _, p := range all {
		for _, a := range p.Allocations {
			if a.InvoiceID == invoiceID {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) Save(ctx context.Context, payment *billing.Payment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.payments[payment.ID] = *payment
	return nil
}

func (r *fakePaymentRepo) Count(ctx context.Context, filter billing.PaymentFilter) (int64, error) {
	all, _ := r.FindAll(ctx, filter)
	return int64(len(all)), nil
}

type fakeCreditRepo struct{ store *fakeStore }

func (r *fakeCreditRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Credit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.credits[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &c, nil
}

func (r *fakeCreditRepo) FindActiveByClient(ctx context.Context, clientID uuid.UUID) ([]billing.Credit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]billing.Credit, 0)
	for _, c := range r.store.credits {
		if c.ClientID == clientID && c.Status == billing.CreditStatusActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeCreditRepo) FindActiveByClientForUpdate(ctx context.Context, clientID uuid.UUID) ([]billing.Credit, error) {
	return r.FindActiveByClient(ctx, clientID)
}

func (r *fakeCreditRepo) FindAll(ctx context.Context, filter billing.CreditFilter) ([]billing.Credit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]billing.Credit, 0, len(r.store.credits))
	for _, c := range r.store.credits {
		if filter.ClientID != nil && c.ClientID != *filter.ClientID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.SourcePaymentID != nil && c.SourcePaymentID != *filter.SourcePaymentID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeCreditRepo) FindExpiryCandidates(ctx context.Context, asOf time.Time) ([]billing.Credit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]billing.Credit, 0)
	for _, c := range r.store.credits {
		if c.Status == billing.CreditStatusActive && c.ExpiresAt != nil && asOf.After(*c.ExpiresAt) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCreditRepo) Save(ctx context.Context, credit *billing.Credit) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failCreditSave != nil {
		return r.store.failCreditSave
	}
	r.store.credits[credit.ID] = *credit
	return nil
}

func (r *fakeCreditRepo) SaveWithLock(ctx context.Context, credit *billing.Credit) error {
	return r.Save(ctx, credit)
}

func (r *fakeCreditRepo) SumRemainingByClient(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	active, _ := r.FindActiveByClient(ctx, clientID)
	sum := decimal.Zero
	for _, c := range active {
		sum = sum.Add(c.RemainingAmount)
	}
	return sum, nil
}

type fakeAuditRepo struct{ store *fakeStore }

func (r *fakeAuditRepo) Record(ctx context.Context, entry *billing.AuditEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.audit = append(r.store.audit, *entry)
	return nil
}

func (r *fakeAuditRepo) FindAll(ctx context.Context, filter billing.AuditFilter) ([]billing.AuditEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]billing.AuditEntry, len(r.store.audit))
	copy(out, r.store.audit)
	return out, nil
}

func (r *fakeAuditRepo) Count(ctx context.Context, filter billing.AuditFilter) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return int64(len(r.store.audit)), nil
}

// snapshot copies the persisted state so a failed transaction function can
// be rolled back to where it started
func (s *fakeStore) snapshot() (map[uuid.UUID]billing.Invoice, map[uuid.UUID]billing.Payment, map[uuid.UUID]billing.Credit, []billing.AuditEntry, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoices := make(map[uuid.UUID]billing.Invoice, len(s.invoices))
	for k, v := range s.invoices {
		invoices[k] = v
	}
	payments := make(map[uuid.UUID]billing.Payment, len(s.payments))
	for k, v := range s.payments {
		payments[k] = v
	}
	credits := make(map[uuid.UUID]billing.Credit, len(s.credits))
	for k, v := range s.credits {
		credits[k] = v
	}
	audit := make([]billing.AuditEntry, len(s.audit))
	copy(audit, s.audit)
	return invoices, payments, credits, audit, s.invoiceSeq
}

func (s *fakeStore) restore(invoices map[uuid.UUID]billing.Invoice, payments map[uuid.UUID]billing.Payment, credits map[uuid.UUID]billing.Credit, audit []billing.AuditEntry, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = invoices
	s.payments = payments
	s.credits = credits
	s.audit = audit
	s.invoiceSeq = seq
}

// fakeUnitOfWork runs transaction functions against the fake repositories
// with real transaction boundaries: one writer at a time, and a failed
// function restores the pre-transaction snapshot so nothing it persisted
// leaks out. serializableFailures injects transient conflicts so the retry
// loop can be exercised.
type fakeUnitOfWork struct {
	store                *fakeStore
	txMu                 sync.Mutex
	serializableFailures int
	serializableCalls    int
}

func newFakeUnitOfWork() *fakeUnitOfWork {
	return &fakeUnitOfWork{store: newFakeStore()}
}

func (u *fakeUnitOfWork) repos() billing.Repositories {
	return billing.Repositories{
		Invoices: &fakeInvoiceRepo{store: u.store},
		Payments: &fakePaymentRepo{store: u.store},
		Credits:  &fakeCreditRepo{store: u.store},
		Audit:    &fakeAuditRepo{store: u.store},
	}
}

func (u *fakeUnitOfWork) inTransaction(ctx context.Context, fn func(ctx context.Context, repos billing.Repositories) error) error {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	invoices, payments, credits, audit, seq := u.store.snapshot()
	if err := fn(ctx, u.repos()); err != nil {
		u.store.restore(invoices, payments, credits, audit, seq)
		return err
	}
	return nil
}

func (u *fakeUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos billing.Repositories) error) error {
	return u.inTransaction(ctx, fn)
}

func (u *fakeUnitOfWork) ExecuteSerializable(ctx context.Context, fn func(ctx context.Context, repos billing.Repositories) error) error {
	u.txMu.Lock()
	u.serializableCalls++
	if u.serializableFailures > 0 {
		u.serializableFailures--
		u.txMu.Unlock()
		return shared.ErrTransientLockTimeout
	}
	u.txMu.Unlock()
	return u.inTransaction(ctx, fn)
}

// fakeIdempotencyStore is a map-backed fast-path filter for tests
type fakeIdempotencyStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{seen: make(map[string]bool)}
}

func (s *fakeIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *fakeIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[key], nil
}

func (s *fakeIdempotencyStore) Close() error { return nil }

// fakePricingResolver returns fixed prices by service code, with optional
// per-client contract prices layered on top of the standard list
type fakePricingResolver struct {
	prices         map[string]decimal.Decimal
	contractPrices map[uuid.UUID]map[string]decimal.Decimal
}

func (r *fakePricingResolver) ResolveUnitPrice(ctx context.Context, clientID uuid.UUID, serviceCode string, serviceDate time.Time) (decimal.Decimal, error) {
	if clientID != uuid.Nil {
		if price, ok := r.contractPrices[clientID][serviceCode]; ok {
			return price, nil
		}
	}
	price, ok := r.prices[serviceCode]
	if !ok {
		return decimal.Zero, shared.ErrNotFound
	}
	return price, nil
}
