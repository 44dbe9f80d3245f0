package handler

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

// memStore is an in-memory backing store shared by the test repositories
type memStore struct {
	mu         sync.Mutex
	invoices   map[uuid.UUID]billing.Invoice
	payments   map[uuid.UUID]billing.Payment
	credits    map[uuid.UUID]billing.Credit
	audit      []billing.AuditEntry
	invoiceSeq int64
}

func newMemStore() *memStore {
	return &memStore{
		invoices: make(map[uuid.UUID]billing.Invoice),
		payments: make(map[uuid.UUID]billing.Payment),
		credits:  make(map[uuid.UUID]billing.Credit),
	}
}

type memInvoiceRepo struct{ store *memStore }

func (r *memInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	inv, ok := r.store.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &inv, nil
}

func (r *memInvoiceRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return r.FindByID(ctx, id)
}

func (r *memInvoiceRepo) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]billing.Invoice, error) {
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

func (r *memInvoiceRepo) FindByInvoiceNumber(ctx context.Context, number string) (*billing.Invoice, error) {
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

func (r *memInvoiceRepo) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]billing.Invoice, 0, len(r.store.invoices))
	for _, inv := range r.store.invoices {
		if filter.ClientID != nil && inv.ClientID != *filter.ClientID {
			continue
		}
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memInvoiceRepo) FindByClient(ctx context.Context, clientID uuid.UUID, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	filter.ClientID = &clientID
	return r.FindAll(ctx, filter)
}

func (r *memInvoiceRepo) FindOpenByClient(ctx context.Context, clientID uuid.UUID) ([]billing.Invoice, error) {
	all, _ := r.FindAll(ctx, billing.InvoiceFilter{})
	out := make([]billing.Invoice, 0)
	for _, inv := range all {
		if inv.ClientID == clientID && inv.Status.CanApplyPayment() && inv.BalanceDue().GreaterThan(decimal.Zero) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memInvoiceRepo) FindOverdueCandidates(ctx context.Context, asOf time.Time) ([]billing.Invoice, error) {
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

func (r *memInvoiceRepo) Save(ctx context.Context, invoice *billing.Invoice) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.invoices[invoice.ID] = *invoice
	return nil
}

func (r *memInvoiceRepo) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	return r.Save(ctx, invoice)
}

func (r *memInvoiceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.invoices, id)
	return nil
}

func (r *memInvoiceRepo) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	all, _ := r.FindAll(ctx, filter)
	return int64(len(all)), nil
}

func (r *memInvoiceRepo) SumBalanceByClient(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	open, _ := r.FindOpenByClient(ctx, clientID)
	sum := decimal.Zero
	for _, inv := range open {
		sum = sum.Add(inv.BalanceDue())
	}
	return sum, nil
}

func (r *memInvoiceRepo) ExistsByInvoiceNumber(ctx context.Context, number string) (bool, error) {
	_, err := r.FindByInvoiceNumber(ctx, number)
	return err == nil, nil
}

func (r *memInvoiceRepo) NextInvoiceSequence(ctx context.Context) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.invoiceSeq++
	return r.store.invoiceSeq, nil
}

type memPaymentRepo struct{ store *memStore }

func (r *memPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r *memPaymentRepo) FindByIdempotencyKey(ctx context.Context, key string) (*billing.Payment, error) {
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

func (r *memPaymentRepo) FindAll(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]billing.Payment, 0, len(r.store.payments))
	for _, p := range r.store.payments {
		if filter.ClientID != nil && p.ClientID != *filter.ClientID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *memPaymentRepo) FindByClient(ctx context.Context, clientID uuid.UUID, filter billing.PaymentFilter) ([]billing.Payment, error) {
	filter.ClientID = &clientID
	return r.FindAll(ctx, filter)
}

func (r *memPaymentRepo) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Payment, error) {
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

func (r *memPaymentRepo) Save(ctx context.Context, payment *billing.Payment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.payments[payment.ID] = *payment
	return nil
}

func (r *memPaymentRepo) Count(ctx context.Context, filter billing.PaymentFilter) (int64, error) {
	all, _ := r.FindAll(ctx, filter)
	return int64(len(all)), nil
}

type memCreditRepo struct{ store *memStore }

func (r *memCreditRepo) FindByID(ctx context.Context, id uuid.UUID) (*billing.Credit, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.credits[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &c, nil
}

func (r *memCreditRepo) FindActiveByClient(ctx context.Context, clientID uuid.UUID) ([]billing.Credit, error) {
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

func (r *memCreditRepo) FindActiveByClientForUpdate(ctx context.Context, clientID uuid.UUID) ([]billing.Credit, error) {
	return r.FindActiveByClient(ctx, clientID)
}

func (r *memCreditRepo) FindAll(ctx context.Context, filter billing.CreditFilter) ([]billing.Credit, error) {
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
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memCreditRepo) FindExpiryCandidates(ctx context.Context, asOf time.Time) ([]billing.Credit, error) {
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

func (r *memCreditRepo) Save(ctx context.Context, credit *billing.Credit) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.credits[credit.ID] = *credit
	return nil
}

func (r *memCreditRepo) SaveWithLock(ctx context.Context, credit *billing.Credit) error {
	return r.Save(ctx, credit)
}

func (r *memCreditRepo) SumRemainingByClient(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	active, _ := r.FindActiveByClient(ctx, clientID)
	sum := decimal.Zero
	for _, c := range active {
		sum = sum.Add(c.RemainingAmount)
	}
	return sum, nil
}

type memAuditRepo struct{ store *memStore }

func (r *memAuditRepo) Record(ctx context.Context, entry *billing.AuditEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.audit = append(r.store.audit, *entry)
	return nil
}

func (r *memAuditRepo) FindAll(ctx context.Context, filter billing.AuditFilter) ([]billing.AuditEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []billing.AuditEntry
	for _, e := range r.store.audit {
		if auditMatches(e, filter) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAuditRepo) Count(ctx context.Context, filter billing.AuditFilter) (int64, error) {
	entries, _ := r.FindAll(ctx, filter)
	return int64(len(entries)), nil
}

func auditMatches(e billing.AuditEntry, filter billing.AuditFilter) bool {
	if filter.Action != nil && e.Action != *filter.Action {
		return false
	}
	if filter.EntityType != nil && e.EntityType != *filter.EntityType {
		return false
	}
	if filter.EntityID != nil && e.EntityID != *filter.EntityID {
		return false
	}
	if filter.ClientID != nil && (e.ClientID == nil || *e.ClientID != *filter.ClientID) {
		return false
	}
	return true
}

// snapshot copies the persisted state so a failed transaction function
// can be rolled back to where it started
func (s *memStore) snapshot() (map[uuid.UUID]billing.Invoice, map[uuid.UUID]billing.Payment, map[uuid.UUID]billing.Credit, []billing.AuditEntry, int64) {
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

func (s *memStore) restore(invoices map[uuid.UUID]billing.Invoice, payments map[uuid.UUID]billing.Payment, credits map[uuid.UUID]billing.Credit, audit []billing.AuditEntry, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = invoices
	s.payments = payments
	s.credits = credits
	s.audit = audit
	s.invoiceSeq = seq
}

// memUnitOfWork runs transaction functions against the in-memory
// repositories with real transaction boundaries: one writer at a time,
// and a failed function rolls the store back to its pre-transaction state
type memUnitOfWork struct {
	store *memStore
	txMu  sync.Mutex
}

func newMemUnitOfWork() *memUnitOfWork {
	return &memUnitOfWork{store: newMemStore()}
}

func (u *memUnitOfWork) repos() billing.Repositories {
	return billing.Repositories{
		Invoices: &memInvoiceRepo{store: u.store},
		Payments: &memPaymentRepo{store: u.store},
		Credits:  &memCreditRepo{store: u.store},
		Audit:    &memAuditRepo{store: u.store},
	}
}

func (u *memUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos billing.Repositories) error) error {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	invoices, payments, credits, audit, seq := u.store.snapshot()
	if err := fn(ctx, u.repos()); err != nil {
		u.store.restore(invoices, payments, credits, audit, seq)
		return err
	}
	return nil
}

func (u *memUnitOfWork) ExecuteSerializable(ctx context.Context, fn func(ctx context.Context, repos billing.Repositories) error) error {
	return u.Execute(ctx, fn)
}
