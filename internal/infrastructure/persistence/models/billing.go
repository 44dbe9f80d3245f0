package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// LineItems is a slice of billing.LineItem that implements GORM
// Scanner/Valuer for JSONB storage
type LineItems []billing.LineItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (l *LineItems) Scan(value interface{}) error {
	return scanJSON(value, l, func() { *l = LineItems{} })
}

// Allocations is a slice of billing.PaymentAllocation that implements
// GORM Scanner/Valuer for JSONB storage
type Allocations []billing.PaymentAllocation

// Value implements driver.Valuer interface for GORM to store as JSONB
func (a Allocations) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (a *Allocations) Scan(value interface{}) error {
	return scanJSON(value, a, func() { *a = Allocations{} })
}

// JSONMap is a map that implements GORM Scanner/Valuer for JSONB storage
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface for GORM to store as JSONB
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (m *JSONMap) Scan(value interface{}) error {
	return scanJSON(value, m, func() { *m = JSONMap{} })
}

func scanJSON(value interface{}, dest interface{}, reset func()) error {
	if value == nil {
		reset()
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan JSON column: unsupported type")
	}

	if len(bytes) == 0 {
		reset()
		return nil
	}

	return json.Unmarshal(bytes, dest)
}

// InvoiceModel is the persistence model for the Invoice aggregate root
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber string                `gorm:"type:varchar(50);uniqueIndex:idx_invoice_number,where:invoice_number <> ''"`
	ClientID      uuid.UUID             `gorm:"type:uuid;not null;index"`
	ClientName    string                `gorm:"type:varchar(200);not null"`
	LineItems     LineItems             `gorm:"type:jsonb;default:'[]'"`
	Subtotal      decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	TotalDiscount decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	TotalTax      decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Total         decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	PaidAmount    decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Status        billing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	DueDate       *time.Time            `gorm:"index"`
	IssuedAt      *time.Time
	PaidAt        *time.Time
	CancelledAt   *time.Time
	CancelReason  string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	inv := &billing.Invoice{
		InvoiceNumber: m.InvoiceNumber,
		ClientID:      m.ClientID,
		ClientName:    m.ClientName,
		LineItems:     []billing.LineItem(m.LineItems),
		Subtotal:      m.Subtotal,
		TotalDiscount: m.TotalDiscount,
		TotalTax:      m.TotalTax,
		Total:         m.Total,
		PaidAmount:    m.PaidAmount,
		Status:        m.Status,
		DueDate:       m.DueDate,
		IssuedAt:      m.IssuedAt,
		PaidAt:        m.PaidAt,
		CancelledAt:   m.CancelledAt,
		CancelReason:  m.CancelReason,
	}
	m.PopulateAggregateRoot(&inv.BaseAggregateRoot)
	return inv
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.ClientID = inv.ClientID
	m.ClientName = inv.ClientName
	m.LineItems = LineItems(inv.LineItems)
	m.Subtotal = inv.Subtotal
	m.TotalDiscount = inv.TotalDiscount
	m.TotalTax = inv.TotalTax
	m.Total = inv.Total
	m.PaidAmount = inv.PaidAmount
	m.Status = inv.Status
	m.DueDate = inv.DueDate
	m.IssuedAt = inv.IssuedAt
	m.PaidAt = inv.PaidAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root
type PaymentModel struct {
	AggregateModel
	ClientID        uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount          decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Method          billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	Reference       string                `gorm:"type:varchar(200)"`
	IdempotencyKey  string                `gorm:"type:char(64);not null;uniqueIndex"`
	Status          billing.PaymentStatus `gorm:"type:varchar(20);not null;index"`
	Allocations     Allocations           `gorm:"type:jsonb;default:'[]'"`
	AllocatedAmount decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	CreditedAmount  decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	ReceivedAt      time.Time             `gorm:"not null;index"`
	CommittedAt     *time.Time
	FailureReason   string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *billing.Payment {
	p := &billing.Payment{
		ClientID:        m.ClientID,
		Amount:          m.Amount,
		Method:          m.Method,
		Reference:       m.Reference,
		IdempotencyKey:  m.IdempotencyKey,
		Status:          m.Status,
		Allocations:     []billing.PaymentAllocation(m.Allocations),
		AllocatedAmount: m.AllocatedAmount,
		CreditedAmount:  m.CreditedAmount,
		ReceivedAt:      m.ReceivedAt,
		CommittedAt:     m.CommittedAt,
		FailureReason:   m.FailureReason,
	}
	m.PopulateAggregateRoot(&p.BaseAggregateRoot)
	return p
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *billing.Payment) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.ClientID = p.ClientID
	m.Amount = p.Amount
	m.Method = p.Method
	m.Reference = p.Reference
	m.IdempotencyKey = p.IdempotencyKey
	m.Status = p.Status
	m.Allocations = Allocations(p.Allocations)
	m.AllocatedAmount = p.AllocatedAmount
	m.CreditedAmount = p.CreditedAmount
	m.ReceivedAt = p.ReceivedAt
	m.CommittedAt = p.CommittedAt
	m.FailureReason = p.FailureReason
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// CreditModel is the persistence model for the Credit aggregate root
type CreditModel struct {
	AggregateModel
	ClientID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	SourcePaymentID uuid.UUID            `gorm:"type:uuid;index"`
	Amount          decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	RemainingAmount decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	Status          billing.CreditStatus `gorm:"type:varchar(20);not null;index"`
	ExpiresAt       *time.Time           `gorm:"index"`
	UsedAt          *time.Time
	ExpiredAt       *time.Time
	CancelledAt     *time.Time
	CancelReason    string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (CreditModel) TableName() string {
	return "credits"
}

// ToDomain converts the persistence model to a domain Credit
func (m *CreditModel) ToDomain() *billing.Credit {
	c := &billing.Credit{
		ClientID:        m.ClientID,
		SourcePaymentID: m.SourcePaymentID,
		Amount:          m.Amount,
		RemainingAmount: m.RemainingAmount,
		Status:          m.Status,
		ExpiresAt:       m.ExpiresAt,
		UsedAt:          m.UsedAt,
		ExpiredAt:       m.ExpiredAt,
		CancelledAt:     m.CancelledAt,
		CancelReason:    m.CancelReason,
	}
	m.PopulateAggregateRoot(&c.BaseAggregateRoot)
	return c
}

// FromDomain populates the persistence model from a domain Credit
func (m *CreditModel) FromDomain(c *billing.Credit) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.ClientID = c.ClientID
	m.SourcePaymentID = c.SourcePaymentID
	m.Amount = c.Amount
	m.RemainingAmount = c.RemainingAmount
	m.Status = c.Status
	m.ExpiresAt = c.ExpiresAt
	m.UsedAt = c.UsedAt
	m.ExpiredAt = c.ExpiredAt
	m.CancelledAt = c.CancelledAt
	m.CancelReason = c.CancelReason
}

// CreditModelFromDomain creates a new persistence model from a domain Credit
func CreditModelFromDomain(c *billing.Credit) *CreditModel {
	m := &CreditModel{}
	m.FromDomain(c)
	return m
}

// AuditLogModel is the persistence model for audit trail entries
type AuditLogModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key"`
	Action     string     `gorm:"type:varchar(100);not null;index"`
	EntityType string     `gorm:"type:varchar(50);not null;index:idx_audit_entity"`
	EntityID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_audit_entity"`
	ClientID   *uuid.UUID `gorm:"type:uuid;index"`
	Detail     JSONMap    `gorm:"type:jsonb;default:'{}'"`
	OccurredAt time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// ToDomain converts the persistence model to a domain AuditEntry
func (m *AuditLogModel) ToDomain() *billing.AuditEntry {
	return &billing.AuditEntry{
		ID:         m.ID,
		Action:     m.Action,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		ClientID:   m.ClientID,
		Detail:     map[string]interface{}(m.Detail),
		OccurredAt: m.OccurredAt,
	}
}

// AuditLogModelFromDomain creates a new persistence model from a domain AuditEntry
func AuditLogModelFromDomain(e *billing.AuditEntry) *AuditLogModel {
	return &AuditLogModel{
		ID:         e.ID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		ClientID:   e.ClientID,
		Detail:     JSONMap(e.Detail),
		OccurredAt: e.OccurredAt,
	}
}

// SequenceModel backs atomically incremented counters such as the
// invoice number sequence
type SequenceModel struct {
	Name  string `gorm:"type:varchar(50);primary_key"`
	Value int64  `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (SequenceModel) TableName() string {
	return "billing_sequences"
}

// ServicePriceModel holds the price list consulted when line items
// arrive without an explicit unit price. Rows with a nil ClientID form
// the standard price list; rows with a ClientID are contract prices
// that override it for that client.
type ServicePriceModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	ClientID      *uuid.UUID      `gorm:"type:uuid;index:idx_service_prices_lookup"`
	ServiceCode   string          `gorm:"type:varchar(20);not null;index:idx_service_prices_lookup"`
	Description   string          `gorm:"type:varchar(500)"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	EffectiveFrom time.Time       `gorm:"not null;index:idx_service_prices_lookup"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ServicePriceModel) TableName() string {
	return "service_prices"
}

// AllModels returns the models registered for schema migration
func AllModels() []interface{} {
	return []interface{}{
		&InvoiceModel{},
		&PaymentModel{},
		&CreditModel{},
		&AuditLogModel{},
		&SequenceModel{},
		&ServicePriceModel{},
	}
}
