package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// CreditStatus represents the status of a client credit
type CreditStatus string

const (
	CreditStatusActive    CreditStatus = "ACTIVE"    // Consumable against future invoices
	CreditStatusUsed      CreditStatus = "USED"      // Fully consumed
	CreditStatusExpired   CreditStatus = "EXPIRED"   // Past expiry with remaining balance
	CreditStatusCancelled CreditStatus = "CANCELLED" // Voided by an operator
)

// IsValid checks if the status is a valid CreditStatus
func (s CreditStatus) IsValid() bool {
	switch s {
	case CreditStatusActive, CreditStatusUsed, CreditStatusExpired, CreditStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of CreditStatus
func (s CreditStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the credit can no longer be consumed
func (s CreditStatus) IsTerminal() bool {
	return s != CreditStatusActive
}

// Credit represents stored client value created from an overpayment.
// RemainingAmount only ever decreases; new value requires a new credit.
type Credit struct {
	shared.BaseAggregateRoot
	ClientID        uuid.UUID       `json:"client_id"`
	SourcePaymentID uuid.UUID       `json:"source_payment_id"` // Payment whose surplus created this credit
	Amount          decimal.Decimal `json:"amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          CreditStatus    `json:"status"`
	ExpiresAt       *time.Time      `json:"expires_at"`
	UsedAt          *time.Time      `json:"used_at"`
	ExpiredAt       *time.Time      `json:"expired_at"`
	CancelledAt     *time.Time      `json:"cancelled_at"`
	CancelReason    string          `json:"cancel_reason"`
}

// NewCredit creates an active credit from an overpayment surplus
func NewCredit(clientID, sourcePaymentID uuid.UUID, amount valueobject.Money, expiresAt *time.Time) (*Credit, error) {
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Credit amount must be positive")
	}

	c := &Credit{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ClientID:          clientID,
		SourcePaymentID:   sourcePaymentID,
		Amount:            amount.Amount(),
		RemainingAmount:   amount.Amount(),
		Status:            CreditStatusActive,
		ExpiresAt:         expiresAt,
	}

	c.AddDomainEvent(NewCreditCreatedEvent(c))

	return c, nil
}

// Consume reduces the remaining amount by the given value and flips the
// credit to USED when it reaches zero. Returns the amount actually
// consumed, which may be less than requested.
func (c *Credit) Consume(requested valueobject.Money) (valueobject.Money, error) {
	if c.Status != CreditStatusActive {
		return valueobject.ZeroUSD(), shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot consume credit in %s status", c.Status))
	}
	if requested.Amount().LessThanOrEqual(decimal.Zero) {
		return valueobject.ZeroUSD(), shared.NewDomainError("INVALID_AMOUNT", "Consumption amount must be positive")
	}

	consumed := decimal.Min(requested.Amount(), c.RemainingAmount)
	c.RemainingAmount = c.RemainingAmount.Sub(consumed)

	if c.RemainingAmount.IsZero() {
		now := time.Now()
		c.Status = CreditStatusUsed
		c.UsedAt = &now
	}

	c.UpdatedAt = time.Now()
	c.IncrementVersion()

	c.AddDomainEvent(NewCreditConsumedEvent(c, valueobject.NewMoneyUSD(consumed)))

	return valueobject.NewMoneyUSD(consumed), nil
}

// Expire marks an active credit past its expiry date as expired
func (c *Credit) Expire(now time.Time) error {
	if c.Status != CreditStatusActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot expire credit in %s status", c.Status))
	}
	if c.ExpiresAt == nil || !now.After(*c.ExpiresAt) {
		return shared.NewDomainError("NOT_EXPIRED", "Credit has not reached its expiry date")
	}

	c.Status = CreditStatusExpired
	c.ExpiredAt = &now
	c.UpdatedAt = time.Now()
	c.IncrementVersion()

	return nil
}

// Cancel voids an active credit with a reason
func (c *Credit) Cancel(reason string) error {
	if c.Status != CreditStatusActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel credit in %s status", c.Status))
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Cancel reason is required")
	}

	now := time.Now()
	c.Status = CreditStatusCancelled
	c.CancelledAt = &now
	c.CancelReason = reason
	c.UpdatedAt = now
	c.IncrementVersion()

	return nil
}

// GetRemainingAmountMoney returns the remaining amount as Money
func (c *Credit) GetRemainingAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(c.RemainingAmount)
}
