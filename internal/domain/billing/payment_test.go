package billing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(t *testing.T, amount string) *Payment {
	t.Helper()
	p, err := NewPayment(uuid.New(), valueobject.NewMoneyUSD(dec(amount)), PaymentMethodCheck, "CHK-1042", nil)
	require.NoError(t, err)
	return p
}

func advanceTo(t *testing.T, p *Payment, status PaymentStatus) {
	t.Helper()
	for p.Status != status {
		require.NoError(t, p.Advance())
	}
}

func TestComputeIdempotencyKey(t *testing.T) {
	id1 := uuid.New()
	id2 := uuid.New()

	t.Run("deterministic for same inputs", func(t *testing.T) {
		k1 := ComputeIdempotencyKey([]uuid.UUID{id1, id2}, dec("100"), PaymentMethodCash, "ref")
		k2 := ComputeIdempotencyKey([]uuid.UUID{id1, id2}, dec("100"), PaymentMethodCash, "ref")
		assert.Equal(t, k1, k2)
		assert.Len(t, k1, 64)
	})

	t.Run("invoice order does not matter", func(t *testing.T) {
		k1 := ComputeIdempotencyKey([]uuid.UUID{id1, id2}, dec("100"), PaymentMethodCash, "ref")
		k2 := ComputeIdempotencyKey([]uuid.UUID{id2, id1}, dec("100"), PaymentMethodCash, "ref")
		assert.Equal(t, k1, k2)
	})

	t.Run("amount changes the key", func(t *testing.T) {
		k1 := ComputeIdempotencyKey([]uuid.UUID{id1}, dec("100"), PaymentMethodCash, "ref")
		k2 := ComputeIdempotencyKey([]uuid.UUID{id1}, dec("100.01"), PaymentMethodCash, "ref")
		assert.NotEqual(t, k1, k2)
	})

	t.Run("method and reference change the key", func(t *testing.T) {
		k1 := ComputeIdempotencyKey([]uuid.UUID{id1}, dec("100"), PaymentMethodCash, "ref")
		k2 := ComputeIdempotencyKey([]uuid.UUID{id1}, dec("100"), PaymentMethodCard, "ref")
		k3 := ComputeIdempotencyKey([]uuid.UUID{id1}, dec("100"), PaymentMethodCash, "other")
		assert.NotEqual(t, k1, k2)
		assert.NotEqual(t, k1, k3)
	})

	t.Run("equivalent decimal representations hash the same", func(t *testing.T) {
		k1 := ComputeIdempotencyKey([]uuid.UUID{id1}, dec("100"), PaymentMethodCash, "ref")
		k2 := ComputeIdempotencyKey([]uuid.UUID{id1}, dec("100.00"), PaymentMethodCash, "ref")
		assert.Equal(t, k1, k2)
	})
}

func TestNewPayment(t *testing.T) {
	t.Run("creates pending payment with key", func(t *testing.T) {
		p := newTestPayment(t, "500")
		assert.Equal(t, PaymentStatusPending, p.Status)
		assert.NotEmpty(t, p.IdempotencyKey)
		assert.True(t, p.UnallocatedAmount().Equal(dec("500")))
		assert.Len(t, p.GetDomainEvents(), 1)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := NewPayment(uuid.New(), valueobject.ZeroUSD(), PaymentMethodCash, "", nil)
		assert.Error(t, err)
	})

	t.Run("rejects invalid method", func(t *testing.T) {
		_, err := NewPayment(uuid.New(), valueobject.NewMoneyUSD(dec("10")), PaymentMethod("BARTER"), "", nil)
		assert.Error(t, err)
	})

	t.Run("rejects empty client", func(t *testing.T) {
		_, err := NewPayment(uuid.Nil, valueobject.NewMoneyUSD(dec("10")), PaymentMethodCash, "", nil)
		assert.Error(t, err)
	})
}

func TestPaymentAdvance(t *testing.T) {
	t.Run("walks the full pipeline", func(t *testing.T) {
		p := newTestPayment(t, "100")

		require.NoError(t, p.Advance())
		assert.Equal(t, PaymentStatusLocking, p.Status)
		require.NoError(t, p.Advance())
		assert.Equal(t, PaymentStatusAllocating, p.Status)
		require.NoError(t, p.Advance())
		assert.Equal(t, PaymentStatusPersisting, p.Status)
		require.NoError(t, p.Advance())
		assert.Equal(t, PaymentStatusCommitted, p.Status)
	})

	t.Run("terminal status cannot advance", func(t *testing.T) {
		p := newTestPayment(t, "100")
		p.RollBack("lock timeout")
		assert.Error(t, p.Advance())
	})
}

func TestPaymentAllocate(t *testing.T) {
	t.Run("records allocations up to the amount", func(t *testing.T) {
		p := newTestPayment(t, "500")
		advanceTo(t, p, PaymentStatusAllocating)

		_, err := p.Allocate(uuid.New(), "INV-000001", valueobject.NewMoneyUSD(dec("300")))
		require.NoError(t, err)
		_, err = p.Allocate(uuid.New(), "INV-000002", valueobject.NewMoneyUSD(dec("200")))
		require.NoError(t, err)

		assert.True(t, p.AllocatedAmount.Equal(dec("500")))
		assert.True(t, p.UnallocatedAmount().IsZero())
		assert.Len(t, p.Allocations, 2)
	})

	t.Run("allocation exceeding amount fails", func(t *testing.T) {
		p := newTestPayment(t, "500")
		advanceTo(t, p, PaymentStatusAllocating)

		_, err := p.Allocate(uuid.New(), "INV-000001", valueobject.NewMoneyUSD(dec("400")))
		require.NoError(t, err)
		_, err = p.Allocate(uuid.New(), "INV-000002", valueobject.NewMoneyUSD(dec("101")))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "exceed payment amount")
	})

	t.Run("zero allocation fails", func(t *testing.T) {
		p := newTestPayment(t, "500")
		_, err := p.Allocate(uuid.New(), "INV-000001", valueobject.ZeroUSD())
		assert.Error(t, err)
	})

	t.Run("terminal payment cannot allocate", func(t *testing.T) {
		p := newTestPayment(t, "500")
		p.RollBack("revalidation failed")
		_, err := p.Allocate(uuid.New(), "INV-000001", valueobject.NewMoneyUSD(dec("100")))
		assert.Error(t, err)
	})
}

func TestPaymentRecordCredit(t *testing.T) {
	t.Run("records surplus as credit", func(t *testing.T) {
		p := newTestPayment(t, "750")
		advanceTo(t, p, PaymentStatusAllocating)
		_, err := p.Allocate(uuid.New(), "INV-000001", valueobject.NewMoneyUSD(dec("500")))
		require.NoError(t, err)

		require.NoError(t, p.RecordCredit(valueobject.NewMoneyUSD(dec("250")), uuid.New()))
		assert.True(t, p.CreditedAmount.Equal(dec("250")))
	})

	t.Run("credit cannot exceed unallocated remainder", func(t *testing.T) {
		p := newTestPayment(t, "750")
		advanceTo(t, p, PaymentStatusAllocating)
		_, err := p.Allocate(uuid.New(), "INV-000001", valueobject.NewMoneyUSD(dec("500")))
		require.NoError(t, err)

		err = p.RecordCredit(valueobject.NewMoneyUSD(dec("300")), uuid.New())
		assert.Error(t, err)
	})
}

func TestPaymentCommitAndRollBack(t *testing.T) {
	t.Run("commit only from persisting", func(t *testing.T) {
		p := newTestPayment(t, "100")
		assert.Error(t, p.Commit())

		advanceTo(t, p, PaymentStatusPersisting)
		require.NoError(t, p.Commit())
		assert.Equal(t, PaymentStatusCommitted, p.Status)
		assert.NotNil(t, p.CommittedAt)
	})

	t.Run("rollback discards in-memory allocations", func(t *testing.T) {
		p := newTestPayment(t, "500")
		advanceTo(t, p, PaymentStatusAllocating)
		_, err := p.Allocate(uuid.New(), "INV-000001", valueobject.NewMoneyUSD(dec("200")))
		require.NoError(t, err)

		p.RollBack("invoice state changed under lock")

		assert.Equal(t, PaymentStatusRolledBack, p.Status)
		assert.Equal(t, "invoice state changed under lock", p.FailureReason)
		assert.Empty(t, p.Allocations)
		assert.True(t, p.AllocatedAmount.Equal(decimal.Zero))
	})
}
