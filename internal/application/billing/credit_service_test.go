package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/domain/shared"
	"github.com/labbill/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIssueCredit(t *testing.T) {
	uow := newFakeUnitOfWork()
	svc := NewCreditService(uow, zap.NewNop())
	clientID := uuid.New()

	credit, err := svc.IssueCredit(context.Background(), IssueCreditRequest{
		ClientID: clientID,
		Amount:   dec(t, "75.25"),
		Reason:   "duplicate billing refund",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.CreditStatusActive, credit.Status)
	assert.True(t, credit.RemainingAmount.Equal(dec(t, "75.25")))

	saved := uow.store.credits[credit.ID]
	assert.Equal(t, billing.CreditStatusActive, saved.Status)

	require.Len(t, uow.store.audit, 1)
	assert.Equal(t, "credit.issued", uow.store.audit[0].Action)
	assert.Equal(t, "duplicate billing refund", uow.store.audit[0].Detail["reason"])
}

func TestIssueCredit_RequiresReason(t *testing.T) {
	uow := newFakeUnitOfWork()
	svc := NewCreditService(uow, zap.NewNop())

	_, err := svc.IssueCredit(context.Background(), IssueCreditRequest{
		ClientID: uuid.New(),
		Amount:   dec(t, "10"),
	})
	require.Error(t, err)
	domainErr, ok := err.(*shared.DomainError)
	require.True(t, ok)
	assert.Equal(t, "INVALID_REASON", domainErr.Code)
}

func TestCancelCredit(t *testing.T) {
	uow := newFakeUnitOfWork()
	svc := NewCreditService(uow, zap.NewNop())
	clientID := uuid.New()

	credit, err := billing.NewCredit(clientID, uuid.New(), valueobject.NewMoneyUSD(dec(t, "40")), nil)
	require.NoError(t, err)
	uow.store.putCredit(credit)

	cancelled, err := svc.CancelCredit(context.Background(), credit.ID, "issued by mistake")
	require.NoError(t, err)
	assert.Equal(t, billing.CreditStatusCancelled, cancelled.Status)
	assert.Equal(t, "issued by mistake", cancelled.CancelReason)
}

func TestExpireCredits(t *testing.T) {
	uow := newFakeUnitOfWork()
	svc := NewCreditService(uow, zap.NewNop())
	clientID := uuid.New()

	past := time.Now().Add(-time.Hour)
	expired, err := billing.NewCredit(clientID, uuid.New(), valueobject.NewMoneyUSD(dec(t, "30")), &past)
	require.NoError(t, err)
	uow.store.putCredit(expired)

	future := time.Now().Add(time.Hour)
	alive, err := billing.NewCredit(clientID, uuid.New(), valueobject.NewMoneyUSD(dec(t, "20")), &future)
	require.NoError(t, err)
	uow.store.putCredit(alive)

	count, err := svc.ExpireCredits(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, billing.CreditStatusExpired, uow.store.credits[expired.ID].Status)
	assert.Equal(t, billing.CreditStatusActive, uow.store.credits[alive.ID].Status)
}

func TestGetCreditBalance_OnlyActiveCounts(t *testing.T) {
	uow := newFakeUnitOfWork()
	svc := NewCreditService(uow, zap.NewNop())
	clientID := uuid.New()

	active, err := billing.NewCredit(clientID, uuid.New(), valueobject.NewMoneyUSD(dec(t, "60")), nil)
	require.NoError(t, err)
	uow.store.putCredit(active)

	voided, err := billing.NewCredit(clientID, uuid.New(), valueobject.NewMoneyUSD(dec(t, "100")), nil)
	require.NoError(t, err)
	require.NoError(t, voided.Cancel("test"))
	uow.store.putCredit(voided)

	balance, err := svc.GetCreditBalance(context.Background(), clientID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "60")))
}
