package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.AuditLogModel{}))
	return db
}

func newAuditEntry(clientID uuid.UUID, action string, occurredAt time.Time) *billing.AuditEntry {
	return &billing.AuditEntry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: "Payment",
		EntityID:   uuid.New(),
		ClientID:   &clientID,
		Detail:     map[string]interface{}{"amount": "100.00"},
		OccurredAt: occurredAt,
	}
}

func TestAuditLogRepository_Record(t *testing.T) {
	db := setupAuditTestDB(t)
	repo := NewGormAuditLogRepository(db)
	ctx := context.Background()

	clientID := uuid.New()
	entry := newAuditEntry(clientID, "payment.processed", time.Now())
	require.NoError(t, repo.Record(ctx, entry))

	found, err := repo.FindAll(ctx, billing.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, found, 1)

	assert.Equal(t, entry.ID, found[0].ID)
	assert.Equal(t, "payment.processed", found[0].Action)
	assert.Equal(t, "Payment", found[0].EntityType)
	require.NotNil(t, found[0].ClientID)
	assert.Equal(t, clientID, *found[0].ClientID)
	assert.Equal(t, "100.00", found[0].Detail["amount"])
}

func TestAuditLogRepository_FindAll(t *testing.T) {
	db := setupAuditTestDB(t)
	repo := NewGormAuditLogRepository(db)
	ctx := context.Background()

	clientA := uuid.New()
	clientB := uuid.New()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, repo.Record(ctx, newAuditEntry(clientA, "payment.processed", base)))
	require.NoError(t, repo.Record(ctx, newAuditEntry(clientA, "credit.issued", base.Add(time.Minute))))
	require.NoError(t, repo.Record(ctx, newAuditEntry(clientB, "payment.processed", base.Add(2*time.Minute))))

	t.Run("filters by client", func(t *testing.T) {
		entries, err := repo.FindAll(ctx, billing.AuditFilter{ClientID: &clientA})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("filters by action", func(t *testing.T) {
		action := "payment.processed"
		entries, err := repo.FindAll(ctx, billing.AuditFilter{Action: &action})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("orders newest first by default", func(t *testing.T) {
		entries, err := repo.FindAll(ctx, billing.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.True(t, entries[0].OccurredAt.After(entries[2].OccurredAt))
	})

	t.Run("paginates", func(t *testing.T) {
		filter := billing.AuditFilter{}
		filter.Page = 2
		filter.PageSize = 2
		entries, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("filters by occurrence range", func(t *testing.T) {
		from := base.Add(30 * time.Second)
		entries, err := repo.FindAll(ctx, billing.AuditFilter{FromDate: &from})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestAuditLogRepository_Count(t *testing.T) {
	db := setupAuditTestDB(t)
	repo := NewGormAuditLogRepository(db)
	ctx := context.Background()

	clientID := uuid.New()
	require.NoError(t, repo.Record(ctx, newAuditEntry(clientID, "payment.processed", time.Now())))
	require.NoError(t, repo.Record(ctx, newAuditEntry(uuid.New(), "payment.processed", time.Now())))

	count, err := repo.Count(ctx, billing.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.Count(ctx, billing.AuditFilter{ClientID: &clientID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGormUnitOfWork_Execute(t *testing.T) {
	db := setupAuditTestDB(t)
	uow := NewGormUnitOfWork(db)
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		err := uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
			return repos.Audit.Record(ctx, newAuditEntry(uuid.New(), "payment.processed", time.Now()))
		})
		require.NoError(t, err)

		count, err := NewGormAuditLogRepository(db).Count(ctx, billing.AuditFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
			if err := repos.Audit.Record(ctx, newAuditEntry(uuid.New(), "payment.processed", time.Now())); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		count, err := NewGormAuditLogRepository(db).Count(ctx, billing.AuditFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}
