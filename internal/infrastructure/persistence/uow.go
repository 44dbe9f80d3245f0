package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labbill/backend/internal/domain/billing"
	"github.com/labbill/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// Postgres error codes that indicate a transient conflict worth retrying
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// GormUnitOfWork implements billing.UnitOfWork on top of GORM transactions
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Execute runs fn in a transaction at the database's default isolation level
func (u *GormUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos billing.Repositories) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, newRepositories(tx))
	})
	return translateTxError(err)
}

// ExecuteSerializable runs fn at serializable isolation. Serialization
// failures and deadlocks surface as shared.ErrTransientLockTimeout so
// callers can retry the whole transaction.
func (u *GormUnitOfWork) ExecuteSerializable(ctx context.Context, fn func(ctx context.Context, repos billing.Repositories) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, newRepositories(tx))
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return translateTxError(err)
}

func newRepositories(tx *gorm.DB) billing.Repositories {
	return billing.Repositories{
		Invoices: NewGormInvoiceRepository(tx),
		Payments: NewGormPaymentRepository(tx),
		Credits:  NewGormCreditRepository(tx),
		Audit:    NewGormAuditLogRepository(tx),
	}
}

// translateTxError maps transient transaction conflicts onto the domain
// error the retry loop understands; everything else passes through.
func translateTxError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return shared.ErrTransientLockTimeout
		}
	}
	return err
}
