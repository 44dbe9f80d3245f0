package billing

import (
	"context"

	"github.com/labbill/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// AuditService exposes read access to the billing audit trail
type AuditService struct {
	uow    billing.UnitOfWork
	logger *zap.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(uow billing.UnitOfWork, logger *zap.Logger) *AuditService {
	return &AuditService{
		uow:    uow,
		logger: logger.Named("audit_service"),
	}
}

// ListEntries lists audit entries matching the filter, newest first
func (s *AuditService) ListEntries(ctx context.Context, filter billing.AuditFilter) ([]billing.AuditEntry, int64, error) {
	var entries []billing.AuditEntry
	var total int64
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		entries, err = repos.Audit.FindAll(ctx, filter)
		if err != nil {
			return err
		}
		total, err = repos.Audit.Count(ctx, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
