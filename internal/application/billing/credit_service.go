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

// CreditService manages client credits outside the payment pipeline:
// compensating credits issued by operators, the expiry sweep,
// cancellation and balance queries.
type CreditService struct {
	uow    billing.UnitOfWork
	logger *zap.Logger
}

// NewCreditService creates a new credit service
func NewCreditService(uow billing.UnitOfWork, logger *zap.Logger) *CreditService {
	return &CreditService{
		uow:    uow,
		logger: logger.Named("credit_service"),
	}
}

// IssueCreditRequest represents a request to issue a compensating credit
type IssueCreditRequest struct {
	ClientID        uuid.UUID       `json:"client_id" binding:"required"`
	SourcePaymentID uuid.UUID       `json:"source_payment_id"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	Reason          string          `json:"reason" binding:"required"`
	ExpiresAt       *time.Time      `json:"expires_at"`
	ActorID         *uuid.UUID      `json:"actor_id"`
}

// IssueCredit creates a credit outside the overpayment path, for refunds
// and goodwill adjustments. The reason is mandatory and lands in the
// audit trail.
func (s *CreditService) IssueCredit(ctx context.Context, req IssueCreditRequest) (*billing.Credit, error) {
	if req.Reason == "" {
		return nil, shared.NewDomainError("INVALID_REASON", "A reason is required to issue a credit")
	}

	credit, err := billing.NewCredit(req.ClientID, req.SourcePaymentID, valueobject.NewMoneyUSD(req.Amount), req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	err = s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		if err := repos.Credits.Save(ctx, credit); err != nil {
			return fmt.Errorf("failed to persist credit: %w", err)
		}

		if repos.Audit != nil {
			detail := map[string]interface{}{
				"amount": req.Amount.StringFixed(2),
				"reason": req.Reason,
			}
			if req.SourcePaymentID != uuid.Nil {
				detail["source_payment_id"] = req.SourcePaymentID.String()
			}
			if req.ActorID != nil {
				detail["actor_id"] = req.ActorID.String()
			}
			entry := &billing.AuditEntry{
				ID:         uuid.New(),
				Action:     "credit.issued",
				EntityType: "Credit",
				EntityID:   credit.ID,
				ClientID:   &credit.ClientID,
				Detail:     detail,
				OccurredAt: time.Now(),
			}
			if err := repos.Audit.Record(ctx, entry); err != nil {
				s.logger.Warn("audit record failed", zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("credit issued",
		zap.String("credit_id", credit.ID.String()),
		zap.String("client_id", credit.ClientID.String()),
		zap.String("amount", credit.Amount.StringFixed(2)),
		zap.String("reason", req.Reason))

	return credit, nil
}

// CancelCredit voids an active credit
func (s *CreditService) CancelCredit(ctx context.Context, creditID uuid.UUID, reason string) (*billing.Credit, error) {
	var credit *billing.Credit
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		credit, err = repos.Credits.FindByID(ctx, creditID)
		if err != nil {
			return err
		}
		if err := credit.Cancel(reason); err != nil {
			return err
		}
		return repos.Credits.Save(ctx, credit)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("credit cancelled",
		zap.String("credit_id", credit.ID.String()),
		zap.String("remaining", credit.RemainingAmount.StringFixed(2)),
		zap.String("reason", reason))

	return credit, nil
}

// ExpireCredits sweeps active credits past their expiry date into
// EXPIRED. Returns how many credits were expired.
func (s *CreditService) ExpireCredits(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		candidates, err := repos.Credits.FindExpiryCandidates(ctx, now)
		if err != nil {
			return err
		}
		for i := range candidates {
			if err := candidates[i].Expire(now); err != nil {
				// The credit may have been consumed between the scan and now
				s.logger.Debug("skipping expiry candidate",
					zap.String("credit_id", candidates[i].ID.String()),
					zap.Error(err))
				continue
			}
			if err := repos.Credits.Save(ctx, &candidates[i]); err != nil {
				return fmt.Errorf("failed to persist expired credit: %w", err)
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		s.logger.Info("credits expired", zap.Int("count", expired))
	}
	return expired, nil
}

// GetCreditBalance returns the client's total consumable credit balance
func (s *CreditService) GetCreditBalance(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		balance, err = repos.Credits.SumRemainingByClient(ctx, clientID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// GetCredit fetches a credit by ID
func (s *CreditService) GetCredit(ctx context.Context, id uuid.UUID) (*billing.Credit, error) {
	var credit *billing.Credit
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		credit, err = repos.Credits.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return credit, nil
}

// ListCredits lists credits matching the filter
func (s *CreditService) ListCredits(ctx context.Context, filter billing.CreditFilter) ([]billing.Credit, error) {
	var credits []billing.Credit
	err := s.uow.Execute(ctx, func(ctx context.Context, repos billing.Repositories) error {
		var err error
		credits, err = repos.Credits.FindAll(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return credits, nil
}
