package subscription

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/tenant"
)

// Service reconciles subscription billing webhooks. Structurally the same
// overwrite-by-reference pattern as booking payments: redeliveries are safe.
type Service interface {
	Reconcile(ctx context.Context, reference string, approved bool) error
}

type service struct {
	repo       Repository
	tenantRepo tenant.Repository
	now        func() time.Time
	log        *zap.Logger
}

func NewService(repo Repository, tenantRepo tenant.Repository, log *zap.Logger) Service {
	return &service{
		repo:       repo,
		tenantRepo: tenantRepo,
		now:        time.Now,
		log:        log,
	}
}

func (s *service) Reconcile(ctx context.Context, reference string, approved bool) error {
	sub, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Unknown reference: acknowledge so the provider stops retrying,
			// but leave a trace.
			s.log.Warn("subscription webhook for unknown reference",
				zap.String("reference", reference),
			)
			return nil
		}
		return err
	}

	if !approved {
		if err := s.repo.UpdateStatusByReference(ctx, reference, StatusPastDue, sub.CurrentPeriodEnd); err != nil {
			return err
		}
		s.log.Info("subscription payment failed",
			zap.String("tenant_id", sub.TenantID),
			zap.String("reference", reference),
		)
		return nil
	}

	periodEnd := s.now().UTC().AddDate(0, 1, 0)
	if err := s.repo.UpdateStatusByReference(ctx, reference, StatusActive, periodEnd); err != nil {
		return err
	}

	if err := s.tenantRepo.UpdatePlan(ctx, sub.TenantID, tenant.Plan(sub.Plan)); err != nil {
		// Plan activation is retried on the provider's next redelivery.
		s.log.Error("tenant plan activation failed",
			zap.String("tenant_id", sub.TenantID),
			zap.Error(err),
		)
		return err
	}

	s.log.Info("subscription activated",
		zap.String("tenant_id", sub.TenantID),
		zap.String("plan", sub.Plan),
	)
	return nil
}
