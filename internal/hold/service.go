package hold

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/professional"
	"github.com/citaflow/booking-backend/internal/timerange"
)

type CreateRequest struct {
	ProfessionalID string
	ServiceID      string
	SessionID      string
	Range          timerange.TimeRange
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Hold, error)
	ReapExpired(ctx context.Context) (int64, error)
}

type service struct {
	repo    Repository
	proRepo professional.Repository
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewService(repo Repository, proRepo professional.Repository, ttl time.Duration, log *zap.Logger) Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &service{
		repo:    repo,
		proRepo: proRepo,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Hold, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, ErrInvalidTimeRange
	}

	now := s.now().UTC()
	if !req.Range.Start.After(now) {
		return nil, ErrStartTimePast
	}

	if _, err := s.proRepo.GetByID(ctx, req.ProfessionalID); err != nil {
		if errors.Is(err, professional.ErrNotFound) {
			return nil, ErrProfessionalGone
		}
		return nil, err
	}

	h := &Hold{
		ProfessionalID: req.ProfessionalID,
		ServiceID:      req.ServiceID,
		Range:          req.Range,
		SessionID:      req.SessionID,
		ExpiresAt:      now.Add(s.ttl),
	}

	created, err := s.repo.CreateExclusive(ctx, h, now)
	if err != nil {
		return nil, err
	}

	s.log.Debug("slot hold granted",
		zap.String("hold_id", created.ID),
		zap.String("professional_id", created.ProfessionalID),
		zap.Time("expires_at", created.ExpiresAt),
	)
	return created, nil
}

func (s *service) ReapExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("reaped expired holds", zap.Int64("count", n))
	}
	return n, nil
}
