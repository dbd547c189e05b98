package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/subscription"
	"github.com/citaflow/booking-backend/internal/tenant"
)

// BookingHooks is how reconciliation reaches the booking lifecycle without
// this package depending on it. Implementations apply the payment result and
// the booking transition in one transaction.
type BookingHooks interface {
	OnPaymentApproved(ctx context.Context, reference string, raw []byte) error
	OnPaymentDeclined(ctx context.Context, reference string, raw []byte) error
	OnPaymentError(ctx context.Context, reference string, raw []byte) error
	OnPaymentPending(ctx context.Context, reference string, raw []byte) error
}

// Processor consumes inbound provider webhooks: route, authenticate, map,
// reconcile. Signature verification happens before any mutation, and a
// reference this system never issued is acknowledged without touching state
// so the provider stops redelivering it.
type Processor struct {
	repo       Repository
	tenantRepo tenant.Repository
	providers  *Providers
	hooks      BookingHooks
	subs       subscription.Service
	// platformSecret authenticates subscription-billing webhooks, which are
	// charged against the platform's own provider account.
	platformSecret string
	log            *zap.Logger
}

func NewProcessor(
	repo Repository,
	tenantRepo tenant.Repository,
	providers *Providers,
	hooks BookingHooks,
	subs subscription.Service,
	platformSecret string,
	log *zap.Logger,
) *Processor {
	return &Processor{
		repo:           repo,
		tenantRepo:     tenantRepo,
		providers:      providers,
		hooks:          hooks,
		subs:           subs,
		platformSecret: platformSecret,
		log:            log,
	}
}

func (p *Processor) Process(ctx context.Context, providerName string, payload []byte, signature string) error {
	provider, err := p.providers.ByName(providerName)
	if err != nil {
		return err
	}

	event, err := provider.ParseWebhook(payload)
	if err != nil {
		return err
	}

	if subscription.IsSubscriptionReference(event.Reference) {
		platform := &tenant.Tenant{ProviderSecret: p.platformSecret}
		if err := provider.VerifyWebhook(platform, payload, signature); err != nil {
			return err
		}
		return p.subs.Reconcile(ctx, event.Reference, event.Status == StatusApproved)
	}

	pay, err := p.repo.GetByReference(ctx, event.Reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.log.Warn("payment webhook for unknown reference",
				zap.String("provider", providerName),
				zap.String("reference", event.Reference),
			)
			return nil
		}
		return err
	}

	t, err := p.tenantRepo.GetByID(ctx, pay.TenantID)
	if err != nil {
		return err
	}

	if err := provider.VerifyWebhook(t, payload, signature); err != nil {
		p.log.Warn("payment webhook rejected",
			zap.String("provider", providerName),
			zap.String("reference", event.Reference),
			zap.Error(err),
		)
		return err
	}

	p.log.Info("payment webhook verified",
		zap.String("provider", providerName),
		zap.String("reference", event.Reference),
		zap.String("status", string(event.Status)),
	)

	switch event.Status {
	case StatusApproved:
		return p.hooks.OnPaymentApproved(ctx, event.Reference, event.Raw)
	case StatusDeclined:
		return p.hooks.OnPaymentDeclined(ctx, event.Reference, event.Raw)
	case StatusError:
		return p.hooks.OnPaymentError(ctx, event.Reference, event.Raw)
	default:
		return p.hooks.OnPaymentPending(ctx, event.Reference, event.Raw)
	}
}
