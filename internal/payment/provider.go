package payment

import (
	"context"

	"github.com/citaflow/booking-backend/internal/tenant"
)

// CheckoutRequest describes the payment a provider should collect.
type CheckoutRequest struct {
	Reference     string
	AmountCents   int64
	Currency      string
	Description   string
	CustomerName  string
	CustomerEmail string
	RedirectURL   string
}

// Checkout is the provider-hosted payment page handed back to the client.
type Checkout struct {
	Reference   string
	RedirectURL string
}

// WebhookEvent is the validated, typed form of an inbound provider webhook.
// The raw payload never crosses this boundary; the state machine only sees
// this struct.
type WebhookEvent struct {
	Reference     string
	Status        Status
	TransactionID string
	AmountCents   int64
	Currency      string
	SentAt        string
	Raw           []byte
}

// Provider is the capability surface every payment integration implements.
// One value per provider, selected by tenant configuration at construction.
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, t *tenant.Tenant, req CheckoutRequest) (*Checkout, error)
	// ParseWebhook validates and converts a raw payload into a WebhookEvent.
	ParseWebhook(payload []byte) (*WebhookEvent, error)
	// VerifyWebhook authenticates payload+signature against the tenant's
	// shared secret. It must be called before any state mutation.
	VerifyWebhook(t *tenant.Tenant, payload []byte, signature string) error
	// GetStatus queries the provider for the current transaction state.
	GetStatus(ctx context.Context, t *tenant.Tenant, reference string) (Status, error)
}

// Providers selects the integration configured for a tenant.
type Providers struct {
	byName map[tenant.PaymentProvider]Provider
}

func NewProviders(list ...Provider) *Providers {
	m := make(map[tenant.PaymentProvider]Provider, len(list))
	for _, p := range list {
		m[tenant.PaymentProvider(p.Name())] = p
	}
	return &Providers{byName: m}
}

// For returns the provider a tenant is configured to use.
func (ps *Providers) For(t *tenant.Tenant) (Provider, error) {
	p, ok := ps.byName[t.PaymentProvider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// ByName returns a provider by its wire name, for webhook routing.
func (ps *Providers) ByName(name string) (Provider, error) {
	p, ok := ps.byName[tenant.PaymentProvider(name)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}
