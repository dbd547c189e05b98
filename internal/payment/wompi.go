package payment

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
	"github.com/citaflow/booking-backend/internal/tenant"
)

const wompiName = string(tenant.ProviderWompi)

// Wompi integrates the Wompi hosted checkout and event webhooks.
type Wompi struct {
	checkoutURL string
	apiURL      string
	client      *http.Client
}

func NewWompi(checkoutURL, apiURL string) *Wompi {
	return &Wompi{
		checkoutURL: checkoutURL,
		apiURL:      apiURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Wompi) Name() string { return wompiName }

// CreatePayment builds the hosted checkout redirect. The integrity signature
// binds reference, amount and currency to the tenant's secret so the hosted
// page rejects tampered amounts.
func (w *Wompi) CreatePayment(ctx context.Context, t *tenant.Tenant, req CheckoutRequest) (*Checkout, error) {
	integrity := sha256.Sum256([]byte(fmt.Sprintf("%s%d%s%s", req.Reference, req.AmountCents, req.Currency, t.ProviderSecret)))

	q := url.Values{}
	q.Set("public-key", t.ProviderPublic)
	q.Set("currency", req.Currency)
	q.Set("amount-in-cents", fmt.Sprintf("%d", req.AmountCents))
	q.Set("reference", req.Reference)
	q.Set("signature:integrity", hex.EncodeToString(integrity[:]))
	if req.RedirectURL != "" {
		q.Set("redirect-url", req.RedirectURL)
	}

	return &Checkout{
		Reference:   req.Reference,
		RedirectURL: w.checkoutURL + "?" + q.Encode(),
	}, nil
}

// wompiEnvelope is the inbound event shape. The signature block declares, in
// order, which payload properties the checksum covers.
type wompiEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Transaction struct {
			ID            string `json:"id"`
			Reference     string `json:"reference"`
			Status        string `json:"status"`
			AmountInCents int64  `json:"amount_in_cents"`
			Currency      string `json:"currency"`
		} `json:"transaction"`
	} `json:"data"`
	SentAt    string `json:"sent_at"`
	Signature struct {
		Properties []string `json:"properties"`
		Checksum   string   `json:"checksum"`
	} `json:"signature"`
}

func (w *Wompi) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var env wompiEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, ErrMalformedPayload
	}
	if env.Data.Transaction.Reference == "" {
		return nil, ErrMalformedPayload
	}

	return &WebhookEvent{
		Reference:     env.Data.Transaction.Reference,
		Status:        MapProviderStatus(env.Data.Transaction.Status),
		TransactionID: env.Data.Transaction.ID,
		AmountCents:   env.Data.Transaction.AmountInCents,
		Currency:      env.Data.Transaction.Currency,
		SentAt:        env.SentAt,
		Raw:           payload,
	}, nil
}

// VerifyWebhook recomputes SHA-256 over the property values the payload
// itself declares, concatenated with sent_at and the tenant secret, and
// compares it to the supplied checksum in constant time.
func (w *Wompi) VerifyWebhook(t *tenant.Tenant, payload []byte, signature string) error {
	var env wompiEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ErrMalformedPayload
	}

	var generic map[string]any
	if err := json.Unmarshal(payload, &generic); err != nil {
		return ErrMalformedPayload
	}
	data, _ := generic["data"].(map[string]any)
	if data == nil {
		return ErrMalformedPayload
	}

	var b strings.Builder
	for _, prop := range env.Signature.Properties {
		v, ok := lookupPath(data, prop)
		if !ok {
			return ErrMalformedPayload
		}
		b.WriteString(stringify(v))
	}
	b.WriteString(env.SentAt)
	b.WriteString(t.ProviderSecret)

	sum := sha256.Sum256([]byte(b.String()))
	want := hex.EncodeToString(sum[:])

	got := signature
	if got == "" {
		got = env.Signature.Checksum
	}

	if subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func (w *Wompi) GetStatus(ctx context.Context, t *tenant.Tenant, reference string) (Status, error) {
	u := fmt.Sprintf("%s/transactions?reference=%s", w.apiURL, url.QueryEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build status request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.ProviderSecret)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", apperror.Upstream(err, "payment provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperror.Upstream(
			fmt.Errorf("wompi returned status %d", resp.StatusCode),
			"payment provider request failed",
		)
	}

	var body struct {
		Data []struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperror.Upstream(err, "payment provider returned malformed response")
	}
	if len(body.Data) == 0 {
		return "", ErrNotFound
	}
	return MapProviderStatus(body.Data[0].Status), nil
}

// lookupPath resolves a dotted property path like "transaction.amount_in_cents"
// inside the decoded payload.
func lookupPath(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// stringify renders a payload value the way the provider concatenates it:
// numbers without a decimal point when integral.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	case bool:
		return fmt.Sprintf("%t", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
