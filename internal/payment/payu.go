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
	"strconv"
	"strings"
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
	"github.com/citaflow/booking-backend/internal/tenant"
)

const payuName = string(tenant.ProviderPayU)

// PayU integrates the PayU Latam WebCheckout and confirmation webhooks.
// Tenant.ProviderPublic holds "merchantId:accountId", ProviderSecret holds
// the API key used for both checkout and confirmation signatures.
type PayU struct {
	checkoutURL string
	apiURL      string
	client      *http.Client
}

func NewPayU(checkoutURL, apiURL string) *PayU {
	return &PayU{
		checkoutURL: checkoutURL,
		apiURL:      apiURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PayU) Name() string { return payuName }

func (p *PayU) merchantAndAccount(t *tenant.Tenant) (string, string) {
	merchant, account, ok := strings.Cut(t.ProviderPublic, ":")
	if !ok {
		return t.ProviderPublic, ""
	}
	return merchant, account
}

func (p *PayU) CreatePayment(ctx context.Context, t *tenant.Tenant, req CheckoutRequest) (*Checkout, error) {
	merchant, account := p.merchantAndAccount(t)
	amount := fmt.Sprintf("%d.%02d", req.AmountCents/100, req.AmountCents%100)

	// signature = SHA256(apiKey~merchantId~reference~amount~currency)
	sum := sha256.Sum256([]byte(strings.Join([]string{
		t.ProviderSecret, merchant, req.Reference, amount, req.Currency,
	}, "~")))

	q := url.Values{}
	q.Set("merchantId", merchant)
	q.Set("accountId", account)
	q.Set("referenceCode", req.Reference)
	q.Set("amount", amount)
	q.Set("currency", req.Currency)
	q.Set("description", req.Description)
	q.Set("buyerEmail", req.CustomerEmail)
	q.Set("signature", hex.EncodeToString(sum[:]))
	if req.RedirectURL != "" {
		q.Set("responseUrl", req.RedirectURL)
	}

	return &Checkout{
		Reference:   req.Reference,
		RedirectURL: p.checkoutURL + "?" + q.Encode(),
	}, nil
}

// payuEnvelope mirrors the confirmation webhook body. state_pol: 4 approved,
// 6 declined, 104 error.
type payuEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Transaction struct {
			ID        string `json:"id"`
			Reference assocString `json:"reference"`
			StatePol  assocString `json:"state_pol"`
			Value     assocString `json:"value"`
			Currency  string      `json:"currency"`
		} `json:"transaction"`
	} `json:"data"`
	SentAt string `json:"sent_at"`
	Sign   string `json:"sign"`
}

// assocString tolerates providers sending numbers or strings for the same field.
type assocString string

func (s *assocString) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = assocString(stringify(raw))
	return nil
}

// parseAmountCents converts a decimal amount string like "150000.00" to cents.
func parseAmountCents(v string) int64 {
	if v == "" {
		return 0
	}
	whole, frac, _ := strings.Cut(v, ".")
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0
	}
	switch {
	case frac == "":
		frac = "00"
	case len(frac) == 1:
		frac += "0"
	case len(frac) > 2:
		frac = frac[:2]
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return w * 100
	}
	return w*100 + f
}

func payuState(statePol string) Status {
	switch statePol {
	case "4":
		return StatusApproved
	case "6", "5":
		return StatusDeclined
	case "104":
		return StatusError
	default:
		return StatusPending
	}
}

func (p *PayU) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var env payuEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, ErrMalformedPayload
	}
	if env.Data.Transaction.Reference == "" {
		return nil, ErrMalformedPayload
	}

	cents := parseAmountCents(string(env.Data.Transaction.Value))

	return &WebhookEvent{
		Reference:     string(env.Data.Transaction.Reference),
		Status:        payuState(string(env.Data.Transaction.StatePol)),
		TransactionID: env.Data.Transaction.ID,
		AmountCents:   cents,
		Currency:      env.Data.Transaction.Currency,
		SentAt:        env.SentAt,
		Raw:           payload,
	}, nil
}

// VerifyWebhook checks SHA256(apiKey~merchantId~reference~value~currency~state_pol)
// against the supplied signature.
func (p *PayU) VerifyWebhook(t *tenant.Tenant, payload []byte, signature string) error {
	var env payuEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ErrMalformedPayload
	}

	merchant, _ := p.merchantAndAccount(t)
	sum := sha256.Sum256([]byte(strings.Join([]string{
		t.ProviderSecret,
		merchant,
		string(env.Data.Transaction.Reference),
		string(env.Data.Transaction.Value),
		env.Data.Transaction.Currency,
		string(env.Data.Transaction.StatePol),
	}, "~")))
	want := hex.EncodeToString(sum[:])

	got := signature
	if got == "" {
		got = env.Sign
	}

	if subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func (p *PayU) GetStatus(ctx context.Context, t *tenant.Tenant, reference string) (Status, error) {
	merchant, _ := p.merchantAndAccount(t)
	body, err := json.Marshal(map[string]any{
		"test":     false,
		"command":  "ORDER_DETAIL_BY_REFERENCE_CODE",
		"language": "es",
		"merchant": map[string]string{"apiKey": t.ProviderSecret, "apiLogin": merchant},
		"details":  map[string]string{"referenceCode": reference},
	})
	if err != nil {
		return "", fmt.Errorf("marshal status request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("build status request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", apperror.Upstream(err, "payment provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperror.Upstream(
			fmt.Errorf("payu returned status %d", resp.StatusCode),
			"payment provider request failed",
		)
	}

	var out struct {
		Result struct {
			Payload []struct {
				Transactions []struct {
					TransactionResponse struct {
						State string `json:"state"`
					} `json:"transactionResponse"`
				} `json:"transactions"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperror.Upstream(err, "payment provider returned malformed response")
	}
	if len(out.Result.Payload) == 0 || len(out.Result.Payload[0].Transactions) == 0 {
		return "", ErrNotFound
	}
	return MapProviderStatus(out.Result.Payload[0].Transactions[0].TransactionResponse.State), nil
}
