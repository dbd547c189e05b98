package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citaflow/booking-backend/internal/tenant"
)

func wompiPayload(t *testing.T, reference, status string, amountCents int64, secret string) []byte {
	t.Helper()
	sentAt := "2026-03-10T15:04:05.000Z"

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s%d%s%s%s", reference, amountCents, "COP", sentAt, secret)))

	payload := map[string]any{
		"event": "transaction.updated",
		"data": map[string]any{
			"transaction": map[string]any{
				"id":              "txn-1",
				"reference":       reference,
				"status":          status,
				"amount_in_cents": amountCents,
				"currency":        "COP",
			},
		},
		"sent_at": sentAt,
		"signature": map[string]any{
			"properties": []string{
				"transaction.reference",
				"transaction.amount_in_cents",
				"transaction.currency",
			},
			"checksum": hex.EncodeToString(sum[:]),
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func TestWompiParseWebhook(t *testing.T) {
	w := NewWompi("https://checkout.test/p/", "https://api.test/v1")
	payload := wompiPayload(t, "bk-abc", "APPROVED", 150000, "secret")

	event, err := w.ParseWebhook(payload)
	require.NoError(t, err)
	assert.Equal(t, "bk-abc", event.Reference)
	assert.Equal(t, StatusApproved, event.Status)
	assert.Equal(t, int64(150000), event.AmountCents)
	assert.Equal(t, "COP", event.Currency)
}

func TestWompiParseWebhookRejectsGarbage(t *testing.T) {
	w := NewWompi("", "")

	_, err := w.ParseWebhook([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = w.ParseWebhook([]byte(`{"event":"transaction.updated","data":{"transaction":{}}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestWompiVerifyWebhook(t *testing.T) {
	w := NewWompi("", "")
	tn := &tenant.Tenant{ProviderSecret: "secret"}
	payload := wompiPayload(t, "bk-abc", "APPROVED", 150000, "secret")

	assert.NoError(t, w.VerifyWebhook(tn, payload, ""))
}

func TestWompiVerifyWebhookHeaderChecksum(t *testing.T) {
	w := NewWompi("", "")
	tn := &tenant.Tenant{ProviderSecret: "secret"}
	payload := wompiPayload(t, "bk-abc", "APPROVED", 150000, "secret")

	var env wompiEnvelope
	require.NoError(t, json.Unmarshal(payload, &env))

	assert.NoError(t, w.VerifyWebhook(tn, payload, env.Signature.Checksum))
	assert.NoError(t, w.VerifyWebhook(tn, payload, strings.ToUpper(env.Signature.Checksum)))
}

func TestWompiVerifyWebhookWrongSecret(t *testing.T) {
	w := NewWompi("", "")
	payload := wompiPayload(t, "bk-abc", "APPROVED", 150000, "secret")

	err := w.VerifyWebhook(&tenant.Tenant{ProviderSecret: "other"}, payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWompiVerifyWebhookRejectsTamperedAmount(t *testing.T) {
	w := NewWompi("", "")
	tn := &tenant.Tenant{ProviderSecret: "secret"}
	payload := wompiPayload(t, "bk-abc", "APPROVED", 150000, "secret")

	var generic map[string]any
	require.NoError(t, json.Unmarshal(payload, &generic))
	tx := generic["data"].(map[string]any)["transaction"].(map[string]any)
	tx["amount_in_cents"] = 1

	tampered, err := json.Marshal(generic)
	require.NoError(t, err)

	assert.ErrorIs(t, w.VerifyWebhook(tn, tampered, ""), ErrInvalidSignature)
}

func TestWompiCreatePaymentBuildsSignedCheckout(t *testing.T) {
	w := NewWompi("https://checkout.test/p/", "")
	tn := &tenant.Tenant{ProviderPublic: "pub_test_1", ProviderSecret: "secret"}

	checkout, err := w.CreatePayment(context.Background(), tn, CheckoutRequest{
		Reference:   "bk-abc",
		AmountCents: 150000,
		Currency:    "COP",
	})
	require.NoError(t, err)

	integrity := sha256.Sum256([]byte("bk-abc150000COPsecret"))
	assert.Equal(t, "bk-abc", checkout.Reference)
	assert.Contains(t, checkout.RedirectURL, "reference=bk-abc")
	assert.Contains(t, checkout.RedirectURL, hex.EncodeToString(integrity[:]))
}

func TestMapProviderStatus(t *testing.T) {
	assert.Equal(t, StatusApproved, MapProviderStatus("APPROVED"))
	assert.Equal(t, StatusDeclined, MapProviderStatus("DECLINED"))
	assert.Equal(t, StatusDeclined, MapProviderStatus("VOIDED"))
	assert.Equal(t, StatusError, MapProviderStatus("ERROR"))
	assert.Equal(t, StatusPending, MapProviderStatus("PENDING"))
	assert.Equal(t, StatusPending, MapProviderStatus("whatever"))
}
