package callback

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/pkg/retry"
)

// SignatureHeader carries the same HMAC embedded in the payload's seguridad
// block.
const SignatureHeader = "X-Citaflow-Signature"

const requestTimeout = 10 * time.Second

// placeholderDomains are endpoints merchants leave in place before
// configuring a real one; posting to them is pointless.
var placeholderDomains = []string{"example.com", "ejemplo.com"}

// Acknowledger is told when a booking.created event was accepted by the
// merchant, which is what advances the booking to confirmed.
type Acknowledger interface {
	OnDelivered(ctx context.Context, bookingID string) error
}

// Dispatcher delivers signed event notifications to merchant endpoints with
// bounded retries and a full audit trail. Deliver never surfaces an error to
// its caller: webhook failure must not fail the operation that triggered it.
type Dispatcher struct {
	repo   Repository
	ack    Acknowledger
	policy retry.Policy
	client *http.Client
	log    *zap.Logger
}

func NewDispatcher(repo Repository, ack Acknowledger, policy retry.Policy, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		ack:    ack,
		policy: policy,
		client: &http.Client{Timeout: requestTimeout},
		log:    log,
	}
}

// SetAcknowledger breaks the construction cycle with the booking service,
// which both consumes the dispatcher and confirms deliveries. Call before
// serving traffic.
func (d *Dispatcher) SetAcknowledger(ack Acknowledger) {
	d.ack = ack
}

// terminalError marks outcomes that retrying cannot fix (non-2xx, non-5xx).
type terminalError struct {
	status int
}

func (e *terminalError) Error() string {
	return fmt.Sprintf("endpoint returned terminal status %d", e.status)
}

func (e *terminalError) Retryable() bool { return false }

// Sign computes hex(HMAC-SHA256(secret, "{bookingID}:{tenantID}")).
func Sign(secret, bookingID, tenantID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%s", bookingID, tenantID)
	return hex.EncodeToString(mac.Sum(nil))
}

// Deliver posts the signed event to the target. 2xx acknowledges; 5xx and
// network failures are retried with strictly increasing delay; anything else
// is terminal. Exactly one audit row is written per delivery, success or not.
func (d *Dispatcher) Deliver(ctx context.Context, target Target, e Event) {
	if skipURL(target.URL) {
		d.log.Debug("outbound webhook skipped",
			zap.String("booking_id", e.BookingID),
			zap.String("url", target.URL),
		)
		return
	}

	signature := Sign(target.Secret, e.BookingID, e.TenantID)

	body := make(map[string]any, len(e.Body)+2)
	for k, v := range e.Body {
		body[k] = v
	}
	body["evento"] = e.Type
	body["seguridad"] = map[string]string{"firma_hmac": signature}

	payload, err := json.Marshal(body)
	if err != nil {
		d.log.Error("outbound webhook payload marshal failed",
			zap.String("booking_id", e.BookingID),
			zap.Error(err),
		)
		return
	}

	lastStatus := 0
	attempts := 0

	err = d.policy.Do(ctx, func(attempt int) error {
		attempts = attempt + 1
		status, err := d.post(ctx, target.URL, signature, payload)
		lastStatus = status
		if err != nil {
			return err
		}
		if status >= 200 && status < 300 {
			return nil
		}
		if status >= 500 {
			return fmt.Errorf("endpoint returned status %d", status)
		}
		return &terminalError{status: status}
	})

	entry := &Log{
		BookingID:  e.BookingID,
		URL:        target.URL,
		Payload:    payload,
		StatusCode: lastStatus,
		Success:    err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if logErr := d.repo.Create(ctx, entry); logErr != nil {
		d.log.Error("callback log write failed",
			zap.String("booking_id", e.BookingID),
			zap.Error(logErr),
		)
	}

	if err != nil {
		d.log.Warn("outbound webhook delivery failed",
			zap.String("booking_id", e.BookingID),
			zap.String("event", e.Type),
			zap.Int("attempts", attempts),
			zap.Int("last_status", lastStatus),
			zap.Error(err),
		)
		return
	}

	d.log.Info("outbound webhook delivered",
		zap.String("booking_id", e.BookingID),
		zap.String("event", e.Type),
		zap.Int("attempts", attempts),
	)

	if e.Type == EventBookingCreated && d.ack != nil {
		if ackErr := d.ack.OnDelivered(ctx, e.BookingID); ackErr != nil {
			d.log.Warn("booking confirm after delivery failed",
				zap.String("booking_id", e.BookingID),
				zap.Error(ackErr),
			)
		}
	}
}

func (d *Dispatcher) post(ctx context.Context, endpoint, signature string, payload []byte) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, &terminalError{status: 0}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		// Network failure: no HTTP status, retry.
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func skipURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range placeholderDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
