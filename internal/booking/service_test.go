package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/calendar"
	"github.com/citaflow/booking-backend/internal/callback"
	"github.com/citaflow/booking-backend/internal/notification"
	"github.com/citaflow/booking-backend/internal/offering"
	"github.com/citaflow/booking-backend/internal/payment"
	"github.com/citaflow/booking-backend/internal/pkg/background"
	"github.com/citaflow/booking-backend/internal/professional"
	"github.com/citaflow/booking-backend/internal/tenant"
	"github.com/citaflow/booking-backend/internal/timerange"
)

// --- fakes ---

type fakeRepository struct {
	mu       sync.Mutex
	seq      int
	bookings map[string]*Booking
	payments map[string]*payment.Payment
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		bookings: map[string]*Booking{},
		payments: map[string]*payment.Payment{},
	}
}

func (r *fakeRepository) CreateWithPayment(ctx context.Context, b *Booking, p *payment.Payment, sessionID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, other := range r.bookings {
		if other.ProfessionalID == b.ProfessionalID && other.Status != StatusCancelled && other.Range.Overlaps(b.Range) {
			return ErrTimeConflict
		}
	}

	r.seq++
	b.ID = fmt.Sprintf("b-%d", r.seq)
	b.CreatedAt = now
	p.ID = fmt.Sprintf("p-%d", r.seq)
	p.BookingID = b.ID

	copyB := *b
	copyP := *p
	r.bookings[b.ID] = &copyB
	r.payments[p.Reference] = &copyP
	return nil
}

func (r *fakeRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	copyB := *b
	return &copyB, nil
}

func (r *fakeRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Booking
	for _, b := range r.bookings {
		copyB := *b
		out = append(out, &copyB)
	}
	return out, len(out), nil
}

func (r *fakeRepository) ListActiveRanges(ctx context.Context, professionalID string, window timerange.TimeRange) ([]timerange.TimeRange, error) {
	return nil, nil
}

func (r *fakeRepository) ApplyPaymentResult(ctx context.Context, reference string, status payment.Status, raw []byte, to Status) (*Booking, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[reference]
	if !ok {
		return nil, false, payment.ErrNotFound
	}
	p.Status = status
	p.RawPayload = raw

	b := r.bookings[p.BookingID]
	transitioned := false
	if to != "" && b.Status == StatusPending {
		b.Status = to
		transitioned = true
	}
	copyB := *b
	return &copyB, transitioned, nil
}

func (r *fakeRepository) TransitionStatus(ctx context.Context, id string, from []Status, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return false, ErrNotFound
	}
	for _, f := range from {
		if b.Status == f {
			b.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepository) SetCalendarEventID(ctx context.Context, id, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return false, ErrNotFound
	}
	if b.CalendarEventID != "" {
		return false, nil
	}
	b.CalendarEventID = eventID
	return true, nil
}

func (r *fakeRepository) CancelGuarded(ctx context.Context, id, token string, now time.Time) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if b.CancellationToken != token {
		return nil, ErrInvalidToken
	}
	if b.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if !b.Range.Start.After(now) {
		return nil, ErrAlreadyStarted
	}
	b.Status = StatusCancelled
	copyB := *b
	return &copyB, nil
}

func (r *fakeRepository) RescheduleGuarded(ctx context.Context, id, token string, newRange timerange.TimeRange, now time.Time) (*Booking, timerange.TimeRange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, timerange.TimeRange{}, ErrNotFound
	}
	if b.RescheduleToken != token {
		return nil, timerange.TimeRange{}, ErrInvalidToken
	}
	if b.Status == StatusCancelled {
		return nil, timerange.TimeRange{}, ErrAlreadyCancelled
	}
	for _, other := range r.bookings {
		if other.ID != b.ID && other.ProfessionalID == b.ProfessionalID &&
			other.Status != StatusCancelled && other.Range.Overlaps(newRange) {
			return nil, timerange.TimeRange{}, ErrTimeConflict
		}
	}
	old := b.Range
	b.Range = newRange
	copyB := *b
	return &copyB, old, nil
}

type fakeTenantRepo struct{ t *tenant.Tenant }

func (r *fakeTenantRepo) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	if r.t == nil || r.t.ID != id {
		return nil, tenant.ErrNotFound
	}
	return r.t, nil
}

func (r *fakeTenantRepo) UpdatePlan(ctx context.Context, id string, plan tenant.Plan) error {
	return nil
}

type fakeProRepo struct{ p *professional.Professional }

func (r *fakeProRepo) GetByID(ctx context.Context, id string) (*professional.Professional, error) {
	if r.p == nil || r.p.ID != id {
		return nil, professional.ErrNotFound
	}
	return r.p, nil
}

func (r *fakeProRepo) ListByTenant(ctx context.Context, tenantID string) ([]*professional.Professional, error) {
	return []*professional.Professional{r.p}, nil
}

type fakeOffRepo struct{ o *offering.Offering }

func (r *fakeOffRepo) GetByID(ctx context.Context, id string) (*offering.Offering, error) {
	if r.o == nil || r.o.ID != id {
		return nil, offering.ErrNotFound
	}
	return r.o, nil
}

type fakeProvider struct {
	fail bool
}

func (p *fakeProvider) Name() string { return string(tenant.ProviderWompi) }

func (p *fakeProvider) CreatePayment(ctx context.Context, t *tenant.Tenant, req payment.CheckoutRequest) (*payment.Checkout, error) {
	if p.fail {
		return nil, errors.New("provider down")
	}
	return &payment.Checkout{Reference: req.Reference, RedirectURL: "https://checkout.test/" + req.Reference}, nil
}

func (p *fakeProvider) ParseWebhook(payload []byte) (*payment.WebhookEvent, error) {
	return nil, payment.ErrMalformedPayload
}

func (p *fakeProvider) VerifyWebhook(t *tenant.Tenant, payload []byte, signature string) error {
	return nil
}

func (p *fakeProvider) GetStatus(ctx context.Context, t *tenant.Tenant, reference string) (payment.Status, error) {
	return payment.StatusPending, nil
}

type fakeCalendar struct {
	mu      sync.Mutex
	created int
	updated int
	deleted int
}

func (c *fakeCalendar) GetFreeBusy(ctx context.Context, cred calendar.Credential, calendarID string, from, to time.Time) ([]timerange.TimeRange, error) {
	return nil, nil
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, cred calendar.Credential, calendarID string, details calendar.EventDetails) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	return fmt.Sprintf("ev-%d", c.created), nil
}

func (c *fakeCalendar) UpdateEvent(ctx context.Context, cred calendar.Credential, calendarID, eventID string, details calendar.EventDetails) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated++
	return nil
}

func (c *fakeCalendar) DeleteEvent(ctx context.Context, cred calendar.Credential, calendarID, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted++
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (m *fakeMailer) Send(ctx context.Context, msg notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []callback.Event
}

func (n *fakeNotifier) Deliver(ctx context.Context, target callback.Target, e callback.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *fakeNotifier) byType(eventType string) []callback.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []callback.Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// --- fixture ---

type fixture struct {
	svc      Service
	repo     *fakeRepository
	provider *fakeProvider
	cal      *fakeCalendar
	mailer   *fakeMailer
	notifier *fakeNotifier
	bg       *background.Group
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tn := &tenant.Tenant{
		ID:              "tn-1",
		PaymentProvider: tenant.ProviderWompi,
		ProviderSecret:  "secret",
		WebhookSecret:   "hook-secret",
		CallbackURL:     "https://merchant.test/cb",
		CalendarToken:   "cal-token",
	}
	pro := &professional.Professional{ID: "pro-1", TenantID: "tn-1", Name: "Dana", CalendarID: "cal-1"}
	off := &offering.Offering{
		ID: "svc-1", TenantID: "tn-1", Name: "Corte",
		DurationMinutes: 60, PriceCents: 150000, Currency: "COP",
	}

	f := &fixture{
		repo:     newFakeRepository(),
		provider: &fakeProvider{},
		cal:      &fakeCalendar{},
		mailer:   &fakeMailer{},
		notifier: &fakeNotifier{},
		bg:       background.NewGroup(zap.NewNop(), 5*time.Second),
		now:      now,
	}

	svc := NewService(
		f.repo,
		&fakeTenantRepo{t: tn},
		&fakeProRepo{p: pro},
		&fakeOffRepo{o: off},
		payment.NewProviders(f.provider),
		f.cal,
		f.mailer,
		f.notifier,
		f.bg,
		zap.NewNop(),
	)
	svc.(*service).now = func() time.Time { return now }
	f.svc = svc
	return f
}

func (f *fixture) createRequest() CreateRequest {
	start := f.now.Add(24 * time.Hour)
	return CreateRequest{
		TenantID:       "tn-1",
		ServiceID:      "svc-1",
		ProfessionalID: "pro-1",
		SessionID:      "sess-1",
		Range:          timerange.TimeRange{Start: start, End: start.Add(time.Hour)},
		Customer:       Customer{Name: "Ana", Email: "ana@cliente.test"},
		AcceptedTerms:  true,
	}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	require.True(t, f.bg.Drain(2*time.Second))
}

// --- tests ---

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, result.Booking.Status)
	assert.NotEmpty(t, result.Booking.CancellationToken)
	assert.NotEmpty(t, result.Booking.RescheduleToken)
	assert.NotEqual(t, result.Booking.CancellationToken, result.Booking.RescheduleToken)
	assert.Contains(t, result.Reference, "bk-")
	assert.Contains(t, result.CheckoutURL, result.Reference)

	p, ok := f.repo.payments[result.Reference]
	require.True(t, ok)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, int64(150000), p.AmountCents)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest()
	req.AcceptedTerms = false
	_, err := f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrTermsNotAccepted)

	req = f.createRequest()
	req.Range.End = req.Range.Start
	_, err = f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	req = f.createRequest()
	req.Range.Start = f.now.Add(-time.Hour)
	req.Range.End = f.now
	_, err = f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrStartTimePast)

	req = f.createRequest()
	req.Range.End = req.Range.Start.Add(30 * time.Minute)
	_, err = f.svc.Create(context.Background(), req)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidTimeRange)

	req = f.createRequest()
	req.ServiceID = "other"
	_, err = f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestCreateBookingSlotConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), f.createRequest())
	assert.ErrorIs(t, err, ErrTimeConflict)
}

func TestCreateBookingCheckoutFailureReleasesSlot(t *testing.T) {
	f := newFixture(t)
	f.provider.fail = true

	_, err := f.svc.Create(context.Background(), f.createRequest())
	require.Error(t, err)

	// The booking no longer claims the slot, so a retry can succeed.
	f.provider.fail = false
	_, err = f.svc.Create(context.Background(), f.createRequest())
	assert.NoError(t, err)
}

func TestPaymentApprovedTransitionsAndNotifies(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentApproved(context.Background(), result.Reference, []byte(`{}`)))
	f.drain(t)

	b, err := f.svc.GetByID(context.Background(), result.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, b.Status)
	assert.NotEmpty(t, b.CalendarEventID)

	assert.Equal(t, 1, f.cal.created)
	assert.Equal(t, 1, f.mailer.count())
	require.Len(t, f.notifier.byType(callback.EventBookingCreated), 1)
}

func TestPaymentApprovedRedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentApproved(context.Background(), result.Reference, []byte(`{}`)))
	f.drain(t)
	require.NoError(t, f.svc.OnPaymentApproved(context.Background(), result.Reference, []byte(`{}`)))
	f.drain(t)

	assert.Equal(t, 1, f.cal.created, "redelivery must not create a second calendar event")
	assert.Equal(t, 1, f.mailer.count(), "redelivery must not resend mail")
	assert.Len(t, f.notifier.byType(callback.EventBookingCreated), 1)
}

func TestPaymentApprovedUnknownReference(t *testing.T) {
	f := newFixture(t)

	err := f.svc.OnPaymentApproved(context.Background(), "bk-never", []byte(`{}`))
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func TestPaymentDeclinedCancelsBooking(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentDeclined(context.Background(), result.Reference, []byte(`{}`)))

	b, err := f.svc.GetByID(context.Background(), result.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, b.Status)
}

func TestPaymentDeclinedAfterApprovalKeepsBooking(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentApproved(context.Background(), result.Reference, []byte(`{}`)))
	f.drain(t)
	require.NoError(t, f.svc.OnPaymentDeclined(context.Background(), result.Reference, []byte(`{}`)))

	b, err := f.svc.GetByID(context.Background(), result.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, b.Status, "a settled booking must not move backwards")
}

func TestOnDeliveredConfirmsPaidBooking(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentApproved(context.Background(), result.Reference, []byte(`{}`)))
	f.drain(t)
	require.NoError(t, f.svc.OnDelivered(context.Background(), result.Booking.ID))

	b, err := f.svc.GetByID(context.Background(), result.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.Status)
}

func TestOnDeliveredIgnoresPendingBooking(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.OnDelivered(context.Background(), result.Booking.ID))

	b, err := f.svc.GetByID(context.Background(), result.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentApproved(context.Background(), result.Reference, []byte(`{}`)))
	f.drain(t)

	b, err := f.svc.Cancel(context.Background(), result.Booking.ID, result.Booking.CancellationToken)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, b.Status)
	f.drain(t)

	assert.Equal(t, 1, f.cal.deleted)
	assert.Len(t, f.notifier.byType(callback.EventBookingCancelled), 1)
}

func TestCancelBookingWrongToken(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), result.Booking.ID, "not-the-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	b, err := f.svc.GetByID(context.Background(), result.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
}

func TestCancelBookingTwice(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), result.Booking.ID, result.Booking.CancellationToken)
	require.NoError(t, err)
	f.drain(t)

	_, err = f.svc.Cancel(context.Background(), result.Booking.ID, result.Booking.CancellationToken)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	assert.Len(t, f.notifier.byType(callback.EventBookingCancelled), 1, "second cancel must not notify again")
}

func TestRescheduleBooking(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentApproved(context.Background(), result.Reference, []byte(`{}`)))
	f.drain(t)

	oldStart := result.Booking.Range.Start
	newStart := oldStart.Add(48 * time.Hour)
	newRange := timerange.TimeRange{Start: newStart, End: newStart.Add(time.Hour)}

	b, err := f.svc.Reschedule(context.Background(), result.Booking.ID, result.Booking.RescheduleToken, newRange)
	require.NoError(t, err)
	assert.Equal(t, newStart, b.Range.Start)
	f.drain(t)

	assert.Equal(t, 1, f.cal.updated)
	events := f.notifier.byType(callback.EventBookingRescheduled)
	require.Len(t, events, 1)
	prev, ok := events[0].Body["cita_anterior"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, oldStart, prev["inicio"])
}

func TestRescheduleBookingWrongToken(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	newStart := f.now.Add(72 * time.Hour)
	_, err = f.svc.Reschedule(context.Background(), result.Booking.ID, result.Booking.CancellationToken,
		timerange.TimeRange{Start: newStart, End: newStart.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRescheduleBookingConflict(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	req := f.createRequest()
	req.Range.Start = req.Range.Start.Add(2 * time.Hour)
	req.Range.End = req.Range.End.Add(2 * time.Hour)
	second, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), second.Booking.ID, second.Booking.RescheduleToken, first.Booking.Range)
	assert.ErrorIs(t, err, ErrTimeConflict)
}

func TestReschedulePastStartRejected(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), result.Booking.ID, result.Booking.RescheduleToken,
		timerange.TimeRange{Start: f.now.Add(-2 * time.Hour), End: f.now.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrStartTimePast)
}
