package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/calendar"
	"github.com/citaflow/booking-backend/internal/callback"
	"github.com/citaflow/booking-backend/internal/notification"
	"github.com/citaflow/booking-backend/internal/offering"
	"github.com/citaflow/booking-backend/internal/payment"
	"github.com/citaflow/booking-backend/internal/pkg/background"
	"github.com/citaflow/booking-backend/internal/pkg/token"
	"github.com/citaflow/booking-backend/internal/professional"
	"github.com/citaflow/booking-backend/internal/tenant"
	"github.com/citaflow/booking-backend/internal/timerange"
)

type CreateRequest struct {
	TenantID       string
	LinkID         string
	ServiceID      string
	ProfessionalID string
	SessionID      string
	Range          timerange.TimeRange
	Customer       Customer
	AcceptedTerms  bool
}

// CreateResult is what the client needs to continue checkout: the pending
// booking and the provider-hosted payment page.
type CreateResult struct {
	Booking     *Booking
	Reference   string
	CheckoutURL string
}

// Notifier delivers outbound merchant webhooks; satisfied by
// callback.Dispatcher.
type Notifier interface {
	Deliver(ctx context.Context, target callback.Target, e callback.Event)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	Cancel(ctx context.Context, id, tok string) (*Booking, error)
	Reschedule(ctx context.Context, id, tok string, newRange timerange.TimeRange) (*Booking, error)

	// Payment reconciliation hooks, driven by the inbound webhook processor.
	OnPaymentApproved(ctx context.Context, reference string, raw []byte) error
	OnPaymentDeclined(ctx context.Context, reference string, raw []byte) error
	OnPaymentError(ctx context.Context, reference string, raw []byte) error
	OnPaymentPending(ctx context.Context, reference string, raw []byte) error

	// OnDelivered is the merchant's acknowledgement of booking.created.
	OnDelivered(ctx context.Context, bookingID string) error
}

type service struct {
	repo       Repository
	tenantRepo tenant.Repository
	proRepo    professional.Repository
	offRepo    offering.Repository
	providers  *payment.Providers
	cal        calendar.Client
	mailer     notification.Mailer
	notifier   Notifier
	bg         *background.Group
	now        func() time.Time
	log        *zap.Logger
}

func NewService(
	repo Repository,
	tenantRepo tenant.Repository,
	proRepo professional.Repository,
	offRepo offering.Repository,
	providers *payment.Providers,
	cal calendar.Client,
	mailer notification.Mailer,
	notifier Notifier,
	bg *background.Group,
	log *zap.Logger,
) Service {
	return &service{
		repo:       repo,
		tenantRepo: tenantRepo,
		proRepo:    proRepo,
		offRepo:    offRepo,
		providers:  providers,
		cal:        cal,
		mailer:     mailer,
		notifier:   notifier,
		bg:         bg,
		now:        time.Now,
		log:        log,
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if !req.AcceptedTerms {
		return nil, ErrTermsNotAccepted
	}
	if err := req.Range.Validate(); err != nil {
		return nil, ErrInvalidTimeRange
	}

	now := s.now().UTC()
	if !req.Range.Start.After(now) {
		return nil, ErrStartTimePast
	}

	off, err := s.offRepo.GetByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, offering.ErrNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	if off.TenantID != req.TenantID {
		return nil, ErrServiceNotFound
	}
	if req.Range.Duration() != time.Duration(off.DurationMinutes)*time.Minute {
		return nil, errDurationMismatch(off.DurationMinutes)
	}

	pro, err := s.proRepo.GetByID(ctx, req.ProfessionalID)
	if err != nil {
		return nil, err
	}
	if pro.TenantID != req.TenantID {
		return nil, professional.ErrNotFound
	}

	t, err := s.tenantRepo.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	cancelTok, err := token.New()
	if err != nil {
		return nil, err
	}
	reschedTok, err := token.New()
	if err != nil {
		return nil, err
	}
	reference := "bk-" + uuid.New().String()

	b := &Booking{
		TenantID:          req.TenantID,
		LinkID:            req.LinkID,
		ServiceID:         req.ServiceID,
		ProfessionalID:    req.ProfessionalID,
		Range:             req.Range,
		Customer:          req.Customer,
		AcceptedTerms:     req.AcceptedTerms,
		Status:            StatusPending,
		CancellationToken: cancelTok,
		RescheduleToken:   reschedTok,
	}
	p := &payment.Payment{
		TenantID:    req.TenantID,
		Provider:    string(t.PaymentProvider),
		Reference:   reference,
		AmountCents: off.PriceCents,
		Currency:    off.Currency,
		Status:      payment.StatusPending,
	}

	if err := s.repo.CreateWithPayment(ctx, b, p, req.SessionID, now); err != nil {
		return nil, err
	}

	provider, err := s.providers.For(t)
	if err != nil {
		return nil, err
	}

	checkout, err := provider.CreatePayment(ctx, t, payment.CheckoutRequest{
		Reference:     reference,
		AmountCents:   off.PriceCents,
		Currency:      off.Currency,
		Description:   off.Name,
		CustomerName:  req.Customer.Name,
		CustomerEmail: req.Customer.Email,
	})
	if err != nil {
		// The slot must not stay claimed by a booking that can never be paid.
		if _, txErr := s.repo.TransitionStatus(ctx, b.ID, []Status{StatusPending}, StatusCancelled); txErr != nil {
			s.log.Error("cancel after checkout failure failed",
				zap.String("booking_id", b.ID),
				zap.Error(txErr),
			)
		}
		return nil, err
	}

	s.log.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.String("tenant_id", b.TenantID),
		zap.String("reference", reference),
	)

	return &CreateResult{Booking: b, Reference: reference, CheckoutURL: checkout.RedirectURL}, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) OnPaymentApproved(ctx context.Context, reference string, raw []byte) error {
	b, transitioned, err := s.repo.ApplyPaymentResult(ctx, reference, payment.StatusApproved, raw, StatusPaid)
	if err != nil {
		return err
	}

	// The calendarEventID guard makes duplicate webhook deliveries create at
	// most one event; the transition flag keeps emails and merchant webhooks
	// to one dispatch sequence.
	if b.CalendarEventID == "" {
		s.bg.Go("calendar-create", func(ctx context.Context) {
			s.createCalendarEvent(ctx, b)
		})
	}

	if transitioned {
		s.bg.Go("booking-notify", func(ctx context.Context) {
			s.sendEmail(ctx, b, "Tu cita está confirmada",
				fmt.Sprintf("Tu pago fue aprobado. Cita: %s.", b.Range.Start.Format(time.RFC1123)))
			s.dispatchEvent(ctx, b, callback.EventBookingCreated, nil)
		})
	}
	return nil
}

func (s *service) OnPaymentDeclined(ctx context.Context, reference string, raw []byte) error {
	_, _, err := s.repo.ApplyPaymentResult(ctx, reference, payment.StatusDeclined, raw, StatusCancelled)
	return err
}

func (s *service) OnPaymentError(ctx context.Context, reference string, raw []byte) error {
	_, _, err := s.repo.ApplyPaymentResult(ctx, reference, payment.StatusError, raw, StatusCancelled)
	return err
}

func (s *service) OnPaymentPending(ctx context.Context, reference string, raw []byte) error {
	// The provider has not settled yet; keep the booking untouched but
	// record the latest payload.
	_, _, err := s.repo.ApplyPaymentResult(ctx, reference, payment.StatusPending, raw, "")
	return err
}

func (s *service) OnDelivered(ctx context.Context, bookingID string) error {
	applied, err := s.repo.TransitionStatus(ctx, bookingID, []Status{StatusPaid}, StatusConfirmed)
	if err != nil {
		return err
	}
	if applied {
		s.log.Info("booking confirmed", zap.String("booking_id", bookingID))
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, id, tok string) (*Booking, error) {
	b, err := s.repo.CancelGuarded(ctx, id, tok, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.log.Info("booking cancelled", zap.String("booking_id", b.ID))

	s.bg.Go("booking-cancel-effects", func(ctx context.Context) {
		if b.CalendarEventID != "" {
			s.deleteCalendarEvent(ctx, b)
		}
		s.sendEmail(ctx, b, "Tu cita fue cancelada",
			fmt.Sprintf("La cita del %s fue cancelada.", b.Range.Start.Format(time.RFC1123)))
		s.dispatchEvent(ctx, b, callback.EventBookingCancelled, nil)
	})
	return b, nil
}

func (s *service) Reschedule(ctx context.Context, id, tok string, newRange timerange.TimeRange) (*Booking, error) {
	if err := newRange.Validate(); err != nil {
		return nil, ErrInvalidTimeRange
	}
	now := s.now().UTC()
	if !newRange.Start.After(now) {
		return nil, ErrStartTimePast
	}

	b, oldRange, err := s.repo.RescheduleGuarded(ctx, id, tok, newRange, now)
	if err != nil {
		return nil, err
	}

	s.log.Info("booking rescheduled",
		zap.String("booking_id", b.ID),
		zap.Time("old_start", oldRange.Start),
		zap.Time("new_start", b.Range.Start),
	)

	s.bg.Go("booking-reschedule-effects", func(ctx context.Context) {
		if b.CalendarEventID != "" {
			s.updateCalendarEvent(ctx, b)
		}
		s.sendEmail(ctx, b, "Tu cita fue reprogramada",
			fmt.Sprintf("Nueva fecha: %s.", b.Range.Start.Format(time.RFC1123)))
		s.dispatchEvent(ctx, b, callback.EventBookingRescheduled, map[string]any{
			"cita_anterior": map[string]any{
				"inicio": oldRange.Start,
				"fin":    oldRange.End,
			},
		})
	})
	return b, nil
}

// --- best-effort side effects ---

func (s *service) createCalendarEvent(ctx context.Context, b *Booking) {
	t, pro, off, err := s.loadContext(ctx, b)
	if err != nil {
		s.log.Warn("calendar event skipped", zap.String("booking_id", b.ID), zap.Error(err))
		return
	}

	eventID, err := s.cal.CreateEvent(ctx, calendar.Credential{AccessToken: t.CalendarToken}, pro.CalendarID, calendar.EventDetails{
		Summary:     fmt.Sprintf("%s - %s", off.Name, b.Customer.Name),
		Description: fmt.Sprintf("Reserva %s", b.ID),
		Range:       b.Range,
		Attendees:   []string{b.Customer.Email},
	})
	if err != nil {
		s.log.Warn("calendar event creation failed", zap.String("booking_id", b.ID), zap.Error(err))
		return
	}

	set, err := s.repo.SetCalendarEventID(ctx, b.ID, eventID)
	if err != nil {
		s.log.Error("calendar event id persist failed", zap.String("booking_id", b.ID), zap.Error(err))
		return
	}
	if !set {
		// A concurrent redelivery won; undo the duplicate event.
		if delErr := s.cal.DeleteEvent(ctx, calendar.Credential{AccessToken: t.CalendarToken}, pro.CalendarID, eventID); delErr != nil {
			s.log.Warn("duplicate calendar event cleanup failed", zap.String("booking_id", b.ID), zap.Error(delErr))
		}
	}
}

func (s *service) updateCalendarEvent(ctx context.Context, b *Booking) {
	t, pro, off, err := s.loadContext(ctx, b)
	if err != nil {
		s.log.Warn("calendar event update skipped", zap.String("booking_id", b.ID), zap.Error(err))
		return
	}

	err = s.cal.UpdateEvent(ctx, calendar.Credential{AccessToken: t.CalendarToken}, pro.CalendarID, b.CalendarEventID, calendar.EventDetails{
		Summary:     fmt.Sprintf("%s - %s", off.Name, b.Customer.Name),
		Description: fmt.Sprintf("Reserva %s", b.ID),
		Range:       b.Range,
		Attendees:   []string{b.Customer.Email},
	})
	if err != nil {
		s.log.Warn("calendar event update failed", zap.String("booking_id", b.ID), zap.Error(err))
	}
}

func (s *service) deleteCalendarEvent(ctx context.Context, b *Booking) {
	t, pro, _, err := s.loadContext(ctx, b)
	if err != nil {
		s.log.Warn("calendar event delete skipped", zap.String("booking_id", b.ID), zap.Error(err))
		return
	}

	if err := s.cal.DeleteEvent(ctx, calendar.Credential{AccessToken: t.CalendarToken}, pro.CalendarID, b.CalendarEventID); err != nil {
		s.log.Warn("calendar event delete failed", zap.String("booking_id", b.ID), zap.Error(err))
	}
}

func (s *service) sendEmail(ctx context.Context, b *Booking, subject, body string) {
	if b.Customer.Email == "" {
		return
	}
	err := s.mailer.Send(ctx, notification.Message{
		To:      b.Customer.Email,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		s.log.Warn("booking email failed", zap.String("booking_id", b.ID), zap.Error(err))
	}
}

func (s *service) dispatchEvent(ctx context.Context, b *Booking, eventType string, extra map[string]any) {
	t, pro, off, err := s.loadContext(ctx, b)
	if err != nil {
		s.log.Warn("outbound webhook skipped", zap.String("booking_id", b.ID), zap.Error(err))
		return
	}

	body := map[string]any{
		"servicio": map[string]any{
			"id":               off.ID,
			"nombre":           off.Name,
			"duracion_minutos": off.DurationMinutes,
		},
		"profesional": map[string]any{
			"id":     pro.ID,
			"nombre": pro.Name,
		},
		"cita": map[string]any{
			"id":     b.ID,
			"inicio": b.Range.Start,
			"fin":    b.Range.End,
			"estado": string(b.Status),
		},
		"cliente": map[string]any{
			"nombre":   b.Customer.Name,
			"email":    b.Customer.Email,
			"telefono": b.Customer.Phone,
		},
		"pago": map[string]any{
			"monto_centavos": off.PriceCents,
			"moneda":         off.Currency,
		},
	}
	for k, v := range extra {
		body[k] = v
	}

	s.notifier.Deliver(ctx, callback.Target{URL: t.CallbackURL, Secret: t.WebhookSecret}, callback.Event{
		Type:      eventType,
		BookingID: b.ID,
		TenantID:  b.TenantID,
		Body:      body,
	})
}

func (s *service) loadContext(ctx context.Context, b *Booking) (*tenant.Tenant, *professional.Professional, *offering.Offering, error) {
	t, err := s.tenantRepo.GetByID(ctx, b.TenantID)
	if err != nil {
		return nil, nil, nil, err
	}
	pro, err := s.proRepo.GetByID(ctx, b.ProfessionalID)
	if err != nil {
		return nil, nil, nil, err
	}
	off, err := s.offRepo.GetByID(ctx, b.ServiceID)
	if err != nil {
		return nil, nil, nil, err
	}
	return t, pro, off, nil
}
