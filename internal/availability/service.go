package availability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/booking"
	"github.com/citaflow/booking-backend/internal/calendar"
	"github.com/citaflow/booking-backend/internal/hold"
	"github.com/citaflow/booking-backend/internal/offering"
	"github.com/citaflow/booking-backend/internal/pkg/apperror"
	"github.com/citaflow/booking-backend/internal/professional"
	"github.com/citaflow/booking-backend/internal/tenant"
	"github.com/citaflow/booking-backend/internal/timerange"
)

var ErrInvalidWindow = apperror.Validation("search window start must be before end")

// Query asks for the bookable slots of one professional and one offering
// inside a search window. SessionID, when set, lets the caller see through
// its own holds so a held slot still shows as available to the holder.
type Query struct {
	ProfessionalID string
	ServiceID      string
	SessionID      string
	Window         timerange.TimeRange
}

type Service interface {
	Search(ctx context.Context, q Query) ([]timerange.TimeRange, error)
}

type service struct {
	bookingRepo booking.Repository
	holdRepo    hold.Repository
	proRepo     professional.Repository
	offRepo     offering.Repository
	tenantRepo  tenant.Repository
	cal         calendar.Client
	now         func() time.Time
	log         *zap.Logger
}

func NewService(
	bookingRepo booking.Repository,
	holdRepo hold.Repository,
	proRepo professional.Repository,
	offRepo offering.Repository,
	tenantRepo tenant.Repository,
	cal calendar.Client,
	log *zap.Logger,
) Service {
	return &service{
		bookingRepo: bookingRepo,
		holdRepo:    holdRepo,
		proRepo:     proRepo,
		offRepo:     offRepo,
		tenantRepo:  tenantRepo,
		cal:         cal,
		now:         time.Now,
		log:         log,
	}
}

func (s *service) Search(ctx context.Context, q Query) ([]timerange.TimeRange, error) {
	if err := q.Window.Validate(); err != nil {
		return nil, ErrInvalidWindow
	}

	pro, err := s.proRepo.GetByID(ctx, q.ProfessionalID)
	if err != nil {
		return nil, err
	}
	off, err := s.offRepo.GetByID(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}

	loc, err := pro.Location()
	if err != nil {
		return nil, err
	}
	openHour, openMinute, err := professional.ParseClock(pro.OpenTime)
	if err != nil {
		return nil, err
	}
	closeHour, closeMinute, err := professional.ParseClock(pro.CloseTime)
	if err != nil {
		return nil, err
	}

	busy, err := s.collectBusy(ctx, pro, q)
	if err != nil {
		return nil, err
	}

	hours := BusinessHours{
		OpenHour:    openHour,
		OpenMinute:  openMinute,
		CloseHour:   closeHour,
		CloseMinute: closeMinute,
		Location:    loc,
	}
	return ComputeSlots(busy, hours, q.Window, off.DurationMinutes, DefaultStepMinutes, s.now()), nil
}

// collectBusy gathers every source of occupancy: the professional's external
// calendar, holds owned by other sessions, and active bookings. A calendar
// fetch failure degrades to calendar-blind slots rather than failing the
// search.
func (s *service) collectBusy(ctx context.Context, pro *professional.Professional, q Query) ([]timerange.TimeRange, error) {
	var busy []timerange.TimeRange

	if pro.CalendarID != "" {
		t, err := s.tenantRepo.GetByID(ctx, pro.TenantID)
		if err != nil {
			return nil, err
		}
		if t.CalendarToken != "" {
			cred := calendar.Credential{AccessToken: t.CalendarToken}
			periods, err := s.cal.GetFreeBusy(ctx, cred, pro.CalendarID, q.Window.Start, q.Window.End)
			if err != nil {
				s.log.Warn("calendar free/busy fetch failed",
					zap.String("professional_id", pro.ID),
					zap.Error(err),
				)
			} else {
				busy = append(busy, periods...)
			}
		}
	}

	holds, err := s.holdRepo.ListActiveOverlapping(ctx, pro.ID, q.Window, q.SessionID, s.now())
	if err != nil {
		return nil, err
	}
	for _, h := range holds {
		busy = append(busy, h.Range)
	}

	booked, err := s.bookingRepo.ListActiveRanges(ctx, pro.ID, q.Window)
	if err != nil {
		return nil, err
	}
	busy = append(busy, booked...)

	return busy, nil
}
